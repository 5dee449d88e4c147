package cli

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/rv-tools/rv/internal/config"
	"github.com/rv-tools/rv/internal/lockfile"
	"github.com/rv-tools/rv/internal/manifest"
	"github.com/rv-tools/rv/internal/registry"
	"github.com/rv-tools/rv/internal/resolver"
	"github.com/rv-tools/rv/internal/ui"
	"github.com/rv-tools/rv/pkg/version"
)

// projectContext bundles everything a command needs once it has loaded
// a project: the parsed config, the current lockfile, the installed
// library state, and a resolver ready to run against the config and
// lockfile.
type projectContext struct {
	root     string
	project  *config.ProjectConfig
	lock     *lockfile.LockFile
	state    *manifest.State
	resolver *resolver.Resolver
}

// loadProjectContext loads rproject.hcl, rproject.lock, and the library
// state file from dir, validates the config, and builds a resolver
// bound to the config and lockfile plus the platform's built-in package
// index.
func loadProjectContext(dir string) (*projectContext, error) {
	project, err := config.LoadProject(dir)
	if err != nil {
		return nil, err
	}
	if err := project.Validate(); err != nil {
		return nil, err
	}

	lock, err := lockfile.Load(dir)
	if err != nil {
		return nil, err
	}

	libraryDir := project.LibraryDir(dir)
	state, err := manifest.Load(libraryDir)
	if err != nil {
		return nil, err
	}

	builtins, err := registry.ScanPlatformIndex(platformLibDir())
	if err != nil {
		return nil, err
	}

	res := resolver.NewResolver(dir, project, lock, builtins, platformTag(project))

	return &projectContext{root: dir, project: project, lock: lock, state: state, resolver: res}, nil
}

// platformLibDir returns the directory holding the running platform's
// own bundled packages, consulted for Builtin sources. Empty if unset,
// in which case no built-ins are considered available.
func platformLibDir() string {
	return os.Getenv("RV_PLATFORM_LIB_DIR")
}

// platformTag identifies the running environment for binary-index
// lookups: OS, architecture, and the project's targeted platform
// version.
func platformTag(project *config.ProjectConfig) string {
	return fmt.Sprintf("%s-%s-%s", runtime.GOOS, runtime.GOARCH, project.Project.PlatformVersion)
}

// requestsFromDependencies converts a project's direct dependency
// blocks into top-level resolver requests.
func requestsFromDependencies(project *config.ProjectConfig) ([]resolver.DepRequest, error) {
	specs := make([]resolver.DepRequest, 0, len(project.Dependencies))
	for _, dep := range project.Dependencies {
		constraint, err := version.ParseConstraint(dep.Version)
		if err != nil {
			return nil, fmt.Errorf("dependency %q: %w", dep.Name, err)
		}
		specs = append(specs, resolver.DepRequest{Name: dep.Name, Constraint: constraint})
	}
	return specs, nil
}

// syncConcurrency reads RV_SYNC_CONCURRENCY, falling back to def if
// unset or invalid.
func syncConcurrency(def int) int {
	raw := os.Getenv("RV_SYNC_CONCURRENCY")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// applyColorEnv honors RV_NO_COLOR ahead of cobra flag parsing.
func applyColorEnv() {
	if os.Getenv("RV_NO_COLOR") != "" {
		ui.SetNoColor(true)
	}
}

// saveLockFromResolution rebuilds lock's contents from res, bumping
// GeneratedAt only if the resolved closure actually changed, and
// writes the result to disk.
func saveLockFromResolution(lock *lockfile.LockFile, project *config.ProjectConfig, res *resolver.Resolution) error {
	updated := &lockfile.LockFile{
		Version:         lockfile.LockFileVersion,
		PlatformVersion: project.Project.PlatformVersion,
		Packages:        make(map[string]*lockfile.LockedPackage, len(res.Resolved)),
	}
	for _, repo := range project.Repositories {
		updated.Repositories = append(updated.Repositories, lockfile.Repository{Alias: repo.Alias, URL: repo.URL})
	}
	for name, node := range res.Resolved {
		depends := make(map[string]string)
		if n := res.Graph.GetNode(name); n != nil {
			for dep, constraint := range n.Dependencies {
				depends[dep] = constraint
			}
		}
		updated.Set(name, &lockfile.LockedPackage{
			Version:        node.Version.String(),
			Source:         lockfile.FromSource(node.Source),
			Integrity:      node.Integrity,
			Depends:        depends,
			InstallOptions: lockfile.InstallOptions(node.InstallOptions),
		})
	}

	if lock.ContentEqual(updated) {
		return nil
	}

	lock.Version = updated.Version
	lock.PlatformVersion = updated.PlatformVersion
	lock.Repositories = updated.Repositories
	lock.Packages = updated.Packages
	lock.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	return lock.Save()
}
