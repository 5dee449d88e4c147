// Package lockfile provides lock file management for reproducible
// resolves. The lock file is stored at rproject.lock and pins exact
// versions and sources of every package in a resolved closure, so that a
// resolve against it produces identical results across machines and time.
package lockfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"sort"

	"github.com/rv-tools/rv/internal/pkgsource"
	"github.com/rv-tools/rv/pkg/version"
)

const (
	// LockFileVersion is the current lock file format version.
	LockFileVersion = "1.0"

	// LockFileName is the lock file's name within a project root.
	LockFileName = "rproject.lock"
)

// Repository is one entry in the lockfile's repository list, capturing
// the alias and URL active at the time the lockfile was generated. The
// order of this list is resolution-significant and must mirror the
// project config's repository order exactly.
type Repository struct {
	Alias string `json:"alias"`
	URL   string `json:"url"`
}

// LockedPackage is one resolved node pinned in the lockfile.
type LockedPackage struct {
	Version        string            `json:"version"`
	Source         LockedSource      `json:"source"`
	Integrity      string            `json:"integrity,omitempty"`
	Depends        map[string]string `json:"depends,omitempty"`
	InstallOptions InstallOptions    `json:"install_options,omitempty"`
}

// InstallOptions is the lockfile-stable shape of a package's install
// knobs, carried through from its project configuration entry.
type InstallOptions struct {
	ForceSource      bool              `json:"force_source,omitempty"`
	IncludeSuggests  bool              `json:"install_suggestions,omitempty"`
	DependenciesOnly bool              `json:"dependencies_only,omitempty"`
	ConfigureArgs    []string          `json:"configure_args,omitempty"`
	Env              map[string]string `json:"env,omitempty"`
}

// LockedSource serializes a pkgsource.Source in a lockfile-stable shape.
// Only the fields relevant to Kind are populated on write; unused fields
// are omitted.
type LockedSource struct {
	Kind string `json:"kind"`

	Alias    string `json:"alias,omitempty"`
	RepoKind string `json:"repo_kind,omitempty"`
	URL      string `json:"url,omitempty"`
	SHA      string `json:"sha,omitempty"`

	VCSURL       string `json:"vcs_url,omitempty"`
	VCSRefKind   string `json:"vcs_ref_kind,omitempty"`
	VCSRef       string `json:"vcs_ref,omitempty"`
	Subdirectory string `json:"subdirectory,omitempty"`
	CommitSHA    string `json:"commit_sha,omitempty"`

	Path string `json:"path,omitempty"`

	BuiltinVersion string `json:"builtin_version,omitempty"`
}

// ToSource converts a LockedSource back into a pkgsource.Source.
func (ls LockedSource) ToSource() pkgsource.Source {
	var kind pkgsource.Kind
	switch ls.Kind {
	case "repository":
		kind = pkgsource.Repository
	case "version-control":
		kind = pkgsource.VersionControl
	case "local-path":
		kind = pkgsource.LocalPath
	case "remote-archive":
		kind = pkgsource.RemoteArchive
	case "builtin":
		kind = pkgsource.Builtin
	}
	return pkgsource.Source{
		Kind:           kind,
		Alias:          ls.Alias,
		RepoKind:       pkgsource.RepoKind(ls.RepoKind),
		URL:            ls.URL,
		SHA:            ls.SHA,
		VCSURL:         ls.VCSURL,
		VCSRefKind:     pkgsource.VCSRefKind(ls.VCSRefKind),
		VCSRef:         ls.VCSRef,
		Subdirectory:   ls.Subdirectory,
		CommitSHA:      ls.CommitSHA,
		Path:           ls.Path,
		BuiltinVersion: ls.BuiltinVersion,
	}
}

// FromSource converts a pkgsource.Source into its lockfile representation.
func FromSource(s pkgsource.Source) LockedSource {
	return LockedSource{
		Kind:           s.Kind.String(),
		Alias:          s.Alias,
		RepoKind:       string(s.RepoKind),
		URL:            s.URL,
		SHA:            s.SHA,
		VCSURL:         s.VCSURL,
		VCSRefKind:     string(s.VCSRefKind),
		VCSRef:         s.VCSRef,
		Subdirectory:   s.Subdirectory,
		CommitSHA:      s.CommitSHA,
		Path:           s.Path,
		BuiltinVersion: s.BuiltinVersion,
	}
}

// LockFile is the canonical, on-disk representation of a resolved
// dependency closure.
type LockFile struct {
	Version         string                    `json:"version"`
	PlatformVersion string                    `json:"platform_version"`
	Repositories    []Repository              `json:"repositories"`
	Packages        map[string]*LockedPackage `json:"packages"`
	GeneratedAt     string                    `json:"generated_at"`

	path string
}

// Load loads a lock file from the project root. Returns an empty lock
// file (not an error) if the file doesn't exist yet.
func Load(projectRoot string) (*LockFile, error) {
	lockPath := filepath.Join(projectRoot, LockFileName)

	l := &LockFile{
		Version:  LockFileVersion,
		Packages: make(map[string]*LockedPackage),
		path:     lockPath,
	}

	data, err := os.ReadFile(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, l); err != nil {
		return nil, err
	}
	l.path = lockPath
	if l.Packages == nil {
		l.Packages = make(map[string]*LockedPackage)
	}

	return l, nil
}

// Save writes the lock file to disk as canonical, sorted-key JSON with a
// trailing newline. Callers are responsible for only bumping GeneratedAt
// when content actually changed (see ContentEqual) so that idempotent
// saves are byte-identical.
func (l *LockFile) Save() error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(l.path, data, 0644)
}

// Get returns the locked package for a name (nil if not locked).
func (l *LockFile) Get(name string) *LockedPackage {
	return l.Packages[name]
}

// Set updates or adds a locked package.
func (l *LockFile) Set(name string, locked *LockedPackage) {
	if l.Packages == nil {
		l.Packages = make(map[string]*LockedPackage)
	}
	if locked.Depends == nil {
		locked.Depends = make(map[string]string)
	}
	l.Packages[name] = locked
}

// Remove removes a package from the lock file.
func (l *LockFile) Remove(name string) {
	delete(l.Packages, name)
}

// Has reports whether a package is locked.
func (l *LockFile) Has(name string) bool {
	_, ok := l.Packages[name]
	return ok
}

// PackageNames returns every locked package name, sorted.
func (l *LockFile) PackageNames() []string {
	names := make([]string, 0, len(l.Packages))
	for name := range l.Packages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ContentEqual reports whether l and other describe the same resolved
// closure (same platform version, repositories, and packages), ignoring
// GeneratedAt. Used to decide whether a re-save should bump the
// timestamp (testable property: idempotent saves never touch
// GeneratedAt).
func (l *LockFile) ContentEqual(other *LockFile) bool {
	if l.PlatformVersion != other.PlatformVersion {
		return false
	}
	if len(l.Repositories) != len(other.Repositories) {
		return false
	}
	for i := range l.Repositories {
		if l.Repositories[i] != other.Repositories[i] {
			return false
		}
	}
	if len(l.Packages) != len(other.Packages) {
		return false
	}
	for name, pkg := range l.Packages {
		otherPkg, ok := other.Packages[name]
		if !ok {
			return false
		}
		if pkg.Version != otherPkg.Version || pkg.Source != otherPkg.Source || pkg.Integrity != otherPkg.Integrity {
			return false
		}
		if !reflect.DeepEqual(pkg.InstallOptions, otherPkg.InstallOptions) {
			return false
		}
		if len(pkg.Depends) != len(otherPkg.Depends) {
			return false
		}
		for dep, constraint := range pkg.Depends {
			if otherPkg.Depends[dep] != constraint {
				return false
			}
		}
	}
	return true
}

// ResolvedVersion parses a locked package's pinned version string.
func (p *LockedPackage) ResolvedVersion() (version.Version, error) {
	return version.Parse(p.Version)
}
