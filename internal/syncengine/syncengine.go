// Package syncengine executes a build plan: it stages fetched sources,
// delegates compilation/installation to a pluggable installer, and
// materializes the result into the project library using the cheapest
// link mode the target filesystem supports. Independent packages are
// installed in parallel, bounded by a configurable concurrency limit,
// while still honoring the plan's dependency order.
package syncengine

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rv-tools/rv/internal/errors"
	"github.com/rv-tools/rv/internal/installer"
	"github.com/rv-tools/rv/internal/lockfile"
	"github.com/rv-tools/rv/internal/manifest"
	"github.com/rv-tools/rv/internal/plan"
	"github.com/rv-tools/rv/internal/registry"
	"github.com/rv-tools/rv/internal/resolver"
)

// Reporter receives progress notifications for one package's sync
// unit. Implementations must be safe for concurrent use, since units
// run in parallel.
type Reporter interface {
	OnStart(name string)
	OnProgress(name, message string)
	OnDone(name string, err error)
}

type noopReporter struct{}

func (noopReporter) OnStart(string)            {}
func (noopReporter) OnProgress(string, string) {}
func (noopReporter) OnDone(string, error)      {}

// Engine executes plans against one project's library directory. An
// Engine holds no per-run mutable state, so the same Engine can run
// multiple plans (sequentially or, with distinct library directories,
// concurrently).
type Engine struct {
	LibraryDir     string
	PlatformLibDir string // consulted only for Builtin sources
	Installer      installer.Installer
	Concurrency    int
	Reporter       Reporter

	// LinkMode, if set, names the materialization strategy explicitly
	// ("hardlink", "clone", "symlink", "copy") instead of probing the
	// library filesystem. RV_LINK_MODE is consulted if this is empty.
	LinkMode string

	// CopyWorkers bounds how many files materializeDir copies
	// concurrently when falling back to plain copies. RV_COPY_WORKERS
	// is consulted if this is 0.
	CopyWorkers int

	// SkipSafetyCheck disables the open-file-handle check before
	// removing a package directory. RV_NO_SAFETY_CHECK is consulted if
	// this is false.
	SkipSafetyCheck bool
}

// New creates an Engine with a default concurrency of 4 and a no-op
// reporter.
func New(libraryDir string, inst installer.Installer) *Engine {
	return &Engine{
		LibraryDir:  libraryDir,
		Installer:   inst,
		Concurrency: 4,
	}
}

// Result is the outcome of one sync run.
type Result struct {
	Installed []string
	Updated   []string
	Removed   []string
	Failed    map[string]error
}

func (e *Engine) reporter() Reporter {
	if e.Reporter == nil {
		return noopReporter{}
	}
	return e.Reporter
}

func (e *Engine) concurrency() int {
	if e.Concurrency < 1 {
		return 1
	}
	return e.Concurrency
}

// copyWorkers resolves the effective file-copy worker count: the
// Engine's own setting, else RV_COPY_WORKERS, else 4.
func (e *Engine) copyWorkers() int {
	if e.CopyWorkers > 0 {
		return e.CopyWorkers
	}
	if raw := os.Getenv("RV_COPY_WORKERS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return 4
}

// linkModeOverride resolves the explicit link-mode override, if any:
// the Engine's own setting, else RV_LINK_MODE. Returns false if neither
// names a recognized mode.
func (e *Engine) linkModeOverride() (linkMode, bool) {
	raw := e.LinkMode
	if raw == "" {
		raw = os.Getenv("RV_LINK_MODE")
	}
	switch strings.ToLower(raw) {
	case "hardlink":
		return linkHardlink, true
	case "clone":
		return linkClone, true
	case "symlink":
		return linkSymlink, true
	case "copy":
		return linkCopy, true
	default:
		return 0, false
	}
}

// skipSafetyCheck resolves whether the open-file-handle removal check
// is disabled: the Engine's own setting, else RV_NO_SAFETY_CHECK.
func (e *Engine) skipSafetyCheck() bool {
	return e.SkipSafetyCheck || os.Getenv("RV_NO_SAFETY_CHECK") != ""
}

// Run executes p. res supplies each entry's resolved source and the
// dependency graph scheduling respects; state is updated in place as
// packages are installed, updated, or removed. Run honors ctx
// cancellation: once observed, no new unit starts, in-flight units are
// allowed to finish or abort on their own context checks, and nothing
// staged is promoted into the library.
func (e *Engine) Run(ctx context.Context, p *plan.Plan, res *resolver.Resolution, state *manifest.State) (*Result, error) {
	result := &Result{Failed: make(map[string]error)}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	if err := os.MkdirAll(e.LibraryDir, 0755); err != nil {
		return result, errors.NewSyncError("sync", "stage", err)
	}

	stagingRoot, err := os.MkdirTemp("", "rv-sync-*")
	if err != nil {
		return result, errors.NewSyncError("sync", "stage", err)
	}
	defer os.RemoveAll(stagingRoot)

	mode, ok := e.linkModeOverride()
	if !ok {
		var err error
		mode, err = probeLinkMode(stagingRoot, e.LibraryDir)
		if err != nil {
			return result, errors.NewSyncError("sync", "link", err)
		}
	}

	run := &runContext{engine: e, mode: mode, stagingRoot: stagingRoot}

	var toInstall []plan.Entry
	var toRemove []plan.Entry
	for _, entry := range p.Entries {
		switch entry.Action {
		case plan.ActionInstall, plan.ActionUpdate:
			toInstall = append(toInstall, entry)
		case plan.ActionRemove:
			toRemove = append(toRemove, entry)
		}
	}

	if len(toInstall) > 0 {
		if err := run.installAll(ctx, toInstall, res, state, result); err != nil {
			return result, err
		}
	}

	for _, entry := range toRemove {
		if ctx.Err() != nil {
			break
		}
		if err := run.removeOne(entry.Name, state); err != nil {
			result.Failed[entry.Name] = err
			continue
		}
		result.Removed = append(result.Removed, entry.Name)
	}

	if len(result.Failed) > 0 {
		var joined error
		for name, ferr := range result.Failed {
			joined = errors.Join(joined, fmt.Errorf("%s: %w", name, ferr))
		}
		return result, joined
	}
	return result, ctx.Err()
}

// runContext carries the per-run settings (chosen link mode, staging
// root) that must not leak between concurrent Run calls on the same
// Engine.
type runContext struct {
	engine      *Engine
	mode        linkMode
	stagingRoot string
}

// installAll installs/updates entries in dependency order, running
// independent units in parallel up to the engine's concurrency limit.
// A unit whose dependency failed is marked failed without attempting
// installation; unrelated units continue regardless.
func (r *runContext) installAll(ctx context.Context, entries []plan.Entry, res *resolver.Resolution, state *manifest.State, result *Result) error {
	inSet := make(map[string]bool, len(entries))
	for _, en := range entries {
		inSet[en.Name] = true
	}

	done := make(map[string]chan struct{}, len(entries))
	for _, en := range entries {
		done[en.Name] = make(chan struct{})
	}

	sem := make(chan struct{}, r.engine.concurrency())
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range entries {
		entry := entry
		g.Go(func() error {
			defer close(done[entry.Name])

			if node := res.Graph.GetNode(entry.Name); node != nil {
				for dep := range node.Dependencies {
					if !inSet[dep] {
						continue
					}
					select {
					case <-done[dep]:
					case <-gctx.Done():
						return nil
					}
					mu.Lock()
					_, depFailed := result.Failed[dep]
					mu.Unlock()
					if depFailed {
						mu.Lock()
						result.Failed[entry.Name] = errors.NewSyncError(entry.Name, "install",
							fmt.Errorf("dependency %q failed to install", dep))
						mu.Unlock()
						return nil
					}
				}
			}

			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			defer func() { <-sem }()

			if gctx.Err() != nil {
				return nil
			}

			r.engine.reporter().OnStart(entry.Name)
			err := r.installOne(gctx, entry, res, state)
			r.engine.reporter().OnDone(entry.Name, err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[entry.Name] = err
				return nil
			}
			switch entry.Action {
			case plan.ActionInstall:
				result.Installed = append(result.Installed, entry.Name)
			case plan.ActionUpdate:
				result.Updated = append(result.Updated, entry.Name)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *runContext) installOne(ctx context.Context, entry plan.Entry, res *resolver.Resolution, state *manifest.State) error {
	node, ok := res.Resolved[entry.Name]
	if !ok {
		return errors.NewSyncError(entry.Name, "install", fmt.Errorf("no resolved node for %s", entry.Name))
	}

	fetcher, err := registry.NewFetcher(ctx, node.Source, r.engine.PlatformLibDir)
	if err != nil {
		return errors.NewSyncError(entry.Name, "fetch", err)
	}

	fetchDir := filepath.Join(r.stagingRoot, "fetch", entry.Name)
	if err := os.MkdirAll(fetchDir, 0755); err != nil {
		return errors.NewSyncError(entry.Name, "fetch", err)
	}
	srcDir, integrity, err := fetcher.Fetch(ctx, entry.Name, node.Source, fetchDir)
	if err != nil {
		return errors.NewSyncError(entry.Name, "fetch", err)
	}

	builtDir := srcDir
	if r.engine.Installer != nil {
		builtDir = filepath.Join(r.stagingRoot, "built", entry.Name)
		if err := os.MkdirAll(builtDir, 0755); err != nil {
			return errors.NewSyncError(entry.Name, "install", err)
		}
		env := installEnv(node.InstallOptions)
		if err := r.engine.Installer.Install(ctx, entry.Name, srcDir, builtDir, env, node.InstallOptions.ConfigureArgs); err != nil {
			return err
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if node.InstallOptions.DependenciesOnly {
		state.Remove(entry.Name)
		return nil
	}

	targetDir := filepath.Join(r.engine.LibraryDir, entry.Name)
	if err := os.RemoveAll(targetDir); err != nil {
		return errors.NewSyncError(entry.Name, "link", err)
	}
	if err := materializeDir(r.mode, builtDir, targetDir, r.engine.copyWorkers()); err != nil {
		return errors.NewSyncError(entry.Name, "link", err)
	}

	state.Set(entry.Name, &manifest.InstalledPackage{
		Version:   node.Version.String(),
		Source:    lockfile.FromSource(node.Source),
		Integrity: integrity,
	})
	return nil
}

// installEnv merges a node's configured environment overrides on top of
// a system-requirements API URL forwarded from the ambient environment,
// when one is configured.
func installEnv(opts resolver.InstallOptions) map[string]string {
	env := make(map[string]string, len(opts.Env)+1)
	if url := os.Getenv("RV_SYSREQS_URL"); url != "" {
		env["RV_SYSREQS_URL"] = url
	}
	for k, v := range opts.Env {
		env[k] = v
	}
	if len(env) == 0 {
		return nil
	}
	return env
}

func (r *runContext) removeOne(name string, state *manifest.State) error {
	targetDir := filepath.Join(r.engine.LibraryDir, name)
	if !r.engine.skipSafetyCheck() && hasOpenHandles(targetDir) {
		return errors.NewSyncError(name, "remove", fmt.Errorf("refusing to remove %s: open file handles detected", targetDir))
	}
	if err := os.RemoveAll(targetDir); err != nil {
		return errors.NewSyncError(name, "remove", err)
	}
	state.Remove(name)
	return nil
}

// linkMode is the materialization strategy chosen for one sync run's
// target filesystem.
type linkMode int

const (
	linkHardlink linkMode = iota
	linkClone
	linkSymlink
	linkCopy
)

// probeLinkMode determines the cheapest safe materialization strategy
// the library directory's filesystem supports, by attempting each
// mode once against a throwaway file staged alongside the real
// staging root. The result is cached for the remainder of the sync
// run by the caller, since a filesystem doesn't change mid-run.
func probeLinkMode(stagingRoot, libraryDir string) (linkMode, error) {
	probeSrc := filepath.Join(stagingRoot, ".linkprobe")
	if err := os.WriteFile(probeSrc, []byte("probe"), 0644); err != nil {
		return 0, err
	}
	probeDst := filepath.Join(libraryDir, ".linkprobe")
	defer os.Remove(probeDst)

	if err := os.Link(probeSrc, probeDst); err == nil {
		os.Remove(probeDst)
		return linkHardlink, nil
	}
	os.Remove(probeDst)

	if err := tryClone(probeSrc, probeDst); err == nil {
		os.Remove(probeDst)
		return linkClone, nil
	}
	os.Remove(probeDst)

	if err := os.Symlink(probeSrc, probeDst); err == nil {
		os.Remove(probeDst)
		return linkSymlink, nil
	}
	os.Remove(probeDst)

	return linkCopy, nil
}

// tryClone attempts a copy-on-write clone via the platform's "cp
// --reflink" support, where available. No standard-library primitive
// exposes reflink/FICLONE, and nothing in the dependency set wraps it
// either, so this shells out to the same "cp" binary most systems
// already carry; any failure (missing binary, unsupported filesystem)
// is treated as "this mode doesn't work here" rather than an error.
func tryClone(src, dst string) error {
	return exec.Command("cp", "--reflink=always", src, dst).Run()
}

// materializeDir replicates srcDir's file tree into dstDir using mode,
// falling through to progressively more expensive modes per file if
// the chosen mode fails partway (e.g. a single file spans a
// filesystem boundary the probe didn't catch). Directories are created
// up front; files are then materialized by up to workers concurrent
// goroutines, since linking/copying one file never depends on another.
func materializeDir(mode linkMode, srcDir, dstDir string, workers int) error {
	type job struct{ src, dst string }
	var jobs []job

	err := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(dstDir, rel)
		if info.IsDir() {
			return os.MkdirAll(dst, 0755)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		jobs = append(jobs, job{src: path, dst: dst})
		return nil
	})
	if err != nil {
		return err
	}

	if workers < 1 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for _, j := range jobs {
		j := j
		g.Go(func() error { return linkFile(mode, j.src, j.dst) })
	}
	return g.Wait()
}

// linkFile materializes one file from src to dst, starting at mode and
// falling through to cheaper-to-reach-but-more-expensive modes on
// failure. Exhausting every mode is the only error.
func linkFile(mode linkMode, src, dst string) error {
	os.Remove(dst)
	if mode <= linkHardlink {
		if err := os.Link(src, dst); err == nil {
			return nil
		}
	}
	if mode <= linkClone {
		os.Remove(dst)
		if err := tryClone(src, dst); err == nil {
			return nil
		}
	}
	if mode <= linkSymlink {
		os.Remove(dst)
		if err := os.Symlink(src, dst); err == nil {
			return nil
		}
	}
	os.Remove(dst)
	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

// hasOpenHandles is a best-effort check for processes holding a file
// open under dir, consulted before removal (component I's safe-removal
// rule). It relies on /proc/*/fd, present on Linux; on platforms
// without it, the check is unavailable and always reports false (no
// handles detected) rather than refusing every removal.
func hasOpenHandles(dir string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}

	procEntries, err := os.ReadDir("/proc")
	if err != nil {
		return false
	}

	for _, pe := range procEntries {
		if !pe.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(pe.Name()); err != nil {
			continue
		}
		fdDir := filepath.Join("/proc", pe.Name(), "fd")
		fds, err := os.ReadDir(fdDir)
		if err != nil {
			continue
		}
		for _, fd := range fds {
			target, err := os.Readlink(filepath.Join(fdDir, fd.Name()))
			if err != nil {
				continue
			}
			if target == absDir || strings.HasPrefix(target, absDir+string(filepath.Separator)) {
				return true
			}
		}
	}
	return false
}
