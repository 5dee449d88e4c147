// Package resolver implements multi-source dependency resolution: a
// BFS-over-queue walk of a project's dependency closure that consults, in
// priority order, already-resolved names, local source overrides,
// platform built-ins, the lockfile, and configured repositories.
package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rv-tools/rv/internal/config"
	rverrors "github.com/rv-tools/rv/internal/errors"
	"github.com/rv-tools/rv/internal/lockfile"
	"github.com/rv-tools/rv/internal/metadata"
	"github.com/rv-tools/rv/internal/pkgsource"
	"github.com/rv-tools/rv/internal/registry"
	"github.com/rv-tools/rv/pkg/version"
)

// DepRequest is one request to resolve a name, as it flows through the
// BFS frontier.
type DepRequest struct {
	Name        string
	Constraint  version.Constraint
	RequestedBy string // "" for a project-level dependency

	// RemoteSpec carries a "Kind::target@ref" descriptor declared by
	// RequestedBy's own metadata for this name, if any (see
	// metadata.Record.Remotes). Empty when the requesting package
	// declared no such override.
	RemoteSpec string
}

// ResolvedNode is one name's resolution outcome.
type ResolvedNode struct {
	Name      string
	Version   version.Version
	Source    pkgsource.Source
	Record    metadata.Record
	Integrity string

	// InstallOptions carries this name's per-dependency install knobs,
	// taken from its own project configuration entry (if any); names
	// resolved only transitively carry the zero value.
	InstallOptions InstallOptions
}

// InstallOptions is the set of per-dependency install knobs a project
// configuration entry may set, carried through resolution into the
// lockfile and the installer invocation.
type InstallOptions struct {
	ForceSource      bool
	IncludeSuggests  bool
	DependenciesOnly bool
	ConfigureArgs    []string
	Env              map[string]string
}

// Resolution is the output of a completed resolve: the resolved nodes
// and their install order (dependencies first).
type Resolution struct {
	InstallOrder []string
	Resolved     map[string]*ResolvedNode
	Graph        *DepGraph
}

// BuiltinIndex looks up a name in the platform's bundled package table.
type BuiltinIndex interface {
	Lookup(name string) (version.Version, bool)
}

// band identifies which priority step produced a resolution, used to
// scope conflict backtracking to within the same step.
type band string

const (
	bandOverride   band = "override"
	bandBuiltin    band = "builtin"
	bandLockfile   band = "lockfile"
	bandRepository band = "repository"
)

// repoCandidate pairs a repository lookup hit with the database it came
// from, so a later conflict can re-query the same repository for an
// older matching version.
type repoCandidate struct {
	db    *registry.Database
	alias string
	cand  registry.Candidate
}

type pinned struct {
	node        *ResolvedNode
	band        band
	constraints []version.Constraint
	remaining   []repoCandidate
}

// Resolver performs multi-source dependency resolution for one project.
type Resolver struct {
	ProjectRoot string
	Project     *config.ProjectConfig
	Lock        *lockfile.LockFile
	Builtins    BuiltinIndex
	PlatformTag string

	databases map[string]*registry.Database
}

// NewResolver creates a resolver bound to a loaded project config and
// lockfile. builtins may be nil if the platform ships no built-in table.
func NewResolver(projectRoot string, project *config.ProjectConfig, lock *lockfile.LockFile, builtins BuiltinIndex, platformTag string) *Resolver {
	return &Resolver{
		ProjectRoot: projectRoot,
		Project:     project,
		Lock:        lock,
		Builtins:    builtins,
		PlatformTag: platformTag,
		databases:   make(map[string]*registry.Database),
	}
}

// Resolve resolves the given top-level requests and their transitive
// closure into a Resolution, or a *rverrors.ResolveError aggregating
// every unresolvable conflict.
func (r *Resolver) Resolve(ctx context.Context, specs []DepRequest) (*Resolution, error) {
	return r.resolve(ctx, specs, false)
}

// ResolveForUpdate re-resolves the named packages (or every locked
// package, if names is empty) ignoring their current lockfile entries.
func (r *Resolver) ResolveForUpdate(ctx context.Context, names []string) (*Resolution, error) {
	if len(names) == 0 {
		names = r.Lock.PackageNames()
	}
	specs := make([]DepRequest, 0, len(names))
	for _, name := range names {
		specs = append(specs, DepRequest{Name: name, Constraint: r.constraintFor(name)})
	}
	return r.resolve(ctx, specs, true)
}

func (r *Resolver) constraintFor(name string) version.Constraint {
	for _, d := range r.Project.Dependencies {
		if d.Name == name {
			if c, err := version.ParseConstraint(d.Version); err == nil {
				return c
			}
		}
	}
	c, _ := version.ParseConstraint("")
	return c
}

func (r *Resolver) resolve(ctx context.Context, specs []DepRequest, forUpdate bool) (*Resolution, error) {
	graph := NewDepGraph()
	pins := make(map[string]*pinned)
	var conflicts []rverrors.Conflict

	queue := append([]DepRequest(nil), specs...)
	sortFrontier(queue)

	for len(queue) > 0 {
		req := queue[0]
		queue = queue[1:]

		if req.RequestedBy != "" {
			graph.AddDependency(req.RequestedBy, req.Name, req.Constraint.String())
		} else {
			graph.AddNode(req.Name)
		}

		if p, ok := pins[req.Name]; ok {
			if req.Constraint.Satisfies(p.node.Version) {
				continue
			}
			if r.backtrack(p, req.Constraint) {
				p.constraints = append(p.constraints, req.Constraint)
				continue
			}
			conflicts = append(conflicts, rverrors.Conflict{
				Package:       req.Name,
				RequestedBy:   req.RequestedBy,
				Constraint:    req.Constraint.String(),
				ChosenVersion: p.node.Version.String(),
			})
			continue
		}

		node, b, remaining, err := r.resolvePackage(ctx, req, forUpdate)
		if err != nil {
			conflicts = append(conflicts, rverrors.Conflict{
				Package:       req.Name,
				RequestedBy:   req.RequestedBy,
				Constraint:    req.Constraint.String(),
				ChosenVersion: fmt.Sprintf("unresolved: %v", err),
			})
			continue
		}

		n := graph.AddNode(req.Name)
		n.Version = node.Version.String()
		n.Constraint = req.Constraint.String()
		n.Source = node.Source.String()

		node.InstallOptions = r.installOptionsFor(req.Name)
		pins[req.Name] = &pinned{node: node, band: b, constraints: []version.Constraint{req.Constraint}, remaining: remaining}

		deps := mergedDependencyConstraints(node.Record, node.InstallOptions.IncludeSuggests)
		for _, depName := range sortedKeys(deps) {
			remoteSpec := ""
			if decl, ok := node.Record.RemoteFor(depName); ok {
				remoteSpec = decl.Spec
			}
			queue = append(queue, DepRequest{Name: depName, Constraint: deps[depName], RequestedBy: req.Name, RemoteSpec: remoteSpec})
		}
		sortFrontier(queue)
	}

	if len(conflicts) > 0 {
		return nil, rverrors.NewResolveError("cannot resolve dependency closure", conflicts)
	}

	resolved := make(map[string]*ResolvedNode, len(pins))
	for name, p := range pins {
		resolved[name] = p.node
	}

	isLocked := func(name string) bool {
		p, ok := pins[name]
		return ok && p.band == bandLockfile
	}
	order, err := graph.TopologicalSortTolerant(isLocked)
	if err != nil {
		return nil, err
	}

	return &Resolution{InstallOrder: order, Resolved: resolved, Graph: graph}, nil
}

func sortFrontier(queue []DepRequest) {
	sort.SliceStable(queue, func(i, j int) bool {
		if queue[i].Name != queue[j].Name {
			return queue[i].Name < queue[j].Name
		}
		return queue[i].RequestedBy < queue[j].RequestedBy
	})
}

// backtrack attempts to satisfy newConstraint by re-resolving p against
// the next untried candidate in the same priority band (only the
// repository band carries alternates to try). Returns true and updates
// p.node/p.remaining in place on success.
func (r *Resolver) backtrack(p *pinned, newConstraint version.Constraint) bool {
	if p.band != bandRepository {
		return false
	}
	for len(p.remaining) > 0 {
		next := p.remaining[0]
		p.remaining = p.remaining[1:]

		if !newConstraint.Satisfies(next.cand.Version) {
			continue
		}
		satisfiesAll := true
		for _, c := range p.constraints {
			if !c.Satisfies(next.cand.Version) {
				satisfiesAll = false
				break
			}
		}
		if !satisfiesAll {
			continue
		}

		p.node = r.nodeFromRepoCandidate(next)
		return true
	}
	return false
}

// resolvePackage resolves one name following the multi-source lookup
// order: local source override, platform built-in, lockfile reuse,
// repositories in declared order.
func (r *Resolver) resolvePackage(ctx context.Context, req DepRequest, forUpdate bool) (*ResolvedNode, band, []repoCandidate, error) {
	dep := r.dependencyOverride(req.Name)
	if dep != nil && hasSourceOverride(*dep) {
		return r.resolveOverride(*dep), bandOverride, nil, nil
	}
	if dep != nil && dep.Repository != "" {
		node, remaining, err := r.resolveFromRepositoryAlias(ctx, req, dep.Repository)
		if err != nil {
			return nil, "", nil, err
		}
		return node, bandOverride, remaining, nil
	}

	if req.RemoteSpec != "" && !r.preferRepositoriesFor(req.Name) {
		if src, ok := parseRemote(req.RemoteSpec); ok {
			return &ResolvedNode{Name: req.Name, Source: src}, bandOverride, nil, nil
		}
	}

	forceSource := false
	if dep != nil {
		forceSource = dep.ForceSource
	}

	if !forceSource && r.Builtins != nil {
		if v, ok := r.Builtins.Lookup(req.Name); ok && req.Constraint.Satisfies(v) {
			node := &ResolvedNode{
				Name:    req.Name,
				Version: v,
				Source:  pkgsource.Source{Kind: pkgsource.Builtin, BuiltinVersion: v.String()},
			}
			return node, bandBuiltin, nil, nil
		}
	}

	if !forUpdate {
		if locked := r.Lock.Get(req.Name); locked != nil {
			if lv, err := locked.ResolvedVersion(); err == nil && req.Constraint.Satisfies(lv) {
				node := &ResolvedNode{
					Name:      req.Name,
					Version:   lv,
					Source:    locked.Source.ToSource(),
					Integrity: locked.Integrity,
					Record:    recordFromLocked(req.Name, locked),
				}
				return node, bandLockfile, nil, nil
			}
		}
	}

	node, remaining, err := r.resolveFromRepositories(ctx, req)
	if err != nil {
		return nil, "", nil, err
	}
	return node, bandRepository, remaining, nil
}

// resolveFromRepositories tries each configured repository in declared
// order, returning the first repository with a matching candidate
// (binary entries preferred over source at the same version).
func (r *Resolver) resolveFromRepositories(ctx context.Context, req DepRequest) (*ResolvedNode, []repoCandidate, error) {
	for _, repoCfg := range r.Project.Repositories {
		matches, err := r.matchesInRepository(ctx, repoCfg, req)
		if err != nil {
			return nil, nil, err
		}
		if len(matches) == 0 {
			continue
		}
		return r.nodeFromRepoCandidate(matches[0]), matches[1:], nil
	}
	return nil, nil, rverrors.NewNotFoundError("package", req.Name)
}

// resolveFromRepositoryAlias resolves req against a single named
// repository, for a dependency pinned with `repository = alias`.
func (r *Resolver) resolveFromRepositoryAlias(ctx context.Context, req DepRequest, alias string) (*ResolvedNode, []repoCandidate, error) {
	for _, repoCfg := range r.Project.Repositories {
		if repoCfg.Alias != alias {
			continue
		}
		matches, err := r.matchesInRepository(ctx, repoCfg, req)
		if err != nil {
			return nil, nil, err
		}
		if len(matches) == 0 {
			return nil, nil, rverrors.NewNotFoundError("package", req.Name)
		}
		return r.nodeFromRepoCandidate(matches[0]), matches[1:], nil
	}
	return nil, nil, rverrors.NewNotFoundError("repository", alias)
}

// matchesInRepository looks up req.Name in one repository's source and
// binary indices, returning every satisfying candidate sorted newest and
// binary-over-source first. A name whose project entry sets ForceSource
// is looked up in the source index only.
func (r *Resolver) matchesInRepository(ctx context.Context, repoCfg config.RepositoryBlock, req DepRequest) ([]repoCandidate, error) {
	db, err := r.database(repoCfg)
	if err != nil {
		return nil, err
	}

	forceSource := false
	if dep := r.dependencyOverride(req.Name); dep != nil {
		forceSource = dep.ForceSource
	}

	var sourceIdx, binaryIdx []metadata.Record
	if repoCfg.Kind != "binary-capable" {
		sourceIdx, err = indexOrEmpty(db.SourceIndex(ctx))
		if err != nil {
			return nil, err
		}
	}
	if repoCfg.Kind != "source" && !forceSource {
		binaryIdx, err = indexOrEmpty(db.BinaryIndex(ctx, r.PlatformTag))
		if err != nil {
			return nil, err
		}
	}

	var matches []repoCandidate
	for _, c := range registry.Lookup(req.Name, sourceIdx, binaryIdx) {
		if req.Constraint.Satisfies(c.Version) {
			matches = append(matches, repoCandidate{db: db, alias: repoCfg.Alias, cand: c})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if !matches[i].cand.Version.Equal(matches[j].cand.Version) {
			return matches[i].cand.Version.GreaterThan(matches[j].cand.Version)
		}
		return matches[i].cand.RepoKind == pkgsource.RepoKindBinary
	})
	return matches, nil
}

// preferRepositoriesFor reports whether name is listed in the project's
// prefer_repositories_for, reverting any parent-declared remote override
// back to ordinary repository lookup.
func (r *Resolver) preferRepositoriesFor(name string) bool {
	for _, n := range r.Project.Project.PreferRepositoriesFor {
		if n == name {
			return true
		}
	}
	return false
}

func (r *Resolver) nodeFromRepoCandidate(rc repoCandidate) *ResolvedNode {
	source := pkgsource.Source{
		Kind:     pkgsource.Repository,
		Alias:    rc.alias,
		RepoKind: rc.cand.RepoKind,
		URL:      rc.db.TarballURL(rc.cand, r.PlatformTag),
		SHA:      rc.cand.Record.Extra["SHA256"],
	}
	return &ResolvedNode{
		Name:    rc.cand.Name,
		Version: rc.cand.Version,
		Source:  source,
		Record:  rc.cand.Record,
	}
}

func (r *Resolver) database(repoCfg config.RepositoryBlock) (*registry.Database, error) {
	if db, ok := r.databases[repoCfg.Alias]; ok {
		return db, nil
	}
	db, err := registry.NewDatabase(repoCfg.Alias, repoCfg.URL)
	if err != nil {
		return nil, err
	}
	r.databases[repoCfg.Alias] = db
	return db, nil
}

// installOptionsFor reads name's project configuration entry (if any)
// into InstallOptions; transitively-resolved names never appear as a
// dependency block and carry the zero value.
func (r *Resolver) installOptionsFor(name string) InstallOptions {
	dep := r.dependencyOverride(name)
	if dep == nil {
		return InstallOptions{}
	}
	return InstallOptions{
		ForceSource:      dep.ForceSource,
		IncludeSuggests:  dep.IncludeSuggests,
		DependenciesOnly: dep.DependenciesOnly,
		ConfigureArgs:    dep.ConfigureArgs,
		Env:              dep.Env,
	}
}

func (r *Resolver) dependencyOverride(name string) *config.DependencyBlock {
	for i := range r.Project.Dependencies {
		if r.Project.Dependencies[i].Name == name {
			return &r.Project.Dependencies[i]
		}
	}
	return nil
}

func hasSourceOverride(dep config.DependencyBlock) bool {
	return dep.Git != "" || dep.Path != "" || dep.URL != ""
}

// resolveOverride builds a ResolvedNode for a project-pinned source
// override. Local paths are read directly to discover transitive
// dependencies; git and URL overrides are resolved without fetching
// metadata here, leaving dependency discovery for the install step once
// the package is actually fetched onto disk.
func (r *Resolver) resolveOverride(dep config.DependencyBlock) *ResolvedNode {
	source := sourceFromDependencyBlock(dep)
	node := &ResolvedNode{Name: dep.Name, Source: source}

	if source.Kind == pkgsource.LocalPath {
		path := source.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(r.ProjectRoot, path)
		}
		if rec, err := readLocalDescription(path); err == nil {
			node.Record = rec
			node.Version = rec.Version
		}
	}

	return node
}

func sourceFromDependencyBlock(dep config.DependencyBlock) pkgsource.Source {
	switch {
	case dep.Path != "":
		return pkgsource.Source{Kind: pkgsource.LocalPath, Path: dep.Path}
	case dep.Git != "":
		src := pkgsource.Source{Kind: pkgsource.VersionControl, VCSURL: dep.Git, Subdirectory: dep.Subdirectory}
		switch {
		case dep.Commit != "":
			src.VCSRefKind = pkgsource.VCSRefCommit
			src.CommitSHA = dep.Commit
		case dep.Tag != "":
			src.VCSRefKind = pkgsource.VCSRefTag
			src.VCSRef = dep.Tag
		default:
			src.VCSRefKind = pkgsource.VCSRefBranch
			src.VCSRef = dep.Branch
		}
		return src
	case dep.URL != "":
		return pkgsource.Source{Kind: pkgsource.RemoteArchive, URL: dep.URL, SHA: dep.SHA}
	default:
		return pkgsource.Source{}
	}
}

// parseRemote parses a package record's "Remote" field, a VCS remote
// override of the form "VersionControl::host/path@ref". A ref that looks
// like a commit SHA is a commit, one that starts with a digit (optionally
// after a "v") is a tag, and any other ref is a branch. Returns false if
// remote is empty or doesn't match the grammar.
func parseRemote(remote string) (pkgsource.Source, bool) {
	if remote == "" {
		return pkgsource.Source{}, false
	}
	idx := strings.Index(remote, "::")
	if idx < 0 {
		return pkgsource.Source{}, false
	}
	kind := remote[:idx]
	rest := remote[idx+2:]
	if !strings.EqualFold(kind, "VersionControl") {
		return pkgsource.Source{}, false
	}

	url := rest
	ref := ""
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		url = rest[:at]
		ref = rest[at+1:]
	}

	src := pkgsource.Source{Kind: pkgsource.VersionControl, VCSURL: url}
	switch {
	case ref == "":
		src.VCSRefKind = pkgsource.VCSRefBranch
	case looksLikeCommitSHA(ref):
		src.VCSRefKind = pkgsource.VCSRefCommit
		src.CommitSHA = ref
	case strings.IndexAny(strings.TrimPrefix(ref, "v"), "0123456789") == 0:
		src.VCSRefKind = pkgsource.VCSRefTag
		src.VCSRef = ref
	default:
		src.VCSRefKind = pkgsource.VCSRefBranch
		src.VCSRef = ref
	}
	return src, true
}

// looksLikeCommitSHA reports whether ref looks like a hex commit SHA
// (7-40 lowercase hex characters) rather than a branch or tag name.
func looksLikeCommitSHA(ref string) bool {
	if len(ref) < 7 || len(ref) > 40 {
		return false
	}
	for _, c := range ref {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// mergedDependencyConstraints merges Depends/Imports/LinkingTo (and,
// when requested, Suggests) into a single name->constraint map. The
// first list to mention a name wins its constraint.
func mergedDependencyConstraints(rec metadata.Record, includeSuggests bool) map[string]version.Constraint {
	out := make(map[string]version.Constraint)
	lists := [][]metadata.Dependency{rec.Depends, rec.Imports, rec.LinkingTo}
	if includeSuggests {
		lists = append(lists, rec.Suggests)
	}
	for _, list := range lists {
		for _, d := range list {
			if _, ok := out[d.Name]; !ok {
				out[d.Name] = d.Constraint
			}
		}
	}
	return out
}

func sortedKeys(m map[string]version.Constraint) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func recordFromLocked(name string, locked *lockfile.LockedPackage) metadata.Record {
	v, _ := locked.ResolvedVersion()
	rec := metadata.Record{Package: name, Version: v}
	for dep, constraintStr := range locked.Depends {
		c, _ := version.ParseConstraint(constraintStr)
		rec.Depends = append(rec.Depends, metadata.Dependency{Name: dep, Constraint: c})
	}
	sort.Slice(rec.Depends, func(i, j int) bool { return rec.Depends[i].Name < rec.Depends[j].Name })
	return rec
}

func indexOrEmpty(records []metadata.Record, err error) ([]metadata.Record, error) {
	if err != nil {
		var nf *rverrors.NotFoundError
		if rverrors.As(err, &nf) {
			return nil, nil
		}
		return nil, err
	}
	return records, nil
}

// readLocalDescription reads a package's DESCRIPTION file from a local
// path (either the path itself, if it names a file, or <path>/DESCRIPTION).
func readLocalDescription(path string) (metadata.Record, error) {
	f, err := os.Open(filepath.Join(path, "DESCRIPTION"))
	if err != nil {
		f, err = os.Open(path)
		if err != nil {
			return metadata.Record{}, err
		}
	}
	defer f.Close()
	return metadata.ParseRecord(f)
}
