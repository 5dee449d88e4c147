// git.go implements the Fetcher for VersionControl sources: cloning a
// branch, tag, or commit from a git remote.
//
// Authentication is handled externally via:
//   - HTTPS: Git credential helpers (configured via git config)
//   - SSH: SSH agent or ~/.ssh keys

package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/rv-tools/rv/internal/errors"
	"github.com/rv-tools/rv/internal/pkgsource"
)

// GitFetcher clones a VersionControl source, caching the clone by
// repository URL and ref so repeated resolves against the same commit
// don't re-clone.
type GitFetcher struct {
	cache *Cache
}

// NewGitFetcher creates a git fetcher using the default on-disk cache.
func NewGitFetcher() (*GitFetcher, error) {
	defaultCache, err := DefaultCache()
	if err != nil {
		return nil, err
	}
	return &GitFetcher{cache: NewCache(defaultCache.GetCacheDir("git"))}, nil
}

// Fetch clones source's repository at the pinned ref into destDir
// (via the fetcher's cache, so a previously seen ref is a local copy
// rather than a re-clone). The returned integrity is the content hash
// of the checked-out tree (with .git stripped), not a git object hash,
// so it composes with the same ComputeIntegrity used by every other
// fetcher.
func (f *GitFetcher) Fetch(ctx context.Context, name string, source pkgsource.Source, destDir string) (string, string, error) {
	if source.Kind != pkgsource.VersionControl {
		return "", "", errors.NewFetchError(name, source.String(), fmt.Errorf("git fetcher cannot handle source kind %s", source.Kind))
	}

	cacheKey := f.cacheKey(source)
	if !f.cache.Has(cacheKey) {
		if err := f.cloneToCache(ctx, source, cacheKey); err != nil {
			return "", "", errors.NewFetchError(name, source.String(), err)
		}
	}

	pkgDir := filepath.Join(destDir, name)
	if err := os.RemoveAll(pkgDir); err != nil && !os.IsNotExist(err) {
		return "", "", errors.NewFetchError(name, source.String(), err)
	}
	if err := copyDir(f.cache.GetPath(cacheKey), pkgDir); err != nil {
		return "", "", errors.NewFetchError(name, source.String(), err)
	}

	integrity, err := ComputeIntegrity(pkgDir)
	if err != nil {
		return "", "", errors.NewFetchError(name, source.String(), err)
	}

	if source.Subdirectory != "" {
		pkgDir = filepath.Join(pkgDir, source.Subdirectory)
	}
	return pkgDir, integrity, nil
}

// cloneToCache performs a shallow clone of source's ref into the
// cache directory keyed by cacheKey.
func (f *GitFetcher) cloneToCache(ctx context.Context, source pkgsource.Source, cacheKey string) error {
	tempDir, err := os.MkdirTemp("", "rv-git-clone-*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	cloneDest := filepath.Join(tempDir, "repo")
	cloneOpts := &git.CloneOptions{
		URL:               source.VCSURL,
		Depth:             1,
		RecurseSubmodules: submoduleRecursion(),
	}

	switch source.VCSRefKind {
	case pkgsource.VCSRefTag:
		cloneOpts.ReferenceName = plumbing.NewTagReferenceName(source.VCSRef)
	case pkgsource.VCSRefBranch:
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(source.VCSRef)
	}

	repo, err := git.PlainCloneContext(ctx, cloneDest, false, cloneOpts)
	if err != nil {
		return fmt.Errorf("failed to clone %s: %w", source.VCSURL, err)
	}

	if source.VCSRefKind == pkgsource.VCSRefCommit && source.CommitSHA != "" {
		wt, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("failed to open worktree: %w", err)
		}
		if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(source.CommitSHA)}); err != nil {
			return fmt.Errorf("failed to checkout commit %s: %w", source.CommitSHA, err)
		}
	}

	if err := os.RemoveAll(filepath.Join(cloneDest, ".git")); err != nil {
		return fmt.Errorf("failed to remove .git directory: %w", err)
	}

	cachePath := f.cache.GetPath(cacheKey)
	if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	return copyDir(cloneDest, cachePath)
}

// submoduleRecursion resolves whether a clone recurses into
// submodules: on by default, disabled by setting RV_VCS_NO_SUBMODULES.
func submoduleRecursion() git.SubmoduleRescursivity {
	if os.Getenv("RV_VCS_NO_SUBMODULES") != "" {
		return git.NoRecurseSubmodules
	}
	return git.DefaultSubmoduleRecursionDepth
}

// cacheKey returns a unique cache key for a VCS source's repo+ref.
func (f *GitFetcher) cacheKey(source pkgsource.Source) string {
	ref := string(source.VCSRefKind) + "=" + source.VCSRef
	if source.CommitSHA != "" {
		ref = "commit=" + source.CommitSHA
	}
	return NormalizeName(GetFilenameFromURL(source.VCSURL)) + "-" + shortHash(source.VCSURL+"#"+ref)
}
