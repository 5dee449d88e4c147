// local.go implements the Fetcher for LocalPath sources: a package
// read directly from a directory already on disk.

package registry

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rv-tools/rv/internal/errors"
	"github.com/rv-tools/rv/internal/pkgsource"
)

// LocalFetcher makes a LocalPath source available by resolving it to
// an absolute path and returning it directly; the sync engine's
// link-mode strategy handles materializing it into the library, so no
// copy happens here.
type LocalFetcher struct{}

// NewLocalFetcher creates a local-path fetcher.
func NewLocalFetcher() *LocalFetcher {
	return &LocalFetcher{}
}

// Fetch resolves source.Path to an absolute directory and computes
// its content integrity. destDir is unused: a local path is already
// materialized on disk, so nothing is copied into it.
func (f *LocalFetcher) Fetch(ctx context.Context, name string, source pkgsource.Source, destDir string) (string, string, error) {
	if source.Kind != pkgsource.LocalPath {
		return "", "", errors.NewFetchError(name, source.String(), os.ErrInvalid)
	}

	absPath, err := resolveLocalPath(source.Path)
	if err != nil {
		return "", "", errors.NewFetchError(name, source.String(), err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", "", errors.NewFetchError(name, source.String(), err)
	}
	if !info.IsDir() {
		return "", "", errors.NewFetchError(name, source.String(), os.ErrInvalid)
	}

	integrity, err := ComputeIntegrity(absPath)
	if err != nil {
		// Non-fatal: a local path's integrity may legitimately change
		// between resolves (it's meant for active local development).
		integrity = ""
	}

	return absPath, integrity, nil
}

// resolveLocalPath resolves a local path to an absolute path, relative
// to the current working directory if not already absolute.
func resolveLocalPath(path string) (string, error) {
	path = filepath.Clean(path)
	if filepath.IsAbs(path) {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, path), nil
}
