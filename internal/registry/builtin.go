// builtin.go implements the Fetcher for Builtin sources: packages
// bundled with the platform installation itself rather than fetched
// from any external location.

package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rv-tools/rv/internal/errors"
	"github.com/rv-tools/rv/internal/metadata"
	"github.com/rv-tools/rv/internal/pkgsource"
	"github.com/rv-tools/rv/pkg/version"
)

// BuiltinFetcher resolves a Builtin source to its location under the
// platform installation's own library directory.
type BuiltinFetcher struct {
	// PlatformLibDir is the directory containing the platform's bundled
	// packages (e.g. "$R_HOME/library").
	PlatformLibDir string
}

// NewBuiltinFetcher creates a fetcher rooted at the platform's bundled
// package directory.
func NewBuiltinFetcher(platformLibDir string) *BuiltinFetcher {
	return &BuiltinFetcher{PlatformLibDir: platformLibDir}
}

// Fetch locates name under the platform library directory; builtins
// are never copied or linked by the sync engine, only verified
// present, so destDir is unused.
func (f *BuiltinFetcher) Fetch(ctx context.Context, name string, source pkgsource.Source, destDir string) (string, string, error) {
	if source.Kind != pkgsource.Builtin {
		return "", "", errors.NewFetchError(name, source.String(), fmt.Errorf("builtin fetcher cannot handle source kind %s", source.Kind))
	}

	dir := filepath.Join(f.PlatformLibDir, name)
	if _, err := os.Stat(dir); err != nil {
		return "", "", errors.NewFetchError(name, source.String(), err)
	}

	integrity, err := ComputeIntegrity(dir)
	if err != nil {
		integrity = ""
	}
	return dir, integrity, nil
}

// PlatformIndex implements resolver.BuiltinIndex by scanning a
// platform library directory once at construction time, reading each
// package subdirectory's DESCRIPTION file for its bundled version.
type PlatformIndex struct {
	versions map[string]version.Version
}

// ScanPlatformIndex walks platformLibDir's immediate subdirectories,
// parsing each one's DESCRIPTION file. A subdirectory with no
// DESCRIPTION, or one that fails to parse, is skipped rather than
// treated as an error: a platform library directory routinely holds
// non-package entries (translations, meta files).
func ScanPlatformIndex(platformLibDir string) (*PlatformIndex, error) {
	idx := &PlatformIndex{versions: make(map[string]version.Version)}

	entries, err := os.ReadDir(platformLibDir)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		f, err := os.Open(filepath.Join(platformLibDir, entry.Name(), "DESCRIPTION"))
		if err != nil {
			continue
		}
		rec, err := metadata.ParseRecord(f)
		f.Close()
		if err != nil {
			continue
		}
		idx.versions[rec.Package] = rec.Version
	}

	return idx, nil
}

// Lookup implements resolver.BuiltinIndex.
func (p *PlatformIndex) Lookup(name string) (version.Version, bool) {
	v, ok := p.versions[name]
	return v, ok
}
