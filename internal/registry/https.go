// https.go implements the Fetcher for https:// and http:// sources:
// repository-hosted tarballs and plain remote-archive URLs.

package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rv-tools/rv/internal/errors"
	"github.com/rv-tools/rv/internal/pkgsource"
)

// HTTPSFetcher fetches packages served over plain HTTP(S): a
// repository's tarball for a resolved Repository source, or the exact
// URL named by a RemoteArchive source.
type HTTPSFetcher struct {
	cache  *Cache
	client *http.Client
}

// NewHTTPSFetcher creates an HTTPS fetcher using the default on-disk
// cache.
func NewHTTPSFetcher() (*HTTPSFetcher, error) {
	cache, err := DefaultCache()
	if err != nil {
		return nil, err
	}
	return &HTTPSFetcher{cache: cache, client: &http.Client{Timeout: 5 * time.Minute}}, nil
}

// Fetch downloads and extracts the tarball named by source, verifying
// integrity if source carries a known SHA.
func (f *HTTPSFetcher) Fetch(ctx context.Context, name string, source pkgsource.Source, destDir string) (string, string, error) {
	url, err := f.tarballURL(ctx, source)
	if err != nil {
		return "", "", errors.NewFetchError(name, source.String(), err)
	}

	cacheKey := f.cacheKey(url)
	cachePath := f.cache.GetPath(cacheKey)

	if !f.cache.Has(cacheKey) {
		if err := f.download(ctx, url, cachePath); err != nil {
			return "", "", errors.NewFetchError(name, source.String(), err)
		}
	}

	integrity, err := ComputeIntegrity(cachePath)
	if err != nil {
		return "", "", errors.NewFetchError(name, source.String(), err)
	}
	if source.SHA != "" && source.SHA != integrity {
		os.Remove(cachePath)
		return "", "", errors.NewFetchError(name, source.String(), fmt.Errorf("integrity mismatch: expected %s, got %s", source.SHA, integrity))
	}

	dir, err := extractTarGz(cachePath, destDir)
	if err != nil {
		return "", "", errors.NewFetchError(name, source.String(), err)
	}
	return dir, integrity, nil
}

// tarballURL determines the download URL for source. The resolver
// always fills Source.URL with the exact tarball path (built from the
// repository base URL plus the index record's own naming convention),
// so both RemoteArchive and Repository sources are used as-is here.
func (f *HTTPSFetcher) tarballURL(ctx context.Context, source pkgsource.Source) (string, error) {
	if source.URL == "" {
		return "", fmt.Errorf("source has no download URL")
	}
	return source.URL, nil
}

// download fetches url into destPath using an atomic temp-then-rename
// write.
func (f *HTTPSFetcher) download(ctx context.Context, url, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write file: %w", err)
	}
	tmp.Close()

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}

func (f *HTTPSFetcher) cacheKey(url string) string {
	return filepath.Join("https", NormalizeName(GetFilenameFromURL(url))+"-"+shortHash(url)+".tar.gz")
}

// shortHash returns a short hex digest of s, used to disambiguate
// cache keys whose human-readable filename component collides.
func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
