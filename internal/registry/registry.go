// Package registry implements the repository database (fetching and
// parsing a repository's PACKAGES index) and the per-source-kind
// fetchers that materialize a resolved package onto local disk.
//
// A repository exposes two index flavors at well-known paths relative
// to its base URL:
//
//	<baseURL>/src/PACKAGES                 - source packages
//	<baseURL>/<platform-tag>/PACKAGES       - prebuilt binaries for one platform
//
// Both are parsed with internal/metadata. Binary entries are preferred
// over source entries when both are available for the same name and
// version (see Database.Lookup).
package registry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rv-tools/rv/internal/errors"
	"github.com/rv-tools/rv/internal/metadata"
	"github.com/rv-tools/rv/internal/pkgsource"
	"github.com/rv-tools/rv/pkg/version"
)

// Fetcher materializes one resolved source onto local disk. Every
// source kind (repository, version control, local path, remote
// archive, builtin) has exactly one Fetcher implementation.
type Fetcher interface {
	// Fetch makes source available under destDir and returns the
	// directory actually containing the package contents (which may be
	// a subdirectory of destDir) along with a content-integrity string.
	// name identifies the package being fetched, for error reporting.
	Fetch(ctx context.Context, name string, source pkgsource.Source, destDir string) (dir string, integrity string, err error)
}

// Entry is one candidate package version found in a repository index,
// tagged with the repository kind (source or binary) it came from.
type Entry struct {
	Record   metadata.Record
	RepoKind pkgsource.RepoKind
}

// Database is a repository's index: the set of package/version
// entries it advertises, fetched from its source and (optionally)
// binary PACKAGES files.
type Database struct {
	Alias   string
	BaseURL string

	cache  *Cache
	client *http.Client
	ttl    time.Duration
}

// NewDatabase creates a repository database client for a configured
// repository alias and base URL (e.g. "https://cran.example").
func NewDatabase(alias, baseURL string) (*Database, error) {
	if !strings.HasPrefix(baseURL, "https://") && !strings.HasPrefix(baseURL, "http://") {
		return nil, errors.NewRegistryError(alias, "connect", fmt.Errorf("unsupported repository URL scheme: %s", baseURL))
	}
	cache, err := DefaultCache()
	if err != nil {
		return nil, errors.NewRegistryError(alias, "connect", err)
	}
	return &Database{
		Alias:   alias,
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		cache:   cache,
		client:  &http.Client{Timeout: 30 * time.Second},
		ttl:     TTL(),
	}, nil
}

// SourceIndex fetches and parses the repository's source-package
// index (<BaseURL>/src/PACKAGES).
func (d *Database) SourceIndex(ctx context.Context) ([]metadata.Record, error) {
	return d.fetchIndex(ctx, d.BaseURL+"/src/PACKAGES", "src")
}

// BinaryIndex fetches and parses the repository's binary-package
// index for one platform tag (<BaseURL>/<platformTag>/PACKAGES).
func (d *Database) BinaryIndex(ctx context.Context, platformTag string) ([]metadata.Record, error) {
	return d.fetchIndex(ctx, d.BaseURL+"/"+platformTag+"/PACKAGES", platformTag)
}

// fetchIndex downloads a PACKAGES file (using the on-disk cache keyed
// by alias+flavor) and parses it into records. A cache entry fresh
// within the configured TTL skips the network round trip entirely;
// otherwise a conditional GET (If-None-Match) still avoids re-downloading
// an unchanged body.
func (d *Database) fetchIndex(ctx context.Context, url, flavor string) ([]metadata.Record, error) {
	cacheKey := d.indexCacheKey(flavor)

	if d.cache.Fresh(cacheKey, d.ttl) {
		if data, err := d.cache.ReadCachedBody(cacheKey); err == nil {
			return metadata.ParseIndex(strings.NewReader(string(data)))
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.NewRegistryError(d.Alias, "fetch", err)
	}

	if etag, ok := d.cache.ReadETag(cacheKey); ok {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, errors.NewRegistryError(d.Alias, "fetch", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		d.cache.Touch(cacheKey)
		data, err := d.cache.ReadCachedBody(cacheKey)
		if err != nil {
			return nil, errors.NewRegistryError(d.Alias, "fetch", err)
		}
		return metadata.ParseIndex(strings.NewReader(string(data)))
	case http.StatusOK:
		if err := d.cache.WriteCachedResponse(cacheKey, resp); err != nil {
			return nil, errors.NewRegistryError(d.Alias, "fetch", err)
		}
		data, err := d.cache.ReadCachedBody(cacheKey)
		if err != nil {
			return nil, errors.NewRegistryError(d.Alias, "fetch", err)
		}
		return metadata.ParseIndex(strings.NewReader(string(data)))
	case http.StatusNotFound:
		return nil, errors.NewNotFoundError("PACKAGES index", url)
	default:
		return nil, errors.NewRegistryError(d.Alias, "fetch", fmt.Errorf("HTTP %d fetching %s", resp.StatusCode, url))
	}
}

func (d *Database) indexCacheKey(flavor string) string {
	return "index/" + NormalizeName(d.Alias) + "/" + flavor
}

// Candidate is one resolvable (name, version) pair found in this
// database, with enough information to build a pkgsource.Source for
// it.
type Candidate struct {
	Name     string
	Version  version.Version
	RepoKind pkgsource.RepoKind
	Record   metadata.Record
}

// TarballURL returns the URL a candidate's tarball should be fetched
// from. A record carrying an explicit "File" field in Extra overrides
// the naming convention (<name>_<version>.tar.gz under the src/ or
// platform-tag/ directory, matching the index it was found in).
func (d *Database) TarballURL(c Candidate, platformTag string) string {
	if file, ok := c.Record.Extra["File"]; ok && file != "" {
		return d.BaseURL + "/" + flavorPath(c.RepoKind, platformTag) + "/" + file
	}
	ext := ".tar.gz"
	if c.RepoKind == pkgsource.RepoKindBinary {
		ext = archiveExtFor(platformTag)
	}
	filename := fmt.Sprintf("%s_%s%s", c.Name, c.Version.String(), ext)
	return d.BaseURL + "/" + flavorPath(c.RepoKind, platformTag) + "/" + filename
}

func flavorPath(kind pkgsource.RepoKind, platformTag string) string {
	if kind == pkgsource.RepoKindBinary {
		return platformTag
	}
	return "src"
}

// archiveExtFor returns the conventional binary archive extension for a
// platform tag (Windows binaries ship as zip, everything else as a
// gzipped tarball).
func archiveExtFor(platformTag string) string {
	if strings.HasPrefix(platformTag, "windows") {
		return ".zip"
	}
	return ".tar.gz"
}

// Lookup returns every candidate for name available across the
// supplied source and binary indexes, with binary candidates preceding
// source candidates at the same version (binary-over-source
// preference, broken by the caller choosing the first match).
func Lookup(name string, sourceIdx, binaryIdx []metadata.Record) []Candidate {
	var out []Candidate
	for _, rec := range binaryIdx {
		if rec.Package == name {
			out = append(out, Candidate{Name: name, Version: rec.Version, RepoKind: pkgsource.RepoKindBinary, Record: rec})
		}
	}
	for _, rec := range sourceIdx {
		if rec.Package == name {
			out = append(out, Candidate{Name: name, Version: rec.Version, RepoKind: pkgsource.RepoKindSource, Record: rec})
		}
	}
	return out
}
