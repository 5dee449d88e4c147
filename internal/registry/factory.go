package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/rv-tools/rv/internal/pkgsource"
)

// NewFetcher returns the Fetcher implementation responsible for
// source's kind. For Repository and RemoteArchive sources, the URL
// scheme further selects among https/http, s3, and az transports.
// platformLibDir is only consulted for Builtin sources.
func NewFetcher(ctx context.Context, source pkgsource.Source, platformLibDir string) (Fetcher, error) {
	switch source.Kind {
	case pkgsource.VersionControl:
		return NewGitFetcher()

	case pkgsource.LocalPath:
		return NewLocalFetcher(), nil

	case pkgsource.Builtin:
		return NewBuiltinFetcher(platformLibDir), nil

	case pkgsource.Repository, pkgsource.RemoteArchive:
		switch {
		case strings.HasPrefix(source.URL, "https://") || strings.HasPrefix(source.URL, "http://"):
			return NewHTTPSFetcher()
		case strings.HasPrefix(source.URL, "s3://"):
			return NewS3Fetcher(ctx)
		case strings.HasPrefix(source.URL, "az://"):
			return NewAzureFetcher()
		default:
			return nil, fmt.Errorf("unsupported transport for URL: %s", source.URL)
		}

	default:
		return nil, fmt.Errorf("unsupported source kind: %s", source.Kind)
	}
}
