// s3.go implements the Fetcher for Repository sources whose URL uses
// the s3:// scheme: package tarballs hosted in an S3 bucket.
//
// Authentication uses the AWS SDK default credential chain:
//   - Environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
//   - Shared credentials file (~/.aws/credentials)
//   - IAM role (for EC2/ECS/Lambda)

package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rv-tools/rv/internal/errors"
	"github.com/rv-tools/rv/internal/pkgsource"
)

// S3Fetcher downloads package tarballs from an S3 bucket.
type S3Fetcher struct {
	cache  *Cache
	client *s3.Client
}

// NewS3Fetcher creates an S3 fetcher, loading AWS credentials from the
// SDK's default chain.
func NewS3Fetcher(ctx context.Context) (*S3Fetcher, error) {
	cache, err := DefaultCache()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Fetcher{cache: cache, client: s3.NewFromConfig(cfg)}, nil
}

// Fetch downloads and extracts the tarball named by source.URL
// (s3://bucket/key), verifying integrity if source carries a known
// SHA.
func (f *S3Fetcher) Fetch(ctx context.Context, name string, source pkgsource.Source, destDir string) (string, string, error) {
	bucket, key, err := parseS3URL(source.URL)
	if err != nil {
		return "", "", errors.NewFetchError(name, source.String(), err)
	}

	cacheKey := f.cacheKey(source.URL)
	cachePath := f.cache.GetPath(cacheKey)

	if !f.cache.Has(cacheKey) {
		data, err := f.downloadObject(ctx, bucket, key)
		if err != nil {
			return "", "", errors.NewFetchError(name, source.String(), err)
		}
		if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
			return "", "", errors.NewFetchError(name, source.String(), err)
		}
		if err := os.WriteFile(cachePath, data, 0644); err != nil {
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

func (f *S3Fetcher) downloadObject(ctx context.Context, bucket, key string) ([]byte, error) {
	output, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object s3://%s/%s: %w", bucket, key, err)
	}
	defer output.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, output.Body); err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return buf.Bytes(), nil
}

func (f *S3Fetcher) cacheKey(url string) string {
	return filepath.Join("s3", shortHash(url)+".tar.gz")
}

// parseS3URL parses an S3 URL into bucket and key.
// URL format: s3://bucket/path/to/object
func parseS3URL(rawURL string) (bucket, key string, err error) {
	if !strings.HasPrefix(rawURL, "s3://") {
		return "", "", fmt.Errorf("invalid S3 URL: must start with s3://")
	}

	path := strings.TrimPrefix(rawURL, "s3://")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		return "", "", fmt.Errorf("invalid S3 URL: missing bucket name")
	}

	bucket = parts[0]
	if len(parts) > 1 {
		key = parts[1]
	}
	return bucket, key, nil
}
