// azure.go implements the Fetcher for Repository sources whose URL
// uses the az:// scheme: package tarballs hosted in Azure Blob
// Storage.
//
// Authentication uses the Azure SDK default credential chain:
//   - Environment variables (AZURE_TENANT_ID, AZURE_CLIENT_ID, AZURE_CLIENT_SECRET)
//   - Managed Identity (for Azure VMs, App Service, etc.)
//   - Azure CLI credentials

package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/rv-tools/rv/internal/errors"
	"github.com/rv-tools/rv/internal/pkgsource"
)

// AzureFetcher downloads package tarballs from Azure Blob Storage.
type AzureFetcher struct {
	cache *Cache
}

// NewAzureFetcher creates an Azure Blob Storage fetcher, resolving
// credentials via the SDK's default credential chain.
func NewAzureFetcher() (*AzureFetcher, error) {
	cache, err := DefaultCache()
	if err != nil {
		return nil, err
	}
	return &AzureFetcher{cache: cache}, nil
}

// Fetch downloads and extracts the tarball named by source.URL
// (az://account/container/path), verifying integrity if source
// carries a known SHA.
func (f *AzureFetcher) Fetch(ctx context.Context, name string, source pkgsource.Source, destDir string) (string, string, error) {
	account, container, blobPath, err := parseAzureURL(source.URL)
	if err != nil {
		return "", "", errors.NewFetchError(name, source.String(), err)
	}

	cacheKey := f.cacheKey(source.URL)
	cachePath := f.cache.GetPath(cacheKey)

	if !f.cache.Has(cacheKey) {
		data, err := f.downloadBlob(ctx, account, container, blobPath)
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

func (f *AzureFetcher) downloadBlob(ctx context.Context, account, container, blobPath string) ([]byte, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net", account)
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}

	resp, err := client.DownloadStream(ctx, container, blobPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download blob az://%s/%s/%s: %w", account, container, blobPath, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return buf.Bytes(), nil
}

func (f *AzureFetcher) cacheKey(url string) string {
	return filepath.Join("azure", shortHash(url)+".tar.gz")
}

// parseAzureURL parses an Azure Blob Storage URL into account,
// container, and blob path. URL format: az://account/container/path
func parseAzureURL(rawURL string) (account, container, blobPath string, err error) {
	if !strings.HasPrefix(rawURL, "az://") {
		return "", "", "", fmt.Errorf("invalid Azure URL: must start with az://")
	}

	path := strings.TrimPrefix(rawURL, "az://")
	parts := strings.SplitN(path, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("invalid Azure URL: must be az://account/container[/path]")
	}

	account = parts[0]
	container = parts[1]
	if len(parts) > 2 {
		blobPath = parts[2]
	}
	return account, container, blobPath, nil
}
