// Package pdf covers the document side of a batch run: label
// enrichment, placeholder and insert page generation, and final
// assembly of everything into one printable document.
package pdf

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// AssetCache fetches overlay images (logo, recycling mark, collection
// barcode) and caches them for the life of the process. The assets are
// static CDN files, so one fetch per URL is enough; without the cache a
// batch of N labels would fetch the same logo N times.
type AssetCache struct {
	httpClient *http.Client

	mu    sync.Mutex
	cache map[string][]byte
}

// NewAssetCache creates an asset cache with a bounded fetch timeout.
func NewAssetCache(timeout time.Duration) *AssetCache {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &AssetCache{
		httpClient: &http.Client{Timeout: timeout},
		cache:      make(map[string][]byte),
	}
}

// Fetch returns the bytes at url, from cache when possible.
func (c *AssetCache) Fetch(ctx context.Context, url string) ([]byte, error) {
	c.mu.Lock()
	if data, ok := c.cache[url]; ok {
		c.mu.Unlock()
		return data, nil
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building asset request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching asset %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("asset %s returned %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading asset %s: %w", url, err)
	}

	c.mu.Lock()
	c.cache[url] = data
	c.mu.Unlock()
	return data, nil
}

// Put pre-populates the cache; used in tests to avoid network fetches.
func (c *AssetCache) Put(url string, data []byte) {
	c.mu.Lock()
	c.cache[url] = data
	c.mu.Unlock()
}
