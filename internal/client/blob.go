package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"go.uber.org/zap"
)

// BlobCache resolves authenticated media URLs into local files, the way the
// browser client turned fetched bytes into object URLs for elements that
// cannot carry an Authorization header. Entries live until released; the
// viewer releases everything outside its prev/active/next window.
type BlobCache struct {
	dir    string
	client *Client
	logger *zap.Logger

	mu    sync.Mutex
	paths map[string]string
}

// NewBlobCache creates a blob cache rooted at dir.
func NewBlobCache(dir string, client *Client, logger *zap.Logger) (*BlobCache, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &BlobCache{
		dir:    dir,
		client: client,
		logger: logger,
		paths:  make(map[string]string),
	}, nil
}

// Fetch downloads the authenticated resource at path and returns a local file
// reference keyed by key. A second Fetch with the same key reuses the file.
func (b *BlobCache) Fetch(ctx context.Context, key, path string) (string, error) {
	b.mu.Lock()
	if local, ok := b.paths[key]; ok {
		b.mu.Unlock()
		return local, nil
	}
	b.mu.Unlock()

	resp, err := b.client.Request(ctx, http.MethodGet, path)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	f, err := os.CreateTemp(b.dir, "blob-*")
	if err != nil {
		return "", fmt.Errorf("create blob file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close blob: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.paths[key]; ok {
		// Lost a race with a concurrent fetch for the same key.
		_ = os.Remove(f.Name())
		return existing, nil
	}
	b.paths[key] = f.Name()
	return f.Name(), nil
}

// Release drops the cached blob for key and deletes its file.
func (b *BlobCache) Release(key string) {
	b.mu.Lock()
	local, ok := b.paths[key]
	delete(b.paths, key)
	b.mu.Unlock()

	if !ok {
		return
	}
	if err := os.Remove(local); err != nil && !os.IsNotExist(err) {
		b.logger.Warn("failed to remove released blob",
			zap.String("key", key), zap.Error(err))
	}
}

// Held reports whether a blob for key is currently cached.
func (b *BlobCache) Held(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.paths[key]
	return ok
}

// Clear releases every cached blob, used on viewer close and shutdown.
func (b *BlobCache) Clear() {
	b.mu.Lock()
	paths := b.paths
	b.paths = make(map[string]string)
	b.mu.Unlock()

	for key, local := range paths {
		if err := os.Remove(local); err != nil && !os.IsNotExist(err) {
			b.logger.Warn("failed to remove blob on clear",
				zap.String("key", key), zap.Error(err))
		}
	}
}
