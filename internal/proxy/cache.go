package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// cachedAsset is one shell asset held in memory.
type cachedAsset struct {
	Body        []byte
	ContentType string
}

// ShellCache serves the application shell cache-first with network fallback.
// Navigation requests fall back to the cached shell document when the origin
// is unreachable, so the UI frame loads offline.
type ShellCache struct {
	baseURL    string
	indexPath  string
	httpClient *http.Client
	mem        *gocache.Cache
	logger     *zap.Logger
}

// NewShellCache creates a shell cache over the given origin. ttl bounds how
// long assets are served without revalidation; expired entries are refetched
// on demand.
func NewShellCache(baseURL, indexPath string, ttl time.Duration, logger *zap.Logger) *ShellCache {
	return &ShellCache{
		baseURL:   baseURL,
		indexPath: indexPath,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		mem:    gocache.New(ttl, 2*ttl),
		logger: logger,
	}
}

// Serve handles one shell request: cached copy first, network on miss, and
// for navigation requests the cached shell document when the network fails.
// Only GETs are cacheable; anything else is refused here.
func (s *ShellCache) Serve(c *gin.Context) {
	if c.Request.Method != http.MethodGet {
		c.Status(http.StatusMethodNotAllowed)
		return
	}
	path := c.Request.URL.Path

	if asset, ok := s.lookup(path); ok {
		s.write(c, asset, true)
		return
	}

	asset, err := s.fetch(c.Request.Context(), path)
	if err == nil {
		s.write(c, asset, false)
		return
	}

	if isNavigation(c.Request) {
		if asset, ok := s.lookup(s.indexPath); ok {
			s.logger.Debug("serving cached shell for offline navigation",
				zap.String("path", path))
			s.write(c, asset, true)
			return
		}
	}

	s.logger.Warn("shell asset unavailable", zap.String("path", path), zap.Error(err))
	c.Status(http.StatusBadGateway)
}

// Warm preloads the shell assets into the cache, retrying each with
// exponential backoff so a briefly unreachable origin does not leave the
// offline shell empty.
func (s *ShellCache) Warm(ctx context.Context, assets []string) {
	for _, path := range assets {
		path := path
		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
		err := backoff.Retry(func() error {
			_, err := s.fetch(ctx, path)
			return err
		}, policy)
		if err != nil {
			s.logger.Warn("failed to warm shell asset",
				zap.String("path", path), zap.Error(err))
			continue
		}
		s.logger.Debug("shell asset warmed", zap.String("path", path))
	}
}

func (s *ShellCache) lookup(path string) (cachedAsset, bool) {
	if v, ok := s.mem.Get(cacheKey(path)); ok {
		return v.(cachedAsset), true
	}
	return cachedAsset{}, false
}

// fetch retrieves the asset from the origin and stores it on success.
func (s *ShellCache) fetch(ctx context.Context, path string) (cachedAsset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return cachedAsset{}, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return cachedAsset{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return cachedAsset{}, fmt.Errorf("shell origin returned %d for %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return cachedAsset{}, err
	}
	asset := cachedAsset{
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}
	s.mem.SetDefault(cacheKey(path), asset)
	return asset, nil
}

func (s *ShellCache) write(c *gin.Context, asset cachedAsset, hit bool) {
	if asset.ContentType != "" {
		c.Header("Content-Type", asset.ContentType)
	}
	if hit {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.Status(http.StatusOK)
	_, _ = c.Writer.Write(asset.Body)
}

// isNavigation approximates the browser's navigate mode: a document request.
func isNavigation(r *http.Request) bool {
	if dest := r.Header.Get("Sec-Fetch-Mode"); dest == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func cacheKey(path string) string {
	return "shell:" + path
}
