// Package proxy is the local gallery gateway: it stands between the app
// shell and the backend the way the original service worker did, injecting
// the bearer token into protected media requests and keeping the shell
// loadable offline.
package proxy

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/photo-gallery/internal/token"
)

// Interceptor proxies /api traffic to the backend. GET requests for
// protected media paths get the bearer token from the durable store injected
// transparently, so <img> and <video> elements can stream authenticated
// content directly. Everything else passes through untouched apart from
// standard forwarding headers; non-GET requests are never mutated.
type Interceptor struct {
	baseURL    string
	httpClient *http.Client
	tokens     token.Store
	prefixes   []string
	logger     *zap.Logger
}

// NewInterceptor creates the proxying interceptor. tokens is the structured
// store the background context reads; the foreground file store is not
// reachable from here.
func NewInterceptor(baseURL string, prefixes []string, tokens token.Store, logger *zap.Logger) *Interceptor {
	return &Interceptor{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		tokens:   tokens,
		prefixes: prefixes,
		logger:   logger,
	}
}

// Matches reports whether path is a protected media path.
func (i *Interceptor) Matches(path string) bool {
	for _, prefix := range i.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Handle proxies one request to the backend.
func (i *Interceptor) Handle(c *gin.Context) {
	targetURL, err := url.Parse(i.baseURL)
	if err != nil {
		i.logger.Error("failed to parse backend URL", zap.Error(err), zap.String("baseURL", i.baseURL))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "gateway configuration error"})
		return
	}
	targetURL.Path = c.Request.URL.Path
	targetURL.RawQuery = c.Request.URL.RawQuery

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method,
		targetURL.String(), c.Request.Body)
	if err != nil {
		i.logger.Error("failed to create upstream request", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	for key, values := range c.Request.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("X-Forwarded-For", c.ClientIP())
	req.Header.Set("X-Forwarded-Host", c.Request.Host)

	if c.Request.Method == http.MethodGet && i.Matches(c.Request.URL.Path) {
		i.injectToken(req)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		i.logger.Error("failed to proxy request",
			zap.Error(err),
			zap.String("url", targetURL.String()))
		c.JSON(http.StatusBadGateway, gin.H{"error": "service unavailable"})
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, value := range values {
			c.Header(key, value)
		}
	}
	c.Status(resp.StatusCode)

	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		// Response already started, nothing useful left to send.
		i.logger.Error("failed to copy upstream body", zap.Error(err))
	}
}

// injectToken adds the Authorization header when a token is stored. With no
// token the request proceeds unauthenticated and the backend's 401 drives
// the normal re-login path.
func (i *Interceptor) injectToken(req *http.Request) {
	tok, err := i.tokens.Token()
	if err != nil {
		if !errors.Is(err, token.ErrNoToken) {
			i.logger.Warn("token store unreadable, passing request through", zap.Error(err))
		}
		return
	}
	req.Header.Set("Authorization", "Bearer "+tok)
}
