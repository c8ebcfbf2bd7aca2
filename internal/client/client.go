// Package client implements the authenticated gateway to the gallery backend.
// Every request carries the stored bearer token; a 401 clears both token
// stores so the caller can force re-authentication.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/photo-gallery/internal/model"
	"github.com/yourorg/photo-gallery/internal/token"
)

// Sort orders accepted by the backend listing.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
)

// Type filters accepted by the backend listing.
const (
	TypeAll   = "all"
	TypeImage = "image"
	TypeVideo = "video"
)

// defaultAIStartedMessage mirrors the backend convention of an empty 202 body.
const defaultAIStartedMessage = "AI处理任务已在后台启动。"

// ListQuery holds the media listing parameters. Zero values are omitted from
// the request, matching the backend's defaults.
type ListQuery struct {
	Page          int
	PageSize      int
	Sort          string
	Type          string
	FavoritesOnly bool
	Search        string
	Folder        string
}

// Client talks to the gallery backend with bearer authentication.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     token.Store
	logger     *zap.Logger
}

// New creates a gallery backend client.
func New(baseURL string, timeout time.Duration, tokens token.Store, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		tokens: tokens,
		logger: logger,
	}
}

// Login exchanges the gallery password for a bearer token and persists it in
// both stores. A 401 here means a wrong password, not a stale session, so the
// stores are left untouched.
func (c *Client) Login(ctx context.Context, password string) error {
	payload, err := json.Marshal(map[string]string{"password": password})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/auth/token", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &AuthError{Status: resp.StatusCode}
	case resp.StatusCode == http.StatusServiceUnavailable:
		return &ServiceUnavailableError{}
	case resp.StatusCode >= 300:
		return c.backendError(resp)
	}

	// The token field name differs across backend revisions.
	var body struct {
		AccessToken string `json:"access_token"`
		Token       string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	tok := body.AccessToken
	if tok == "" {
		tok = body.Token
	}
	if tok == "" {
		return errors.New("token response contained no token")
	}

	return c.tokens.SetToken(tok)
}

// Logout clears the bearer token from both stores.
func (c *Client) Logout() error {
	return c.tokens.Clear()
}

// FetchMedia retrieves one page of the media listing. The returned order is
// the server-applied sort order and must not be rearranged.
func (c *Client) FetchMedia(ctx context.Context, q ListQuery) (*model.MediaPage, error) {
	query := url.Values{}
	if q.Page > 0 {
		query.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		query.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	if q.Sort != "" {
		query.Set("sort", q.Sort)
	}
	if q.Type != "" && q.Type != TypeAll {
		query.Set("type", q.Type)
	}
	if q.FavoritesOnly {
		query.Set("favoritesOnly", "true")
	}
	if q.Search != "" {
		query.Set("search", q.Search)
	}
	if q.Folder != "" {
		query.Set("folder", q.Folder)
	}

	resp, err := c.request(ctx, http.MethodGet, "/api/media?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var page model.MediaPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode media page: %w", err)
	}
	return &page, nil
}

// SetFavorite marks or unmarks a media item as favorite.
func (c *Client) SetFavorite(ctx context.Context, uid string, favorite bool) error {
	method := http.MethodPost
	if !favorite {
		method = http.MethodDelete
	}
	resp, err := c.request(ctx, method, "/api/media/"+url.PathEscape(uid)+"/favorite", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// FetchFolders retrieves the ordered folder path list.
func (c *Client) FetchFolders(ctx context.Context) ([]string, error) {
	resp, err := c.request(ctx, http.MethodGet, "/api/folders", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var folders []string
	if err := json.NewDecoder(resp.Body).Decode(&folders); err != nil {
		return nil, fmt.Errorf("decode folders: %w", err)
	}
	return folders, nil
}

// TriggerAIProcessing asks the backend to start its tagging run. The accepted
// response may carry no body; callers always get a displayable message.
func (c *Client) TriggerAIProcessing(ctx context.Context) (string, error) {
	resp, err := c.request(ctx, http.MethodPost, "/api/ai/process", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Message == "" {
		return defaultAIStartedMessage, nil
	}
	return body.Message, nil
}

// Request performs an authenticated request against an absolute backend path.
// It exists for callers that fetch raw media bytes (previews, blobs).
func (c *Client) Request(ctx context.Context, method, path string) (*http.Response, error) {
	return c.request(ctx, method, path, nil)
}

// request wraps every backend call with the bearer token and the shared error
// taxonomy. A 401 clears both token stores before surfacing AuthError.
func (c *Client) request(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	tok, err := c.tokens.Token()
	if err != nil && !errors.Is(err, token.ErrNoToken) {
		return nil, err
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		resp.Body.Close()
		c.logger.Warn("backend returned 401, clearing stored token",
			zap.String("path", path))
		if clearErr := c.tokens.Clear(); clearErr != nil {
			c.logger.Error("failed to clear token stores", zap.Error(clearErr))
		}
		return nil, &AuthError{Status: resp.StatusCode}
	case resp.StatusCode == http.StatusServiceUnavailable:
		resp.Body.Close()
		return nil, &ServiceUnavailableError{}
	case resp.StatusCode >= 300:
		defer resp.Body.Close()
		return nil, c.backendError(resp)
	}

	return resp, nil
}

// backendError extracts the structured message from an error body. The
// backend puts it in detail.error.message, or detail as a bare string.
func (c *Client) backendError(resp *http.Response) error {
	be := &BackendError{Status: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return be
	}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || len(envelope.Detail) == 0 {
		return be
	}

	var detailStr string
	if err := json.Unmarshal(envelope.Detail, &detailStr); err == nil {
		be.Message = detailStr
		return be
	}

	var detailObj struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(envelope.Detail, &detailObj); err == nil {
		be.Message = detailObj.Error.Message
	}
	return be
}
