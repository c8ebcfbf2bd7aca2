package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/photo-gallery/internal/client"
	"github.com/yourorg/photo-gallery/internal/list"
	"github.com/yourorg/photo-gallery/internal/token"
	"github.com/yourorg/photo-gallery/internal/viewer"
)

// galleryBackend is a minimal origin covering auth, listing and media bytes.
func galleryBackend() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/auth/token":
			var body struct {
				Password string `json:"password"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			if body.Password != "correct" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"access_token": "tok"}`))
		case r.URL.Path == "/api/media" && r.URL.Query().Get("search") == "":
			w.Write([]byte(`{
				"items": [
					{"uid": "a", "fileType": "image", "url": "/api/media/a",
					 "thumbnailUrl": "/api/thumbnails/a", "mediaCreatedAt": "2024-06-01 10:00:00"},
					{"uid": "b", "fileType": "image", "url": "/api/media/b",
					 "thumbnailUrl": "/api/thumbnails/b", "mediaCreatedAt": "2024-05-30 09:00:00"}
				],
				"total": 2, "page": 1, "pageSize": 50
			}`))
		case r.URL.Path == "/api/media" && r.URL.Query().Get("search") == "cat":
			w.Write([]byte(`{
				"items": [
					{"uid": "c", "fileType": "image", "url": "/api/media/c",
					 "thumbnailUrl": "/api/thumbnails/c", "mediaCreatedAt": "2024-04-01 08:00:00"}
				],
				"total": 1, "page": 1, "pageSize": 50
			}`))
		case r.URL.Path == "/api/media":
			w.Write([]byte(`{"items": [], "total": 0, "page": 1, "pageSize": 50}`))
		case r.URL.Path == "/api/folders":
			w.WriteHeader(http.StatusServiceUnavailable)
		case strings.HasPrefix(r.URL.Path, "/api/thumbnails/"),
			strings.HasPrefix(r.URL.Path, "/api/media/"):
			w.Write([]byte("bytes"))
		default:
			http.NotFound(w, r)
		}
	})
}

func newGateway(t *testing.T) (*gin.Engine, *token.DualStore) {
	t.Helper()
	return newGatewayDebounce(t, 0)
}

func newGatewayDebounce(t *testing.T, debounce time.Duration) (*gin.Engine, *token.DualStore) {
	t.Helper()
	srv := httptest.NewServer(galleryBackend())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	boltDB, err := token.OpenBolt(filepath.Join(dir, "gallery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { boltDB.Close() })
	tokens := token.NewDualStore(token.NewFileStore(filepath.Join(dir, "token.json")), boltDB, zap.NewNop())

	logger := zap.NewNop()
	api := client.New(srv.URL, 5*time.Second, tokens, logger)
	blobs, err := client.NewBlobCache(filepath.Join(dir, "blobs"), api, logger)
	require.NoError(t, err)
	t.Cleanup(blobs.Clear)

	ctrl := list.New(api, list.Options{PageSize: 50, SearchDebounce: debounce}, logger)
	view := viewer.NewSession(ctrl, api, blobs, boltDB, viewer.Options{
		Gesture: viewer.Thresholds{
			Intent: 8, TapSlop: 10, TapMaxDuration: 300 * time.Millisecond,
			Nav: 80, Dismiss: 240, Resistance: 0.35,
		},
	}, logger)

	interceptor := NewInterceptor(srv.URL, mediaPrefixes, boltDB, logger)
	shell := NewShellCache(srv.URL, "/index.html", time.Hour, logger)
	session := NewSessionHandler(api, ctrl, view, logger)
	return NewRouter(interceptor, shell, session, logger), tokens
}

func do(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router, _ := newGateway(t)
	rec := do(router, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginLogout(t *testing.T) {
	router, tokens := newGateway(t)

	rec := do(router, http.MethodPost, "/app/session/login", `{"password": "correct"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	got, err := tokens.Token()
	require.NoError(t, err)
	assert.Equal(t, "tok", got)

	rec = do(router, http.MethodPost, "/app/session/logout", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err = tokens.Token()
	assert.ErrorIs(t, err, token.ErrNoToken)
}

func TestLoginValidation(t *testing.T) {
	router, _ := newGateway(t)

	rec := do(router, http.MethodPost, "/app/session/login", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodPost, "/app/session/login", `{"password": "wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "auth", body["kind"])
}

func TestListMediaGroupsByDate(t *testing.T) {
	router, _ := newGateway(t)

	rec := do(router, http.MethodGet, "/app/session/media", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Groups []struct {
			Key   string `json:"key"`
			Items []struct {
				UID string `json:"uid"`
			} `json:"items"`
		} `json:"groups"`
		Total   int  `json:"total"`
		Page    int  `json:"page"`
		HasMore bool `json:"hasMore"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, 2, body.Total)
	assert.Equal(t, 1, body.Page)
	assert.False(t, body.HasMore, "short page terminates pagination")
	require.Len(t, body.Groups, 2)
	assert.Equal(t, "2024年6月1日", body.Groups[0].Key)
	assert.Equal(t, "a", body.Groups[0].Items[0].UID)
	assert.Equal(t, "2024年5月30日", body.Groups[1].Key)
}

func TestListMediaMonthGranularity(t *testing.T) {
	router, _ := newGateway(t)

	rec := do(router, http.MethodGet, "/app/session/media?granularity=month", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Groups []struct {
			Key string `json:"key"`
		} `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Groups, 2)
	assert.Equal(t, "2024年6月", body.Groups[0].Key)
	assert.Equal(t, "2024年5月", body.Groups[1].Key)
}

// Debounced search driven over a real server: the request that set the
// search text is long gone when the timer fires, and the results must still
// land without an error.
func TestSearchThroughGateway(t *testing.T) {
	router, _ := newGatewayDebounce(t, 40*time.Millisecond)
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/app/session/media?search=cat")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	type listing struct {
		Groups []struct {
			Items []struct {
				UID string `json:"uid"`
			} `json:"items"`
		} `json:"groups"`
		Total int    `json:"total"`
		Error string `json:"error"`
	}
	var last listing
	poll := func() bool {
		resp, err := http.Get(srv.URL + "/app/session/media")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		last = listing{}
		if err := json.NewDecoder(resp.Body).Decode(&last); err != nil {
			return false
		}
		return last.Total == 1
	}
	require.Eventually(t, poll, 2*time.Second, 20*time.Millisecond,
		"debounced search never produced results")

	assert.Empty(t, last.Error)
	require.Len(t, last.Groups, 1)
	assert.Equal(t, "c", last.Groups[0].Items[0].UID)
}

func TestErrorKindMapping(t *testing.T) {
	router, _ := newGateway(t)

	rec := do(router, http.MethodGet, "/app/session/folders", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body["kind"])
}

func TestViewerOpenAndKeyNavigation(t *testing.T) {
	router, _ := newGateway(t)
	do(router, http.MethodGet, "/app/session/media", "") // populate the list

	rec := do(router, http.MethodPost, "/app/session/viewer/open", `{"index": 0}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var state map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, true, state["open"])
	assert.EqualValues(t, 0, state["index"])
	assert.Equal(t, "a", state["uid"])
	assert.Equal(t, "ready", state["state"])

	rec = do(router, http.MethodPost, "/app/session/viewer/key", `{"key": "ArrowRight"}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.EqualValues(t, 1, state["index"])
	assert.Equal(t, "b", state["uid"])

	rec = do(router, http.MethodPost, "/app/session/viewer/key", `{"key": "Escape"}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, false, state["open"])
	assert.EqualValues(t, -1, state["index"])
}

func TestViewerPointerTap(t *testing.T) {
	router, _ := newGateway(t)
	do(router, http.MethodGet, "/app/session/media", "")
	do(router, http.MethodPost, "/app/session/viewer/open", `{"index": 0}`)

	do(router, http.MethodPost, "/app/session/viewer/pointer",
		`{"phase": "down", "x": 100, "y": 100, "at": 1000}`)
	rec := do(router, http.MethodPost, "/app/session/viewer/pointer",
		`{"phase": "up", "x": 102, "y": 101, "at": 1080}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Outcome string `json:"outcome"`
		State   struct {
			Chrome bool `json:"chrome"`
		} `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "tap", body.Outcome)
	assert.False(t, body.State.Chrome, "tap hides the chrome")
}

func TestViewerPointerValidation(t *testing.T) {
	router, _ := newGateway(t)

	rec := do(router, http.MethodPost, "/app/session/viewer/pointer", `{"phase": "wiggle"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScrollEndpoint(t *testing.T) {
	router, _ := newGateway(t)

	rec := do(router, http.MethodPost, "/app/session/media/scroll", `{"remaining": 100}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
