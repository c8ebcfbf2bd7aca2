package proxy

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/photo-gallery/internal/client"
	"github.com/yourorg/photo-gallery/internal/grouping"
	"github.com/yourorg/photo-gallery/internal/list"
	"github.com/yourorg/photo-gallery/internal/viewer"
)

// SessionHandler exposes the browsing pipeline to the app shell as a thin
// JSON surface: the shell stays dumb and the list/viewer state machines run
// here.
type SessionHandler struct {
	api    *client.Client
	ctrl   *list.Controller
	view   *viewer.Session
	logger *zap.Logger
}

// NewSessionHandler creates the shell-facing session handler.
func NewSessionHandler(api *client.Client, ctrl *list.Controller, view *viewer.Session, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{api: api, ctrl: ctrl, view: view, logger: logger}
}

// Register mounts the session routes.
func (h *SessionHandler) Register(r *gin.RouterGroup) {
	r.POST("/login", h.login)
	r.POST("/logout", h.logout)

	r.GET("/media", h.listMedia)
	r.POST("/media/more", h.loadMore)
	r.POST("/media/scroll", h.scroll)
	r.POST("/media/:uid/favorite", h.toggleFavorite)

	r.GET("/folders", h.folders)
	r.POST("/ai/process", h.aiProcess)

	r.POST("/viewer/open", h.viewerOpen)
	r.POST("/viewer/key", h.viewerKey)
	r.POST("/viewer/pointer", h.viewerPointer)
	r.POST("/viewer/close", h.viewerClose)
	r.GET("/viewer", h.viewerState)
}

func (h *SessionHandler) login(c *gin.Context) {
	var body struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}
	if err := h.api.Login(c.Request.Context(), body.Password); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) logout(c *gin.Context) {
	if err := h.api.Logout(); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// listMedia applies the requested filters (each setter no-ops when its value
// is unchanged, so repeated polls are cheap) and returns the grouped list.
func (h *SessionHandler) listMedia(c *gin.Context) {
	ctx := c.Request.Context()

	if v, ok := c.GetQuery("type"); ok {
		h.ctrl.SetType(ctx, v)
	}
	if v, ok := c.GetQuery("sort"); ok {
		h.ctrl.SetSort(ctx, v)
	}
	if v, ok := c.GetQuery("favoritesOnly"); ok {
		h.ctrl.SetFavoritesOnly(ctx, v == "true")
	}
	if v, ok := c.GetQuery("folder"); ok {
		h.ctrl.SetFolder(ctx, v)
	}
	if v, ok := c.GetQuery("search"); ok {
		h.ctrl.SetSearch(ctx, v)
	}

	// First listing request: nothing has triggered a load yet. LoadMore is
	// guarded, so this cannot double-fetch; a pending search debounce keeps
	// ownership of its own first fetch.
	if h.ctrl.Page() == 0 && !h.ctrl.Loading() && h.ctrl.Err() == nil && h.ctrl.Query().Search == "" {
		h.ctrl.LoadMore(ctx)
	}

	granularity := grouping.Granularity(c.DefaultQuery("granularity", string(grouping.ByDay)))
	h.writeListing(c, granularity)
}

func (h *SessionHandler) loadMore(c *gin.Context) {
	h.ctrl.LoadMore(c.Request.Context())
	h.writeListing(c, grouping.Granularity(c.DefaultQuery("granularity", string(grouping.ByDay))))
}

func (h *SessionHandler) scroll(c *gin.Context) {
	var body struct {
		Remaining int `json:"remaining"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "remaining is required"})
		return
	}
	h.ctrl.OnScroll(c.Request.Context(), body.Remaining)
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) toggleFavorite(c *gin.Context) {
	if err := h.ctrl.ToggleFavorite(c.Request.Context(), c.Param("uid")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) folders(c *gin.Context) {
	folders, err := h.api.FetchFolders(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, folders)
}

func (h *SessionHandler) aiProcess(c *gin.Context) {
	message, err := h.api.TriggerAIProcessing(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": message})
}

func (h *SessionHandler) viewerOpen(c *gin.Context) {
	var body struct {
		Index *int `json:"index" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "index is required"})
		return
	}
	h.view.Open(c.Request.Context(), *body.Index)
	h.writeViewerState(c)
}

func (h *SessionHandler) viewerKey(c *gin.Context) {
	var body struct {
		Key string `json:"key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key is required"})
		return
	}
	h.view.HandleKey(c.Request.Context(), body.Key)
	h.writeViewerState(c)
}

func (h *SessionHandler) viewerPointer(c *gin.Context) {
	var body struct {
		Phase string  `json:"phase" binding:"required,oneof=down move up cancel"`
		X     float64 `json:"x"`
		Y     float64 `json:"y"`
		At    int64   `json:"at"` // unix milliseconds
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "phase must be down, move, up or cancel"})
		return
	}

	at := timeFromMillis(body.At)
	switch body.Phase {
	case "down":
		h.view.PointerDown(body.X, body.Y, at)
		h.writeViewerState(c)
	case "move":
		offset := h.view.PointerMove(body.X, body.Y)
		c.JSON(http.StatusOK, gin.H{
			"offset":             offset,
			"transitionsEnabled": h.view.Gesture().TransitionsEnabled(),
		})
	case "up":
		outcome := h.view.PointerUp(c.Request.Context(), body.X, body.Y, at)
		h.view.SettleDone()
		c.JSON(http.StatusOK, gin.H{
			"outcome": outcomeName(outcome),
			"state":   h.viewerStateBody(),
		})
	case "cancel":
		h.view.Gesture().Cancel()
		h.writeViewerState(c)
	}
}

func (h *SessionHandler) viewerClose(c *gin.Context) {
	h.view.Close()
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) viewerState(c *gin.Context) {
	h.writeViewerState(c)
}

func (h *SessionHandler) writeListing(c *gin.Context, granularity grouping.Granularity) {
	items := h.ctrl.Items()
	groups := grouping.GroupByDate(items, granularity)

	resp := gin.H{
		"groups":  groups,
		"total":   len(items),
		"page":    h.ctrl.Page(),
		"hasMore": h.ctrl.HasMore(),
		"loading": h.ctrl.Loading(),
	}
	if err := h.ctrl.Err(); err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SessionHandler) writeViewerState(c *gin.Context) {
	c.JSON(http.StatusOK, h.viewerStateBody())
}

func (h *SessionHandler) viewerStateBody() gin.H {
	body := gin.H{
		"open":        !h.view.Closed(),
		"index":       h.view.Index(),
		"chrome":      h.view.ChromeVisible(),
		"detailsOpen": h.view.DetailsOpen(),
		"hint":        h.view.HintVisible(),
	}
	item, ok := h.view.Current()
	if !ok {
		return body
	}
	body["uid"] = item.UID
	body["state"] = stateName(h.view.State(item.UID))
	if src, ok := h.view.Source(item.UID); ok {
		body["source"] = gin.H{
			"placeholderPath": src.PlaceholderPath,
			"localPath":       src.LocalPath,
			"streamUrl":       src.StreamURL,
			"autoplay":        src.Autoplay,
			"muted":           src.Muted,
		}
	}
	if err := h.view.LoadErr(item.UID); err != nil {
		body["error"] = err.Error()
	}
	if details, ok := h.view.Details(); ok {
		body["details"] = details
	}
	return body
}

// writeError maps the gateway error taxonomy onto response codes, keeping
// the message kinds distinguishable for the shell.
func (h *SessionHandler) writeError(c *gin.Context, err error) {
	var backendErr *client.BackendError
	switch {
	case client.IsAuthError(err):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "kind": "auth"})
	case client.IsServiceUnavailable(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "kind": "unavailable"})
	case errors.As(err, &backendErr):
		c.JSON(backendErr.Status, gin.H{"error": backendErr.Error(), "kind": "backend"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "kind": "network"})
	}
}

func stateName(s viewer.LoadState) string {
	switch s {
	case viewer.StateLoadingPlaceholder:
		return "loadingPlaceholder"
	case viewer.StateLoadingFull:
		return "loadingFull"
	case viewer.StateReady:
		return "ready"
	case viewer.StateError:
		return "error"
	default:
		return "idle"
	}
}

func outcomeName(o viewer.Outcome) string {
	switch o {
	case viewer.OutcomeTap:
		return "tap"
	case viewer.OutcomeNavigatePrev:
		return "navigatePrev"
	case viewer.OutcomeNavigateNext:
		return "navigateNext"
	case viewer.OutcomeDismiss:
		return "dismiss"
	case viewer.OutcomeSnapBack:
		return "snapBack"
	default:
		return "none"
	}
}

// timeFromMillis converts the shell's event timestamp; 0 means "now".
func timeFromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
