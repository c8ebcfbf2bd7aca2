// Package list owns the media listing query state: filters, debounced search,
// pagination and optimistic favorite toggling. Loads are cancellable by
// supersession: every filter change starts a new generation, and responses
// from an older generation are discarded on arrival instead of merged.
package list

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/photo-gallery/internal/client"
	"github.com/yourorg/photo-gallery/internal/model"
)

// Fetcher is the backend surface the controller needs.
type Fetcher interface {
	FetchMedia(ctx context.Context, q client.ListQuery) (*model.MediaPage, error)
	SetFavorite(ctx context.Context, uid string, favorite bool) error
}

// Query is the filterable part of the controller state. Any change to it
// invalidates pagination and triggers a reset-and-reload from page 1.
type Query struct {
	Search        string
	Type          string
	Sort          string
	FavoritesOnly bool
	Folder        string
}

// Options tunes the controller.
type Options struct {
	PageSize        int
	SearchDebounce  time.Duration
	ScrollThreshold int
}

// Controller maintains the flat ordered media list.
type Controller struct {
	fetcher Fetcher
	logger  *zap.Logger
	opts    Options

	// baseCtx backs timer-fired loads. The debounce timer outlives the
	// request that scheduled it, so its fetch cannot ride the caller's
	// context.
	baseCtx context.Context

	mu         sync.Mutex
	query      Query
	items      []model.MediaItem
	page       int
	hasMore    bool
	loading    bool
	lastErr    error
	generation int64
	debounce   *time.Timer
}

// New creates a controller. No fetch is issued until the first filter change
// or LoadMore.
func New(fetcher Fetcher, opts Options, logger *zap.Logger) *Controller {
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	return &Controller{
		fetcher: fetcher,
		logger:  logger,
		opts:    opts,
		baseCtx: context.Background(),
		query:   Query{Type: client.TypeAll, Sort: client.SortNewest},
		hasMore: true,
	}
}

// Items returns a snapshot of the current flat list in server order.
func (c *Controller) Items() []model.MediaItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.MediaItem, len(c.items))
	copy(out, c.items)
	return out
}

// Query returns the current filter state.
func (c *Controller) Query() Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query
}

// Loading reports whether a page fetch is in flight.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// HasMore reports whether another page may exist.
func (c *Controller) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

// Page returns the last successfully loaded page number, 0 before any load.
func (c *Controller) Page() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// Err returns the last listing error, nil when healthy. Items loaded before
// the error remain available.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// SetSearch updates the search text. A non-empty search suspends for the
// debounce interval first, so rapid keystrokes collapse into one request;
// each call cancels the previous pending timer. The deferred load runs on
// the controller's own context: the caller's is typically cancelled before
// the timer fires.
func (c *Controller) SetSearch(ctx context.Context, search string) {
	c.mu.Lock()
	if c.query.Search == search {
		c.mu.Unlock()
		return
	}
	c.query.Search = search
	gen := c.beginResetLocked()

	if search != "" && c.opts.SearchDebounce > 0 {
		c.debounce = time.AfterFunc(c.opts.SearchDebounce, func() {
			c.loadPage(c.baseCtx, gen)
		})
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.loadPage(ctx, gen)
}

// SetType updates the type filter (all, image, video).
func (c *Controller) SetType(ctx context.Context, typ string) {
	c.applyFilter(ctx, func(q *Query) bool {
		if q.Type == typ {
			return false
		}
		q.Type = typ
		return true
	})
}

// SetSort updates the sort order (newest, oldest).
func (c *Controller) SetSort(ctx context.Context, sort string) {
	c.applyFilter(ctx, func(q *Query) bool {
		if q.Sort == sort {
			return false
		}
		q.Sort = sort
		return true
	})
}

// SetFavoritesOnly toggles the favorites filter.
func (c *Controller) SetFavoritesOnly(ctx context.Context, on bool) {
	c.applyFilter(ctx, func(q *Query) bool {
		if q.FavoritesOnly == on {
			return false
		}
		q.FavoritesOnly = on
		return true
	})
}

// SetFolder updates the active folder, empty meaning all folders.
func (c *Controller) SetFolder(ctx context.Context, folder string) {
	c.applyFilter(ctx, func(q *Query) bool {
		if q.Folder == folder {
			return false
		}
		q.Folder = folder
		return true
	})
}

// Refresh discards the list and reloads page 1 under the current filters.
func (c *Controller) Refresh(ctx context.Context) {
	c.mu.Lock()
	gen := c.beginResetLocked()
	c.mu.Unlock()
	c.loadPage(ctx, gen)
}

// Retry clears a listing error and resumes pagination where it stopped.
func (c *Controller) Retry(ctx context.Context) {
	c.mu.Lock()
	if c.lastErr == nil {
		c.mu.Unlock()
		return
	}
	c.lastErr = nil
	c.hasMore = true
	gen := c.generation
	c.mu.Unlock()
	c.loadPage(ctx, gen)
}

// LoadMore fetches the next page. It is a no-op while a load is in flight or
// when no more pages exist.
func (c *Controller) LoadMore(ctx context.Context) {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()
	c.loadPage(ctx, gen)
}

// OnScroll reacts to the grid's scroll position. remaining is the distance in
// pixels to the bottom of the scroll container. Idempotent under rapid
// events: the in-flight guard inside loadPage absorbs duplicates.
func (c *Controller) OnScroll(ctx context.Context, remaining int) {
	if remaining > c.opts.ScrollThreshold {
		return
	}
	c.LoadMore(ctx)
}

// ToggleFavorite optimistically flips the item's favorite flag, then issues
// the backend mutation. On failure the flag reverts to its prior value.
func (c *Controller) ToggleFavorite(ctx context.Context, uid string) error {
	c.mu.Lock()
	idx := c.indexOfLocked(uid)
	if idx < 0 {
		c.mu.Unlock()
		return nil
	}
	prior := c.items[idx].IsFavorite
	c.items[idx].IsFavorite = !prior
	c.mu.Unlock()

	if err := c.fetcher.SetFavorite(ctx, uid, !prior); err != nil {
		c.mu.Lock()
		if idx := c.indexOfLocked(uid); idx >= 0 {
			c.items[idx].IsFavorite = prior
		}
		c.mu.Unlock()
		c.logger.Error("favorite toggle failed, reverted",
			zap.String("uid", uid), zap.Error(err))
		return err
	}
	return nil
}

// applyFilter runs mutate under the lock and, when it reports a change,
// resets and reloads synchronously.
func (c *Controller) applyFilter(ctx context.Context, mutate func(*Query) bool) {
	c.mu.Lock()
	if !mutate(&c.query) {
		c.mu.Unlock()
		return
	}
	gen := c.beginResetLocked()
	c.mu.Unlock()
	c.loadPage(ctx, gen)
}

// beginResetLocked starts a new generation: the list empties, pagination
// rewinds and any pending debounce timer or in-flight load is orphaned.
func (c *Controller) beginResetLocked() int64 {
	c.generation++
	c.items = nil
	c.page = 0
	c.hasMore = true
	c.loading = false
	c.lastErr = nil
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	return c.generation
}

// loadPage fetches the page after c.page for the given generation. Responses
// belonging to an older generation are discarded without touching state.
func (c *Controller) loadPage(ctx context.Context, gen int64) {
	c.mu.Lock()
	if gen != c.generation || c.loading || !c.hasMore || c.lastErr != nil {
		c.mu.Unlock()
		return
	}
	c.loading = true
	q := client.ListQuery{
		Page:          c.page + 1,
		PageSize:      c.opts.PageSize,
		Sort:          c.query.Sort,
		Type:          c.query.Type,
		FavoritesOnly: c.query.FavoritesOnly,
		Search:        c.query.Search,
		Folder:        c.query.Folder,
	}
	c.mu.Unlock()

	page, err := c.fetcher.FetchMedia(ctx, q)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		// Superseded by a filter change while in flight.
		c.logger.Debug("discarding stale page response",
			zap.Int("page", q.Page), zap.Int64("generation", gen))
		return
	}
	c.loading = false

	if err != nil {
		c.lastErr = err
		c.hasMore = false
		c.logger.Error("media page load failed",
			zap.Int("page", q.Page), zap.Error(err))
		return
	}

	c.items = append(c.items, page.Items...)
	c.page = q.Page
	// A short page is the final page.
	c.hasMore = len(page.Items) > 0 && len(page.Items) == q.PageSize
}

func (c *Controller) indexOfLocked(uid string) int {
	for i := range c.items {
		if c.items[i].UID == uid {
			return i
		}
	}
	return -1
}
