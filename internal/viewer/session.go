// Package viewer implements the full-screen viewer: a per-item progressive
// media acquisition state machine, neighbor preloading with strict resource
// release, and gesture/keyboard navigation.
package viewer

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/photo-gallery/internal/client"
	"github.com/yourorg/photo-gallery/internal/model"
)

// LoadState is the acquisition state of one displayed or preloaded item.
type LoadState int

const (
	StateIdle LoadState = iota
	StateLoadingPlaceholder
	StateLoadingFull
	StateReady
	StateError
)

// MediaSource is what the presentation layer binds to an element.
type MediaSource struct {
	// PlaceholderPath is the local low-res preview, empty until (and unless)
	// the placeholder fetch succeeds. Placeholder failure is non-fatal.
	PlaceholderPath string
	// LocalPath is the object-URL analog: a local file holding the full
	// resolution image (or blob video). Released when the item leaves the
	// prev/active/next window.
	LocalPath string
	// StreamURL is set for videos played via the interceptor-authenticated
	// direct URL, or the manifest URL when Stream is set.
	StreamURL string
	// Stream is the adaptive-streaming session, nil for images and direct
	// playback. Torn down on item change and viewer close.
	Stream *StreamClient
	// Autoplay with audio only for the centered item; neighbors are
	// prepared muted so the transition is instantaneous.
	Autoplay bool
	Muted    bool
}

type itemLoad struct {
	state  LoadState
	source MediaSource
	err    error
}

// ItemSource lends the viewer the controller's live list; the viewer borrows
// by index and never owns items, so external favorite mutations stay visible.
type ItemSource interface {
	Items() []model.MediaItem
}

// HintStore persists the first-run swipe hint flag.
type HintStore interface {
	SwipeHintShown() (bool, error)
	MarkSwipeHintShown() error
}

// Options tunes the viewer.
type Options struct {
	Gesture     Thresholds
	HintTimeout time.Duration
}

// Session is one open viewer over the controller's list.
type Session struct {
	source ItemSource
	api    *client.Client
	blobs  *client.BlobCache
	prefs  HintStore
	opts   Options
	logger *zap.Logger

	mu          sync.Mutex
	index       int
	epoch       int
	loads       map[string]*itemLoad
	gesture     *Gesture
	chrome      bool
	detailsOpen bool
	hintVisible bool
	hintTimer   *time.Timer
	closed      bool

	// placeholderWG tracks in-flight placeholder fetches so tests and Close
	// can wait for them.
	placeholderWG sync.WaitGroup
}

// NewSession creates a closed-over viewer; call Open to display an item.
func NewSession(source ItemSource, api *client.Client, blobs *client.BlobCache,
	prefs HintStore, opts Options, logger *zap.Logger) *Session {
	s := &Session{
		source: source,
		api:    api,
		blobs:  blobs,
		prefs:  prefs,
		opts:   opts,
		logger: logger,
		index:  -1,
		loads:  make(map[string]*itemLoad),
		chrome: true,
	}
	s.gesture = NewGesture(opts.Gesture, s.hasPrev, s.hasNext)
	return s
}

// Open focuses the item at index and starts its acquisition. The first-run
// swipe hint shows once, dismissed by timeout or the first navigation.
func (s *Session) Open(ctx context.Context, index int) {
	items := s.source.Items()
	if index < 0 || index >= len(items) {
		return
	}

	s.mu.Lock()
	s.index = index
	s.closed = false
	s.maybeShowHintLocked()
	s.mu.Unlock()

	s.display(ctx)
}

// Index returns the focused item index, -1 when closed.
func (s *Session) Index() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return -1
	}
	return s.index
}

// Current returns the focused item.
func (s *Session) Current() (model.MediaItem, bool) {
	s.mu.Lock()
	idx := s.index
	closed := s.closed
	s.mu.Unlock()

	items := s.source.Items()
	if closed || idx < 0 || idx >= len(items) {
		return model.MediaItem{}, false
	}
	return items[idx], true
}

// State returns the acquisition state for uid, StateIdle if untracked.
func (s *Session) State(uid string) LoadState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.loads[uid]; ok {
		return l.state
	}
	return StateIdle
}

// Source returns the bound media source for uid.
func (s *Session) Source(uid string) (MediaSource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.loads[uid]; ok {
		return l.source, true
	}
	return MediaSource{}, false
}

// LoadErr returns the per-item load error, nil unless StateError.
func (s *Session) LoadErr(uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.loads[uid]; ok {
		return l.err
	}
	return nil
}

// ChromeVisible reports whether the UI chrome overlay is shown.
func (s *Session) ChromeVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chrome
}

// DetailsOpen reports whether the details panel is open.
func (s *Session) DetailsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detailsOpen
}

// ToggleDetails opens or closes the details panel.
func (s *Session) ToggleDetails() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailsOpen = !s.detailsOpen
}

// HintVisible reports whether the swipe hint affordance is showing.
func (s *Session) HintVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hintVisible
}

// Closed reports whether the viewer was dismissed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Navigate moves focus by one item. No-op at the list boundaries. Returns
// the focused index after the move.
func (s *Session) Navigate(ctx context.Context, delta int) int {
	items := s.source.Items()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return -1
	}
	next := s.index + delta
	if next < 0 || next >= len(items) {
		idx := s.index
		s.mu.Unlock()
		return idx
	}
	s.index = next
	s.dismissHintLocked()
	s.mu.Unlock()

	s.display(ctx)
	return next
}

// HandleKey processes keyboard navigation: Escape closes, arrow keys move
// with boundary no-op. Both axis pairs are accepted so the layout can be
// horizontal or vertical.
func (s *Session) HandleKey(ctx context.Context, key string) {
	switch key {
	case "Escape":
		s.Close()
	case "ArrowLeft", "ArrowUp":
		s.Navigate(ctx, -1)
	case "ArrowRight", "ArrowDown":
		s.Navigate(ctx, +1)
	}
}

// PointerDown starts a gesture.
func (s *Session) PointerDown(x, y float64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gesture.Begin(x, y, at)
}

// PointerMove updates the gesture and returns the display offset along the
// locked axis, boundary resistance applied.
func (s *Session) PointerMove(x, y float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gesture.Move(x, y)
	return s.gesture.Offset()
}

// PointerUp releases the gesture and applies its outcome: tap toggles the
// chrome and closes the details panel; a committed drag navigates; a drag
// past the dismiss threshold closes the viewer.
func (s *Session) PointerUp(ctx context.Context, x, y float64, at time.Time) Outcome {
	s.mu.Lock()
	s.gesture.Move(x, y)
	outcome := s.gesture.End(at)
	s.mu.Unlock()

	switch outcome {
	case OutcomeTap:
		s.mu.Lock()
		s.chrome = !s.chrome
		s.detailsOpen = false
		s.mu.Unlock()
	case OutcomeNavigatePrev:
		s.Navigate(ctx, -1)
	case OutcomeNavigateNext:
		s.Navigate(ctx, +1)
	case OutcomeDismiss:
		s.Close()
	}
	return outcome
}

// SettleDone reports that the release animation finished.
func (s *Session) SettleDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gesture.SettleDone()
}

// Gesture exposes the gesture machine for presentation-layer queries.
func (s *Session) Gesture() *Gesture { return s.gesture }

// Close dismisses the viewer and releases every held resource.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.index = -1
	s.detailsOpen = false
	s.dismissHintLocked()
	loads := s.loads
	s.loads = make(map[string]*itemLoad)
	s.mu.Unlock()

	s.placeholderWG.Wait()
	for uid, l := range loads {
		s.releaseLoad(uid, l)
	}
}

// display tears down everything outside the prev/active/next window, then
// acquires the active item and prepares the neighbors muted. Teardown runs
// to completion before the next acquisition begins.
func (s *Session) display(ctx context.Context) {
	items := s.source.Items()

	s.mu.Lock()
	if s.closed || s.index < 0 || s.index >= len(items) {
		s.mu.Unlock()
		return
	}
	s.epoch++
	epoch := s.epoch
	idx := s.index

	window := make(map[string]bool, 3)
	for _, i := range []int{idx - 1, idx, idx + 1} {
		if i >= 0 && i < len(items) {
			window[items[i].UID] = true
		}
	}

	var stale map[string]*itemLoad
	for uid, l := range s.loads {
		if !window[uid] {
			if stale == nil {
				stale = make(map[string]*itemLoad)
			}
			stale[uid] = l
			delete(s.loads, uid)
		}
	}

	// Refresh the playback roles of survivors: only the centered item
	// autoplays with audio.
	for uid, l := range s.loads {
		active := uid == items[idx].UID
		l.source.Autoplay = active
		l.source.Muted = !active
	}
	s.mu.Unlock()

	for uid, l := range stale {
		s.releaseLoad(uid, l)
	}

	s.acquire(ctx, items[idx], true, epoch)
	if idx > 0 {
		s.acquire(ctx, items[idx-1], false, epoch)
	}
	if idx+1 < len(items) {
		s.acquire(ctx, items[idx+1], false, epoch)
	}
}

// acquire runs the per-item loading machine:
// Idle → LoadingPlaceholder → LoadingFull → Ready, Error from any loading
// state. Images resolve the full asset to a local blob; videos are Ready at
// playback setup. No automatic retry.
func (s *Session) acquire(ctx context.Context, item model.MediaItem, active bool, epoch int) {
	s.mu.Lock()
	if s.closed || s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	if existing, ok := s.loads[item.UID]; ok {
		// Already acquired as a neighbor; role was refreshed in display.
		if existing.state == StateReady || existing.state == StateLoadingFull {
			s.mu.Unlock()
			return
		}
	}
	load := &itemLoad{
		state: StateLoadingPlaceholder,
		source: MediaSource{
			Autoplay: active,
			Muted:    !active,
		},
	}
	s.loads[item.UID] = load
	s.mu.Unlock()

	// Placeholder loads concurrently and never blocks the full acquisition;
	// its failure is silently ignored.
	if item.ThumbnailURL != "" {
		s.placeholderWG.Add(1)
		go s.loadPlaceholder(ctx, item)
	}

	s.mu.Lock()
	if s.loads[item.UID] == load {
		load.state = StateLoadingFull
	}
	s.mu.Unlock()

	var (
		localPath string
		streamURL string
		stream    *StreamClient
		err       error
	)
	switch item.FileType {
	case model.FileTypeVideo:
		if item.HLSPlaybackURL != "" {
			stream = NewStreamClient(s.api, s.logger)
			if err = stream.Prepare(ctx, item.HLSPlaybackURL); err == nil {
				streamURL = item.HLSPlaybackURL
			} else {
				stream.Close()
				stream = nil
			}
		} else {
			// Direct playback: the background interceptor authenticates the
			// element's source URL, so setup is immediate.
			streamURL = item.URL
		}
	default:
		localPath, err = s.blobs.Fetch(ctx, blobKey(item.UID, "full"),
			model.WithSize(item.URL, "large"))
	}

	s.mu.Lock()
	current, ok := s.loads[item.UID]
	if !ok || current != load {
		// The item was evicted or reacquired while we were loading. A bare
		// epoch change is not enough: a concurrent navigation that keeps the
		// item inside the window must not throw its resources away.
		s.mu.Unlock()
		if stream != nil {
			stream.Close()
		}
		if localPath != "" {
			s.blobs.Release(blobKey(item.UID, "full"))
		}
		return
	}
	if err != nil {
		load.state = StateError
		load.err = err
		s.mu.Unlock()
		s.logger.Error("media acquisition failed",
			zap.String("uid", item.UID), zap.Error(err))
		return
	}
	load.source.LocalPath = localPath
	load.source.StreamURL = streamURL
	load.source.Stream = stream
	load.state = StateReady
	s.mu.Unlock()
}

// loadPlaceholder fetches the low-res preview. Failure is non-fatal.
func (s *Session) loadPlaceholder(ctx context.Context, item model.MediaItem) {
	defer s.placeholderWG.Done()

	key := blobKey(item.UID, "placeholder")
	path, err := s.blobs.Fetch(ctx, key, model.WithSize(item.ThumbnailURL, "preview"))
	if err != nil {
		s.logger.Debug("placeholder fetch failed",
			zap.String("uid", item.UID), zap.Error(err))
		return
	}

	s.mu.Lock()
	load, ok := s.loads[item.UID]
	if !ok || s.closed {
		s.mu.Unlock()
		s.blobs.Release(key)
		return
	}
	load.source.PlaceholderPath = path
	s.mu.Unlock()
}

// releaseLoad frees the blobs and streaming session of an evicted item.
func (s *Session) releaseLoad(uid string, l *itemLoad) {
	if l.source.Stream != nil {
		l.source.Stream.Close()
	}
	s.blobs.Release(blobKey(uid, "full"))
	s.blobs.Release(blobKey(uid, "placeholder"))
}

func (s *Session) hasPrev() bool {
	return s.index > 0
}

func (s *Session) hasNext() bool {
	return s.index >= 0 && s.index+1 < len(s.source.Items())
}

func (s *Session) maybeShowHintLocked() {
	shown, err := s.prefs.SwipeHintShown()
	if err != nil {
		s.logger.Warn("failed to read swipe hint flag", zap.Error(err))
		return
	}
	if shown {
		return
	}
	s.hintVisible = true
	if err := s.prefs.MarkSwipeHintShown(); err != nil {
		s.logger.Warn("failed to persist swipe hint flag", zap.Error(err))
	}
	if s.opts.HintTimeout > 0 {
		s.hintTimer = time.AfterFunc(s.opts.HintTimeout, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.hintVisible = false
		})
	}
}

func (s *Session) dismissHintLocked() {
	s.hintVisible = false
	if s.hintTimer != nil {
		s.hintTimer.Stop()
		s.hintTimer = nil
	}
}

func blobKey(uid, kind string) string {
	return uid + "/" + kind
}
