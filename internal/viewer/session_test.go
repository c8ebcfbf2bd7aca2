package viewer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/photo-gallery/internal/client"
	"github.com/yourorg/photo-gallery/internal/model"
	"github.com/yourorg/photo-gallery/internal/token"
)

type fakeSource struct {
	items []model.MediaItem
}

func (f *fakeSource) Items() []model.MediaItem { return f.items }

type fakeHints struct {
	shown bool
	marks int
}

func (f *fakeHints) SwipeHintShown() (bool, error) { return f.shown, nil }
func (f *fakeHints) MarkSwipeHintShown() error     { f.shown = true; f.marks++; return nil }

func image(uid string) model.MediaItem {
	return model.MediaItem{
		UID:          uid,
		FileType:     model.FileTypeImage,
		URL:          "/api/media/" + uid,
		ThumbnailURL: "/api/thumbnails/" + uid,
	}
}

func hlsVideo(uid string) model.MediaItem {
	return model.MediaItem{
		UID:            uid,
		FileType:       model.FileTypeVideo,
		URL:            "/api/media/" + uid,
		ThumbnailURL:   "/api/thumbnails/" + uid,
		HLSPlaybackURL: "/api/hls/" + uid + "/master.m3u8",
	}
}

func directVideo(uid string) model.MediaItem {
	return model.MediaItem{
		UID:          uid,
		FileType:     model.FileTypeVideo,
		URL:          "/api/media/" + uid,
		ThumbnailURL: "/api/thumbnails/" + uid,
	}
}

// mediaBackend serves media bytes, previews and HLS manifests; paths listed
// in fail return 500.
func mediaBackend(fail ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, f := range fail {
			if strings.HasPrefix(r.URL.Path, f) {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
		}
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/hls/"):
			w.Write([]byte("#EXTM3U\n#EXT-X-VERSION:3\n"))
		case strings.HasPrefix(r.URL.Path, "/api/thumbnails/"):
			w.Write([]byte("preview:" + r.URL.Path))
		default:
			w.Write([]byte("full:" + r.URL.Path))
		}
	})
}

func newTestSession(t *testing.T, items []model.MediaItem, backend http.Handler) (*Session, *client.BlobCache, *fakeHints) {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	boltDB, err := token.OpenBolt(dir + "/gallery.db")
	require.NoError(t, err)
	t.Cleanup(func() { boltDB.Close() })
	tokens := token.NewDualStore(token.NewFileStore(dir+"/token.json"), boltDB, zap.NewNop())
	require.NoError(t, tokens.SetToken("tok"))

	api := client.New(srv.URL, 5*time.Second, tokens, zap.NewNop())
	blobs, err := client.NewBlobCache(dir+"/blobs", api, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(blobs.Clear)

	hints := &fakeHints{shown: true}
	s := NewSession(&fakeSource{items: items}, api, blobs, hints, Options{
		Gesture:     testThresholds(),
		HintTimeout: time.Minute,
	}, zap.NewNop())
	return s, blobs, hints
}

func TestOpenLoadsActiveAndNeighbors(t *testing.T) {
	items := []model.MediaItem{image("u0"), image("u1"), image("u2"), image("u3"), image("u4")}
	s, _, _ := newTestSession(t, items, mediaBackend())

	s.Open(context.Background(), 2)

	assert.Equal(t, 2, s.Index())
	for _, uid := range []string{"u1", "u2", "u3"} {
		assert.Equal(t, StateReady, s.State(uid), uid)
	}
	assert.Equal(t, StateIdle, s.State("u0"))
	assert.Equal(t, StateIdle, s.State("u4"))

	src, ok := s.Source("u2")
	require.True(t, ok)
	assert.True(t, src.Autoplay)
	assert.False(t, src.Muted)

	src, ok = s.Source("u1")
	require.True(t, ok)
	assert.False(t, src.Autoplay)
	assert.True(t, src.Muted, "neighbors are prepared muted")
}

func TestImageSourceResolvesToLocalFile(t *testing.T) {
	s, _, _ := newTestSession(t, []model.MediaItem{image("u0")}, mediaBackend())

	s.Open(context.Background(), 0)

	src, ok := s.Source("u0")
	require.True(t, ok)
	require.NotEmpty(t, src.LocalPath)
	data, err := os.ReadFile(src.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "full:/api/media/u0", string(data))

	// Placeholder finishes asynchronously.
	s.placeholderWG.Wait()
	src, _ = s.Source("u0")
	require.NotEmpty(t, src.PlaceholderPath)
	data, err = os.ReadFile(src.PlaceholderPath)
	require.NoError(t, err)
	assert.Equal(t, "preview:/api/thumbnails/u0", string(data))
}

func TestNavigateReleasesEvictedResources(t *testing.T) {
	items := []model.MediaItem{image("u0"), hlsVideo("u1"), image("u2"), image("u3"), image("u4")}
	s, blobs, _ := newTestSession(t, items, mediaBackend())

	s.Open(context.Background(), 2)
	s.placeholderWG.Wait()

	src, ok := s.Source("u1")
	require.True(t, ok)
	require.NotNil(t, src.Stream)
	require.False(t, src.Stream.Closed())
	stream := src.Stream

	got := s.Navigate(context.Background(), +1)
	assert.Equal(t, 3, got)

	// u1 left the prev/active/next window: stream torn down, blobs gone.
	assert.Equal(t, StateIdle, s.State("u1"))
	assert.True(t, stream.Closed())
	assert.False(t, blobs.Held("u1/full"))
	assert.False(t, blobs.Held("u1/placeholder"))

	// The new neighbor loaded; the survivors kept their blobs.
	assert.Equal(t, StateReady, s.State("u4"))
	assert.True(t, blobs.Held("u2/full"))
}

// A navigation racing an in-flight acquisition must not strand the item: when
// the active item becomes a neighbor while its full asset is still loading,
// the finished load keeps its resources instead of being discarded.
func TestNavigateDuringLoadKeepsWindowSurvivor(t *testing.T) {
	// No thumbnails, so the only fetches are the full assets.
	items := []model.MediaItem{
		{UID: "u0", FileType: model.FileTypeImage, URL: "/api/media/u0"},
		{UID: "u1", FileType: model.FileTypeImage, URL: "/api/media/u1"},
	}

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	backend := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/media/u0") {
			once.Do(func() { close(started) })
			<-release
		}
		w.Write([]byte("full:" + r.URL.Path))
	})
	s, blobs, _ := newTestSession(t, items, backend)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Open(context.Background(), 0) // u0 acquisition blocks in the backend
	}()

	<-started
	got := s.Navigate(context.Background(), +1) // u0 stays in the window as prev
	assert.Equal(t, 1, got)
	assert.Equal(t, StateReady, s.State("u1"))

	close(release)
	<-done

	require.Equal(t, StateReady, s.State("u0"))
	src, ok := s.Source("u0")
	require.True(t, ok)
	assert.NotEmpty(t, src.LocalPath)
	assert.True(t, blobs.Held("u0/full"))
	assert.False(t, src.Autoplay, "focus moved on, u0 plays muted")
}

func TestActiveRoleFollowsFocus(t *testing.T) {
	items := []model.MediaItem{directVideo("u0"), directVideo("u1"), directVideo("u2")}
	s, _, _ := newTestSession(t, items, mediaBackend())

	s.Open(context.Background(), 0)
	src, _ := s.Source("u0")
	assert.True(t, src.Autoplay)
	src, _ = s.Source("u1")
	assert.True(t, src.Muted)

	s.Navigate(context.Background(), +1)

	// Roles swap without reloading: u1 unmutes, u0 goes muted.
	src, _ = s.Source("u1")
	assert.True(t, src.Autoplay)
	assert.False(t, src.Muted)
	src, _ = s.Source("u0")
	assert.False(t, src.Autoplay)
	assert.True(t, src.Muted)
}

func TestDirectVideoUsesInterceptorURL(t *testing.T) {
	s, _, _ := newTestSession(t, []model.MediaItem{directVideo("v0")}, mediaBackend())

	s.Open(context.Background(), 0)

	require.Equal(t, StateReady, s.State("v0"))
	src, _ := s.Source("v0")
	assert.Nil(t, src.Stream)
	assert.Equal(t, "/api/media/v0", src.StreamURL)
	assert.Empty(t, src.LocalPath)
}

func TestHLSVideoReadyAtManifest(t *testing.T) {
	s, _, _ := newTestSession(t, []model.MediaItem{hlsVideo("v1")}, mediaBackend())

	s.Open(context.Background(), 0)

	require.Equal(t, StateReady, s.State("v1"))
	src, _ := s.Source("v1")
	require.NotNil(t, src.Stream)
	assert.Equal(t, "/api/hls/v1/master.m3u8", src.StreamURL)
	assert.Contains(t, string(src.Stream.Manifest()), "#EXTM3U")
}

func TestAcquireErrorIsPerItem(t *testing.T) {
	items := []model.MediaItem{image("bad"), image("good")}
	s, _, _ := newTestSession(t, items, mediaBackend("/api/media/bad"))

	s.Open(context.Background(), 0)

	assert.Equal(t, StateError, s.State("bad"))
	assert.Error(t, s.LoadErr("bad"))
	// The neighbor still loads normally.
	assert.Equal(t, StateReady, s.State("good"))
	assert.NoError(t, s.LoadErr("good"))
}

func TestPlaceholderFailureIsNonFatal(t *testing.T) {
	s, _, _ := newTestSession(t, []model.MediaItem{image("u0")}, mediaBackend("/api/thumbnails/"))

	s.Open(context.Background(), 0)
	s.placeholderWG.Wait()

	assert.Equal(t, StateReady, s.State("u0"))
	src, _ := s.Source("u0")
	assert.Empty(t, src.PlaceholderPath)
	assert.NotEmpty(t, src.LocalPath)
}

func TestPointerNavigation(t *testing.T) {
	items := []model.MediaItem{image("u0"), image("u1"), image("u2")}
	s, _, _ := newTestSession(t, items, mediaBackend())
	s.Open(context.Background(), 1)

	t0 := time.Now()
	s.PointerDown(200, 300, t0)
	s.PointerMove(80, 300)
	out := s.PointerUp(context.Background(), 80, 300, t0.Add(150*time.Millisecond))

	assert.Equal(t, OutcomeNavigateNext, out)
	assert.Equal(t, 2, s.Index())
	s.SettleDone()
	assert.Equal(t, PhaseIdle, s.Gesture().Phase())
}

func TestTapTogglesChromeAndClosesDetails(t *testing.T) {
	s, _, _ := newTestSession(t, []model.MediaItem{image("u0")}, mediaBackend())
	s.Open(context.Background(), 0)
	s.ToggleDetails()
	require.True(t, s.DetailsOpen())
	require.True(t, s.ChromeVisible())

	t0 := time.Now()
	s.PointerDown(100, 100, t0)
	out := s.PointerUp(context.Background(), 102, 101, t0.Add(80*time.Millisecond))

	assert.Equal(t, OutcomeTap, out)
	assert.False(t, s.ChromeVisible())
	assert.False(t, s.DetailsOpen())
}

func TestDismissDragClosesViewer(t *testing.T) {
	s, blobs, _ := newTestSession(t, []model.MediaItem{image("u0"), image("u1")}, mediaBackend())
	s.Open(context.Background(), 0)
	s.placeholderWG.Wait()

	t0 := time.Now()
	s.PointerDown(200, 100, t0)
	s.PointerMove(200, 400)
	out := s.PointerUp(context.Background(), 200, 400, t0.Add(200*time.Millisecond))

	assert.Equal(t, OutcomeDismiss, out)
	assert.True(t, s.Closed())
	assert.Equal(t, -1, s.Index())
	assert.False(t, blobs.Held("u0/full"))
	assert.False(t, blobs.Held("u1/full"))
}

func TestKeyboardNavigation(t *testing.T) {
	items := []model.MediaItem{image("u0"), image("u1"), image("u2")}
	s, _, _ := newTestSession(t, items, mediaBackend())
	s.Open(context.Background(), 1)

	s.HandleKey(context.Background(), "ArrowRight")
	assert.Equal(t, 2, s.Index())

	// Boundary: already at the last item.
	s.HandleKey(context.Background(), "ArrowDown")
	assert.Equal(t, 2, s.Index())

	s.HandleKey(context.Background(), "ArrowLeft")
	s.HandleKey(context.Background(), "ArrowUp")
	assert.Equal(t, 0, s.Index())
	s.HandleKey(context.Background(), "ArrowLeft")
	assert.Equal(t, 0, s.Index())

	s.HandleKey(context.Background(), "Escape")
	assert.True(t, s.Closed())
	assert.Equal(t, -1, s.Index())
}

func TestSwipeHintShowsOnceAndDismissesOnNavigate(t *testing.T) {
	items := []model.MediaItem{image("u0"), image("u1")}
	s, _, hints := newTestSession(t, items, mediaBackend())
	hints.shown = false

	s.Open(context.Background(), 0)
	assert.True(t, s.HintVisible())
	assert.Equal(t, 1, hints.marks)

	s.Navigate(context.Background(), +1)
	assert.False(t, s.HintVisible(), "first navigation dismisses the hint")

	// A later session never shows it again.
	s.Close()
	s.Open(context.Background(), 0)
	assert.False(t, s.HintVisible())
	assert.Equal(t, 1, hints.marks)
}

func TestDetailsPanel(t *testing.T) {
	w, h := 4032, 3024
	iso := 200
	make_, modl := "Apple", "iPhone 15"
	items := []model.MediaItem{{
		UID:            "d0",
		FileType:       model.FileTypeImage,
		FileName:       "IMG_0001.jpg",
		URL:            "/api/media/d0",
		AITitle:        "海边日落",
		AITags:         []string{"海", "日落"},
		MediaCreatedAt: "2024-05-20 18:30:00",
		MediaMetadata: &model.MediaMetadata{Image: &model.ImageMetadata{
			Width: &w, Height: &h, CameraMake: &make_, CameraModel: &modl, ISO: &iso,
		}},
	}}
	s, _, _ := newTestSession(t, items, mediaBackend())
	s.Open(context.Background(), 0)

	info, ok := s.Details()
	require.True(t, ok)
	assert.Equal(t, "海边日落", info.Title)
	assert.Equal(t, "2024年5月20日 18:30", info.CapturedAt)
	assert.Equal(t, "4032 x 3024", info.Dimensions)
	assert.Equal(t, "Apple iPhone 15", info.Camera)
	assert.Equal(t, "200", info.ISO)
	assert.Empty(t, info.Duration, "video fields stay empty for an image")
}

func TestFormatCaptureDateFallbacks(t *testing.T) {
	assert.Equal(t, "未知日期", FormatCaptureDate(""))
	assert.Equal(t, "无效日期", FormatCaptureDate("soon"))
	assert.Equal(t, "2024年1月2日 15:04", FormatCaptureDate("2024-01-02 15:04:05"))
}

func TestOpenOutOfRangeIsNoOp(t *testing.T) {
	s, _, _ := newTestSession(t, []model.MediaItem{image("u0")}, mediaBackend())

	s.Open(context.Background(), 5)
	assert.Equal(t, -1, s.Index())
	assert.Equal(t, StateIdle, s.State("u0"))
}
