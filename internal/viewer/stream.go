package viewer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/yourorg/photo-gallery/internal/client"
)

// StreamClient prepares adaptive-streaming playback for a video item. Every
// manifest and segment request goes through the authenticated gateway so the
// bearer token rides along without appearing in the playback URL. Playback is
// ready once the manifest is fetched; segments stream on demand.
type StreamClient struct {
	api    *client.Client
	logger *zap.Logger

	mu          sync.Mutex
	manifestURL string
	manifest    []byte
	closed      bool
}

// NewStreamClient creates an unprepared streaming session.
func NewStreamClient(api *client.Client, logger *zap.Logger) *StreamClient {
	return &StreamClient{api: api, logger: logger}
}

// Prepare fetches the playback manifest. Success means the viewer can report
// Ready without downloading any media payload.
func (s *StreamClient) Prepare(ctx context.Context, manifestURL string) error {
	resp, err := s.api.Request(ctx, http.MethodGet, manifestURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream client closed during prepare")
	}
	s.manifestURL = manifestURL
	s.manifest = data
	return nil
}

// Manifest returns the prepared playlist bytes.
func (s *StreamClient) Manifest() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manifest
}

// FetchSegment streams one media segment with the bearer token injected.
// The caller owns the returned body.
func (s *StreamClient) FetchSegment(ctx context.Context, segmentURL string) (io.ReadCloser, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("stream client closed")
	}
	s.mu.Unlock()

	resp, err := s.api.Request(ctx, http.MethodGet, segmentURL)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Closed reports whether Close was called.
func (s *StreamClient) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears the session down. Required on item change and viewer close so
// off-screen video cannot keep streaming.
func (s *StreamClient) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.manifest = nil
}
