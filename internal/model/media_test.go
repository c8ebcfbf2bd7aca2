package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalImageMetadata(t *testing.T) {
	raw := `{
		"uid": "a1",
		"fileName": "IMG_0001.jpg",
		"fileType": "image",
		"url": "/api/media/a1",
		"thumbnailUrl": "/api/thumbnails/a1",
		"downloadUrl": "/api/download/a1",
		"mediaCreatedAt": "2024-01-02 15:04:05",
		"isFavorite": true,
		"mediaMetadata": {"width": 4032, "height": 3024, "cameraMake": "Apple", "iso": 125}
	}`

	var item MediaItem
	require.NoError(t, json.Unmarshal([]byte(raw), &item))

	assert.Equal(t, "a1", item.UID)
	assert.Equal(t, FileTypeImage, item.FileType)
	assert.True(t, item.IsFavorite)

	require.NotNil(t, item.MediaMetadata)
	require.NotNil(t, item.MediaMetadata.Image)
	assert.Nil(t, item.MediaMetadata.Video)
	assert.Equal(t, 4032, *item.MediaMetadata.Image.Width)
	assert.Equal(t, "Apple", *item.MediaMetadata.Image.CameraMake)
	assert.Equal(t, 125, *item.MediaMetadata.Image.ISO)
}

func TestUnmarshalVideoMetadata(t *testing.T) {
	raw := `{
		"uid": "v1",
		"fileName": "clip.mp4",
		"fileType": "video",
		"url": "/api/media/v1",
		"thumbnailUrl": "/api/thumbnails/v1",
		"downloadUrl": "/api/download/v1",
		"hlsPlaybackUrl": "/api/hls/v1/master.m3u8",
		"mediaCreatedAt": "2024-03-01T10:00:00",
		"isFavorite": false,
		"mediaMetadata": {"width": 1920, "height": 1080, "duration": 12.5, "fps": 29.97}
	}`

	var item MediaItem
	require.NoError(t, json.Unmarshal([]byte(raw), &item))

	require.NotNil(t, item.MediaMetadata)
	require.NotNil(t, item.MediaMetadata.Video)
	assert.Nil(t, item.MediaMetadata.Image)
	assert.Equal(t, 12.5, *item.MediaMetadata.Video.Duration)
	assert.Equal(t, "/api/hls/v1/master.m3u8", item.HLSPlaybackURL)
}

func TestUnmarshalNullMetadata(t *testing.T) {
	raw := `{"uid": "x", "fileType": "image", "mediaMetadata": null}`

	var item MediaItem
	require.NoError(t, json.Unmarshal([]byte(raw), &item))
	assert.Nil(t, item.MediaMetadata)
}

func TestMarshalRoundTrip(t *testing.T) {
	w, h := 100, 60
	dur := 3.0
	item := MediaItem{
		UID:      "v2",
		FileType: FileTypeVideo,
		MediaMetadata: &MediaMetadata{
			Video: &VideoMetadata{Width: &w, Height: &h, Duration: &dur},
		},
	}

	data, err := json.Marshal(item)
	require.NoError(t, err)

	var decoded MediaItem
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.MediaMetadata)
	require.NotNil(t, decoded.MediaMetadata.Video)
	assert.Equal(t, 3.0, *decoded.MediaMetadata.Video.Duration)
}

func TestParseCaptureTime(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"rfc3339", "2024-01-02T15:04:05Z", true},
		{"no zone", "2024-01-02T15:04:05", true},
		{"space separator", "2024-01-02 15:04:05", true},
		{"date only", "2024-01-02", true},
		{"exif", "2024:01:02 15:04:05", true},
		{"empty", "", false},
		{"garbage", "not a date", false},
		{"whitespace", "   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, ok := ParseCaptureTime(tt.input)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, 2024, parsed.Year())
			}
		})
	}
}

func TestWithSize(t *testing.T) {
	assert.Equal(t, "/api/thumbnails/a1?size=preview", WithSize("/api/thumbnails/a1", "preview"))
	assert.Equal(t, "/api/media/a1?size=large&v=2", WithSize("/api/media/a1?v=2", "large"))
}
