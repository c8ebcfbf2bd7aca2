package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FileType discriminates the two media kinds served by the backend.
type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypeVideo FileType = "video"
)

// ImageMetadata holds EXIF-derived fields for photos. All fields are optional.
type ImageMetadata struct {
	Width        *int    `json:"width,omitempty"`
	Height       *int    `json:"height,omitempty"`
	CameraMake   *string `json:"cameraMake,omitempty"`
	CameraModel  *string `json:"cameraModel,omitempty"`
	FocalLength  *string `json:"focalLength,omitempty"`
	Aperture     *string `json:"aperture,omitempty"`
	ShutterSpeed *string `json:"shutterSpeed,omitempty"`
	ISO          *int    `json:"iso,omitempty"`
}

// VideoMetadata holds probe-derived fields for videos. All fields are optional.
type VideoMetadata struct {
	Width    *int     `json:"width,omitempty"`
	Height   *int     `json:"height,omitempty"`
	Duration *float64 `json:"duration,omitempty"` // seconds
	FPS      *float64 `json:"fps,omitempty"`
}

// MediaMetadata is a tagged union keyed by the owning item's FileType.
// Exactly one of Image or Video is set; both nil means the backend sent no
// metadata. Callers must check the variant instead of assuming one.
type MediaMetadata struct {
	Image *ImageMetadata
	Video *VideoMetadata
}

// MediaItem is one photo or video as returned by the backend listing.
// Identity (UID) is stable for the item's lifetime; only IsFavorite mutates.
type MediaItem struct {
	UID            string         `json:"uid"`
	FileName       string         `json:"fileName"`
	FileType       FileType       `json:"fileType"`
	URL            string         `json:"url"`
	ThumbnailURL   string         `json:"thumbnailUrl"`
	DownloadURL    string         `json:"downloadUrl"`
	HLSPlaybackURL string         `json:"hlsPlaybackUrl,omitempty"`
	MediaCreatedAt string         `json:"mediaCreatedAt"`
	AITitle        string         `json:"aiTitle,omitempty"`
	AITags         []string       `json:"aiTags,omitempty"`
	IsFavorite     bool           `json:"isFavorite"`
	MediaMetadata  *MediaMetadata `json:"mediaMetadata,omitempty"`
}

// mediaItemAlias avoids recursing into MediaItem's own (un)marshalers.
type mediaItemAlias struct {
	UID            string          `json:"uid"`
	FileName       string          `json:"fileName"`
	FileType       FileType        `json:"fileType"`
	URL            string          `json:"url"`
	ThumbnailURL   string          `json:"thumbnailUrl"`
	DownloadURL    string          `json:"downloadUrl"`
	HLSPlaybackURL string          `json:"hlsPlaybackUrl,omitempty"`
	MediaCreatedAt string          `json:"mediaCreatedAt"`
	AITitle        string          `json:"aiTitle,omitempty"`
	AITags         []string        `json:"aiTags,omitempty"`
	IsFavorite     bool            `json:"isFavorite"`
	MediaMetadata  json.RawMessage `json:"mediaMetadata,omitempty"`
}

// UnmarshalJSON decodes the item and materializes the metadata variant that
// matches fileType. Metadata for an unknown or mismatched fileType is dropped
// rather than failing the whole item.
func (m *MediaItem) UnmarshalJSON(data []byte) error {
	var alias mediaItemAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	*m = MediaItem{
		UID:            alias.UID,
		FileName:       alias.FileName,
		FileType:       alias.FileType,
		URL:            alias.URL,
		ThumbnailURL:   alias.ThumbnailURL,
		DownloadURL:    alias.DownloadURL,
		HLSPlaybackURL: alias.HLSPlaybackURL,
		MediaCreatedAt: alias.MediaCreatedAt,
		AITitle:        alias.AITitle,
		AITags:         alias.AITags,
		IsFavorite:     alias.IsFavorite,
	}

	if len(alias.MediaMetadata) == 0 || string(alias.MediaMetadata) == "null" {
		return nil
	}

	switch alias.FileType {
	case FileTypeImage:
		var im ImageMetadata
		if err := json.Unmarshal(alias.MediaMetadata, &im); err != nil {
			return fmt.Errorf("decode image metadata for %q: %w", alias.UID, err)
		}
		m.MediaMetadata = &MediaMetadata{Image: &im}
	case FileTypeVideo:
		var vm VideoMetadata
		if err := json.Unmarshal(alias.MediaMetadata, &vm); err != nil {
			return fmt.Errorf("decode video metadata for %q: %w", alias.UID, err)
		}
		m.MediaMetadata = &MediaMetadata{Video: &vm}
	}
	return nil
}

// MarshalJSON emits the variant matching the item's fileType.
func (m MediaItem) MarshalJSON() ([]byte, error) {
	alias := mediaItemAlias{
		UID:            m.UID,
		FileName:       m.FileName,
		FileType:       m.FileType,
		URL:            m.URL,
		ThumbnailURL:   m.ThumbnailURL,
		DownloadURL:    m.DownloadURL,
		HLSPlaybackURL: m.HLSPlaybackURL,
		MediaCreatedAt: m.MediaCreatedAt,
		AITitle:        m.AITitle,
		AITags:         m.AITags,
		IsFavorite:     m.IsFavorite,
	}

	if m.MediaMetadata != nil {
		var (
			raw []byte
			err error
		)
		switch m.FileType {
		case FileTypeImage:
			if m.MediaMetadata.Image != nil {
				raw, err = json.Marshal(m.MediaMetadata.Image)
			}
		case FileTypeVideo:
			if m.MediaMetadata.Video != nil {
				raw, err = json.Marshal(m.MediaMetadata.Video)
			}
		}
		if err != nil {
			return nil, err
		}
		alias.MediaMetadata = raw
	}

	return json.Marshal(alias)
}

// MediaPage is one page of the backend media listing.
type MediaPage struct {
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
	Items    []MediaItem `json:"items"`
}

// captureTimeLayouts are tried in order. The backend emits ISO-like strings
// with either 'T' or a space between date and time.
var captureTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006:01:02 15:04:05", // raw EXIF DateTimeOriginal
}

// ParseCaptureTime parses a mediaCreatedAt value. A space separating date and
// time is tolerated. Returns ok=false instead of an error so callers can route
// the item to the unknown-date bucket.
func ParseCaptureTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	normalized := strings.Replace(s, " ", "T", 1)
	for _, layout := range captureTimeLayouts {
		candidate := normalized
		if strings.ContainsRune(layout, ' ') {
			candidate = s
		}
		if t, err := time.Parse(layout, candidate); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
