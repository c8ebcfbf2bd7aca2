package viewer

import (
	"fmt"
	"math"

	"github.com/yourorg/photo-gallery/internal/model"
)

// Date fallbacks shown by the details panel.
const (
	unknownDate = "未知日期"
	invalidDate = "无效日期"
)

// DetailInfo is the details panel content for one item. Metadata fields are
// populated by matching the variant that corresponds to the item's fileType;
// a mismatched or absent variant leaves them empty.
type DetailInfo struct {
	Title        string
	FileName     string
	CapturedAt   string
	Tags         []string
	Dimensions   string
	Camera       string
	FocalLength  string
	Aperture     string
	ShutterSpeed string
	ISO          string
	Duration     string
	FPS          string
}

// Details builds the panel content for the focused item.
func (s *Session) Details() (DetailInfo, bool) {
	item, ok := s.Current()
	if !ok {
		return DetailInfo{}, false
	}
	return buildDetails(item), true
}

func buildDetails(item model.MediaItem) DetailInfo {
	info := DetailInfo{
		Title:      item.AITitle,
		FileName:   item.FileName,
		CapturedAt: FormatCaptureDate(item.MediaCreatedAt),
		Tags:       item.AITags,
	}
	if info.Title == "" {
		info.Title = item.FileName
	}

	meta := item.MediaMetadata
	if meta == nil {
		return info
	}

	switch item.FileType {
	case model.FileTypeImage:
		im := meta.Image
		if im == nil {
			return info
		}
		if im.Width != nil && im.Height != nil {
			info.Dimensions = fmt.Sprintf("%d x %d", *im.Width, *im.Height)
		}
		if im.CameraMake != nil {
			info.Camera = *im.CameraMake
			if im.CameraModel != nil {
				info.Camera += " " + *im.CameraModel
			}
		}
		if im.FocalLength != nil {
			info.FocalLength = *im.FocalLength
		}
		if im.Aperture != nil {
			info.Aperture = *im.Aperture
		}
		if im.ShutterSpeed != nil {
			info.ShutterSpeed = *im.ShutterSpeed
		}
		if im.ISO != nil {
			info.ISO = fmt.Sprintf("%d", *im.ISO)
		}
	case model.FileTypeVideo:
		vm := meta.Video
		if vm == nil {
			return info
		}
		if vm.Width != nil && vm.Height != nil {
			info.Dimensions = fmt.Sprintf("%d x %d", *vm.Width, *vm.Height)
		}
		if vm.Duration != nil {
			info.Duration = fmt.Sprintf("%ds", int(math.Round(*vm.Duration)))
		}
		if vm.FPS != nil {
			info.FPS = fmt.Sprintf("%d FPS", int(math.Round(*vm.FPS)))
		}
	}
	return info
}

// FormatCaptureDate renders a capture timestamp for display. Missing and
// unparsable values degrade to fixed fallbacks instead of failing.
func FormatCaptureDate(raw string) string {
	if raw == "" {
		return unknownDate
	}
	t, ok := model.ParseCaptureTime(raw)
	if !ok {
		return invalidDate
	}
	return t.Format("2006年1月2日 15:04")
}
