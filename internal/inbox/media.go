package inbox

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/Vasu1712/scenyx-inbox/internal/models"
)

const previewLimit = 50

var mediaByExtension = map[string]models.MediaType{
	"jpg":  models.MediaImage,
	"jpeg": models.MediaImage,
	"png":  models.MediaImage,
	"webp": models.MediaImage,
	"gif":  models.MediaImage,
	"mp4":  models.MediaVideo,
	"mov":  models.MediaVideo,
	"avi":  models.MediaVideo,
	"mkv":  models.MediaVideo,
	"webm": models.MediaVideo,
	"ogg":  models.MediaVideo,
}

// Classify decides whether an attachment is an image or a video. An explicit
// "image"/"video" type wins, then the URL extension; anything else is assumed
// to be an image.
func Classify(att models.Attachment) models.MediaType {
	switch models.MediaType(strings.ToLower(strings.TrimSpace(string(att.MediaType)))) {
	case models.MediaImage:
		return models.MediaImage
	case models.MediaVideo:
		return models.MediaVideo
	}
	if mt, ok := mediaByExtension[urlExtension(att.URL)]; ok {
		return mt
	}
	return models.MediaImage
}

// mediaTypeForMIME maps a MIME type to a media type, reporting false for
// anything that is neither image/* nor video/*.
func mediaTypeForMIME(mime string) (models.MediaType, bool) {
	mime = strings.ToLower(mime)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.MediaImage, true
	case strings.HasPrefix(mime, "video/"):
		return models.MediaVideo, true
	default:
		return "", false
	}
}

func urlExtension(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	} else if i := strings.IndexAny(raw, "?#"); i >= 0 {
		p = raw[:i]
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
}

// FormatPreview renders the one-line conversation list preview of a message.
func FormatPreview(msg models.Message) string {
	if msg.Content != "" {
		return truncate(msg.Content, previewLimit)
	}
	switch msg.Kind {
	case models.KindImage:
		return "[Image]"
	case models.KindVideo:
		return "[Video]"
	case models.KindMixed:
		return attachmentsPreview(msg.Attachments)
	case models.KindText:
		return "[Message]"
	}
	return attachmentsPreview(msg.Attachments)
}

func attachmentsPreview(atts []models.Attachment) string {
	var images, videos int
	for _, att := range atts {
		if Classify(att) == models.MediaVideo {
			videos++
		} else {
			images++
		}
	}
	switch {
	case images > 0 && videos > 0:
		return "[Image, Video]"
	case images == 1:
		return "[Image]"
	case images > 1:
		return fmt.Sprintf("[%d images]", images)
	case videos == 1:
		return "[Video]"
	case videos > 1:
		return fmt.Sprintf("[%d videos]", videos)
	default:
		return "[Message]"
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
