package inbox

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Vasu1712/scenyx-inbox/internal/models"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		att  models.Attachment
		want models.MediaType
	}{
		{models.Attachment{URL: "https://x/y.unknownext"}, models.MediaImage},
		{models.Attachment{URL: "https://x/y.mp4", MediaType: "image"}, models.MediaImage},
		{models.Attachment{URL: "https://x/y.png", MediaType: "VIDEO"}, models.MediaVideo},
		{models.Attachment{URL: "https://x/clip.MOV?token=abc"}, models.MediaVideo},
		{models.Attachment{URL: "https://x/pic.webp#frag"}, models.MediaImage},
		{models.Attachment{URL: "https://x/clip.webm", MediaType: "application/octet-stream"}, models.MediaVideo},
		{models.Attachment{URL: "no-extension"}, models.MediaImage},
		{models.Attachment{URL: "movie.ogg"}, models.MediaVideo},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.att), tc.att.URL)
	}
}

func TestFormatPreviewText(t *testing.T) {
	short := "Is this still in stock?"
	assert.Equal(t, short, FormatPreview(models.Message{Kind: models.KindText, Content: short}))

	exact := strings.Repeat("a", 50)
	assert.Equal(t, exact, FormatPreview(models.Message{Kind: models.KindText, Content: exact}))

	long := strings.Repeat("b", 51)
	got := FormatPreview(models.Message{Kind: models.KindText, Content: long})
	assert.Equal(t, strings.Repeat("b", 50)+"...", got)

	assert.Equal(t, "[Message]", FormatPreview(models.Message{Kind: models.KindText}))
}

func TestFormatPreviewTruncatesRunes(t *testing.T) {
	long := strings.Repeat("é", 60)
	got := FormatPreview(models.Message{Content: long})
	assert.Equal(t, strings.Repeat("é", 50)+"...", got)
}

func TestFormatPreviewMedia(t *testing.T) {
	img := models.Attachment{URL: "https://cdn/a.jpg"}
	vid := models.Attachment{URL: "https://cdn/a.mp4"}

	assert.Equal(t, "[Image]", FormatPreview(models.Message{Kind: models.KindImage, Attachments: models.Attachments{img}}))
	assert.Equal(t, "[Video]", FormatPreview(models.Message{Kind: models.KindVideo, Attachments: models.Attachments{vid}}))
	assert.Equal(t, "[Image, Video]", FormatPreview(models.Message{Kind: models.KindMixed, Attachments: models.Attachments{img, img, vid}}))
	assert.Equal(t, "[3 images]", FormatPreview(models.Message{Kind: models.KindMixed, Attachments: models.Attachments{img, img, img}}))
	assert.Equal(t, "[2 videos]", FormatPreview(models.Message{Kind: models.KindMixed, Attachments: models.Attachments{vid, vid}}))
	assert.Equal(t, "[Image]", FormatPreview(models.Message{Kind: models.KindMixed, Attachments: models.Attachments{img}}))
	assert.Equal(t, "[Message]", FormatPreview(models.Message{Kind: models.KindMixed}))
	assert.Equal(t, "with caption", FormatPreview(models.Message{Kind: models.KindMixed, Content: "with caption", Attachments: models.Attachments{img, vid}}))
}
