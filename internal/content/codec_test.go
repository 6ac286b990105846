package content

import (
	"testing"

	"storyloom/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestIsPinnedColumnAndLegacyPrefix(t *testing.T) {
	assert.True(t, IsPinned(&model.Comment{Pinned: true, Body: "hello"}))
	assert.True(t, IsPinned(&model.Comment{Body: "[pin]hello"}))
	assert.False(t, IsPinned(&model.Comment{Body: "hello"}))
	// The marker only counts as a prefix
	assert.False(t, IsPinned(&model.Comment{Body: "see [pin]hello"}))
}

func TestVisibleBodyStripsPinMarker(t *testing.T) {
	assert.Equal(t, "hello", VisibleBody(&model.Comment{Body: "[pin]hello"}))
	assert.Equal(t, "hello", VisibleBody(&model.Comment{Body: "hello"}))
	// Stripping is exact: only the first marker goes
	assert.Equal(t, "[pin]hello", VisibleBody(&model.Comment{Body: "[pin][pin]hello"}))
}

func TestIsStickerDetection(t *testing.T) {
	assert.True(t, IsSticker(&model.Comment{Kind: model.KindSticker}))
	assert.True(t, IsSticker(&model.Comment{Kind: model.KindText, StickerRef: strptr("cat/wave")}))
	assert.True(t, IsSticker(&model.Comment{Body: "[sticker]cat/wave"}))
	assert.False(t, IsSticker(&model.Comment{Body: "just text"}))
}

func TestIsStickerUnderPinOverlay(t *testing.T) {
	// A pinned legacy sticker is still a sticker: the pin marker is an
	// overlay, not a content type.
	c := &model.Comment{Body: "[pin][sticker]cat/wave"}
	assert.True(t, IsPinned(c))
	assert.True(t, IsSticker(c))

	loc, ok := StickerLocator(c)
	require.True(t, ok)
	assert.Equal(t, "cat/wave", loc)
}

func TestStickerLocatorPrefersColumn(t *testing.T) {
	c := &model.Comment{Body: "[sticker]old/ref", StickerRef: strptr("new/ref")}
	loc, ok := StickerLocator(c)
	require.True(t, ok)
	assert.Equal(t, "new/ref", loc)

	_, ok = StickerLocator(&model.Comment{Body: "plain text"})
	assert.False(t, ok)
}

func TestEncodeSticker(t *testing.T) {
	assert.Equal(t, "[sticker]cat/wave", EncodeSticker("cat/wave"))
	assert.Equal(t, "plain", EncodeText("plain"))
}

func TestNormalizeLiftsLegacyPin(t *testing.T) {
	c := &model.Comment{Body: "[pin]hello", Kind: model.KindText}
	require.True(t, Normalize(c))
	assert.True(t, c.Pinned)
	assert.Equal(t, "hello", c.Body)

	// Re-running changes nothing: the pin now lives only in the column
	assert.False(t, Normalize(c))
	assert.Equal(t, "hello", c.Body)
}

func TestNormalizeLiftsLegacySticker(t *testing.T) {
	c := &model.Comment{Body: "[sticker]cat/wave", Kind: model.KindText}
	require.True(t, Normalize(c))
	assert.Equal(t, model.KindSticker, c.Kind)
	require.NotNil(t, c.StickerRef)
	assert.Equal(t, "cat/wave", *c.StickerRef)
	// The body keeps the sticker encoding for old readers
	assert.Equal(t, "[sticker]cat/wave", c.Body)
}

func TestNormalizeUnknownKindDegradesToText(t *testing.T) {
	c := &model.Comment{Body: "hello", Kind: "gif"}
	require.True(t, Normalize(c))
	assert.Equal(t, model.KindText, c.Kind)
}

func TestNormalizeCleanRowUntouched(t *testing.T) {
	c := &model.Comment{Body: "hello", Kind: model.KindText}
	assert.False(t, Normalize(c))
}
