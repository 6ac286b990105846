// Package content interprets the dual-purpose comment body: plain text,
// sticker locator, and the pin overlay. New rows carry the explicit kind,
// pinned and sticker_ref columns; rows written by the legacy format encode
// the same information as body prefixes ("[pin]", "[sticker]") and are
// decoded here so both generations stay readable.
package content

import (
	"log"
	"strings"

	"storyloom/internal/model"

	"gorm.io/gorm"
)

const (
	// PinMarker is the legacy in-body prefix for pinned roots.
	PinMarker = "[pin]"
	// StickerMarker prefixes a sticker locator in the body. It is still
	// written on new sticker rows so older readers of the table stay correct.
	StickerMarker = "[sticker]"
)

// IsPinned reports whether the comment carries the pin overlay, from the
// explicit column or the legacy body prefix.
func IsPinned(c *model.Comment) bool {
	return c.Pinned || strings.HasPrefix(c.Body, PinMarker)
}

// VisibleBody returns the body with the pin marker stripped if present,
// otherwise the body unchanged. Stripping is an exact inverse of prefixing:
// toggling pin off a legacy row restores the original text byte for byte.
func VisibleBody(c *model.Comment) string {
	return strings.TrimPrefix(c.Body, PinMarker)
}

// IsSticker reports whether the comment should render as a sticker: explicit
// kind, explicit locator, or the legacy body encoding. A pin marker does not
// override this; pinning is a presentation overlay, not a content type.
// Unknown kind values degrade to plain text.
func IsSticker(c *model.Comment) bool {
	if c.Kind == model.KindSticker {
		return true
	}
	if c.StickerRef != nil && *c.StickerRef != "" {
		return true
	}
	return strings.HasPrefix(VisibleBody(c), StickerMarker)
}

// StickerLocator returns the sticker asset locator: the explicit column if
// present, else the suffix of the legacy body encoding. The second return is
// false when the comment carries no locator at all.
func StickerLocator(c *model.Comment) (string, bool) {
	if c.StickerRef != nil && *c.StickerRef != "" {
		return *c.StickerRef, true
	}
	body := VisibleBody(c)
	if strings.HasPrefix(body, StickerMarker) {
		return strings.TrimPrefix(body, StickerMarker), true
	}
	return "", false
}

// EncodeText returns the stored body for a plain text comment.
func EncodeText(text string) string {
	return text
}

// EncodeSticker returns the stored body for a sticker comment. The locator is
// kept in the body alongside the explicit column for backward compatibility.
func EncodeSticker(locator string) string {
	return StickerMarker + locator
}

// Normalize decodes legacy body prefixes into the explicit columns and
// reports whether the row changed. It never double-strips: once the pin
// marker is gone the pinned flag lives only in the column.
func Normalize(c *model.Comment) bool {
	changed := false
	if strings.HasPrefix(c.Body, PinMarker) {
		c.Pinned = true
		c.Body = strings.TrimPrefix(c.Body, PinMarker)
		changed = true
	}
	if strings.HasPrefix(c.Body, StickerMarker) {
		if c.Kind != model.KindSticker {
			c.Kind = model.KindSticker
			changed = true
		}
		if c.StickerRef == nil || *c.StickerRef == "" {
			ref := strings.TrimPrefix(c.Body, StickerMarker)
			c.StickerRef = &ref
			changed = true
		}
	} else if c.Kind != model.KindText && c.Kind != model.KindSticker {
		// Unknown kind on a non-sticker body: treat as text.
		c.Kind = model.KindText
		changed = true
	}
	return changed
}

// MigrateLegacy rewrites rows still carrying body-prefix encodings into the
// explicit columns. Runs once at startup after AutoMigrate; safe to re-run.
func MigrateLegacy(db *gorm.DB) error {
	var rows []*model.Comment
	pattern := PinMarker + "%"
	stickerPattern := StickerMarker + "%"
	err := db.Where("body LIKE ? OR (body LIKE ? AND (sticker_ref IS NULL OR kind <> ?))",
		pattern, stickerPattern, model.KindSticker).
		Find(&rows).Error
	if err != nil {
		return err
	}

	migrated := 0
	for _, c := range rows {
		if !Normalize(c) {
			continue
		}
		if err := db.Model(&model.Comment{}).Where("id = ?", c.ID).
			Updates(map[string]interface{}{
				"body":        c.Body,
				"kind":        c.Kind,
				"pinned":      c.Pinned,
				"sticker_ref": c.StickerRef,
			}).Error; err != nil {
			return err
		}
		migrated++
	}
	if migrated > 0 {
		log.Printf("Migrated %d legacy comment bodies", migrated)
	}
	return nil
}
