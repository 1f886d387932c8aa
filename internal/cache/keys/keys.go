// Package keys builds deterministic cache keys for fetched tile rasters.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/sentinel-hub/classification-app-backend/internal/model"
)

// Tile returns the cache key of one tile fetch. The bounds/resolution text is
// hashed so the key stays short and byte-for-byte reproducible; the sanitized
// source and layer segments keep keys readable when scanning the store.
func Tile(sourceID, layer string, tile model.TileWindow) string {
	canonical := fmt.Sprintf("%s|%g|%dx%d", tile.Bounds, tile.Resolution, tile.Width, tile.Height)
	sum := xxhash.Sum64String(canonical)

	if layer == "" {
		return fmt.Sprintf("raster:%s:t=%016x", sanitize(sourceID), sum)
	}
	return fmt.Sprintf("raster:%s:%s:t=%016x", sanitize(sourceID), sanitize(layer), sum)
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
