// Package mediatype provides MIME type and extension lookups for drive
// files. Lookups return "" for unknown rather than failing.
package mediatype

import (
	"mime"
	"path/filepath"
	"strings"
)

// PlaylistType is the canonical type for HLS media playlists. Browsers and
// some OS tables report .m3u8 files as plain audio playlists; Correct fixes
// that up.
const PlaylistType = "application/vnd.apple.mpegurl"

// extensionByType overrides the platform MIME table for types where it is
// absent or ambiguous.
var extensionByType = map[string]string{
	PlaylistType:      "m3u8",
	"audio/mpegurl":   "m3u8",
	"audio/x-mpegurl": "m3u8",
	"image/jpeg":      "jpg",
	"text/plain":      "txt",
}

// typeByExtension overrides the platform MIME table for extensions it maps
// poorly or not at all.
var typeByExtension = map[string]string{
	".m3u8": PlaylistType,
	".flac": "audio/flac",
	".md":   "text/markdown",
}

// Correct applies the known browser mislabeling fix: an audio-typed
// playlist whose name says it is an HLS playlist gets PlaylistType.
// Every other input is returned unchanged.
func Correct(name, declaredType string) string {
	if declaredType != "audio/mpegurl" && declaredType != "audio/x-mpegurl" {
		return declaredType
	}
	if strings.HasSuffix(strings.ToLower(name), ".m3u8") {
		return PlaylistType
	}
	return declaredType
}

// TypeByName returns the MIME type implied by a file name's extension,
// or "" when unknown.
func TypeByName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	if t, ok := typeByExtension[ext]; ok {
		return t
	}
	t := mime.TypeByExtension(ext)
	if t == "" {
		return ""
	}
	// Strip parameters such as "; charset=utf-8".
	if i := strings.Index(t, ";"); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

// ExtensionForType returns a file extension (without the dot) for a MIME
// type, or "" when unknown.
func ExtensionForType(mimeType string) string {
	if mimeType == "" {
		return ""
	}
	if ext, ok := extensionByType[mimeType]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return strings.TrimPrefix(exts[0], ".")
}
