package mediatype_test

import (
	"testing"

	"github.com/hzrd149/blossom-drive-client/internal/mediatype"
)

func TestCorrect(t *testing.T) {
	tests := []struct {
		name         string
		fileName     string
		declaredType string
		want         string
	}{
		{"mislabelled hls playlist", "live.m3u8", "audio/mpegurl", mediatype.PlaylistType},
		{"mislabelled hls playlist x-variant", "live.m3u8", "audio/x-mpegurl", mediatype.PlaylistType},
		{"case insensitive name", "LIVE.M3U8", "audio/mpegurl", mediatype.PlaylistType},
		{"plain playlist keeps its type", "radio.m3u", "audio/mpegurl", "audio/mpegurl"},
		{"unrelated type untouched", "song.mp3", "audio/mpeg", "audio/mpeg"},
		{"empty type untouched", "file.m3u8", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mediatype.Correct(tt.fileName, tt.declaredType); got != tt.want {
				t.Errorf("Correct(%q, %q) = %q, want %q", tt.fileName, tt.declaredType, got, tt.want)
			}
		})
	}
}

func TestTypeByName(t *testing.T) {
	tests := []struct {
		fileName string
		want     string
	}{
		{"playlist.m3u8", mediatype.PlaylistType},
		{"album.flac", "audio/flac"},
		{"notes.md", "text/markdown"},
		{"page.html", "text/html"}, // parameters like charset are stripped
		{"noext", ""},
		{"weird.zzz9", ""},
	}
	for _, tt := range tests {
		if got := mediatype.TypeByName(tt.fileName); got != tt.want {
			t.Errorf("TypeByName(%q) = %q, want %q", tt.fileName, got, tt.want)
		}
	}
}

func TestExtensionForType(t *testing.T) {
	tests := []struct {
		mimeType string
		want     string
	}{
		{mediatype.PlaylistType, "m3u8"},
		{"audio/mpegurl", "m3u8"},
		{"image/jpeg", "jpg"},
		{"text/plain", "txt"},
		{"", ""},
		{"application/x-no-such-type", ""},
	}
	for _, tt := range tests {
		if got := mediatype.ExtensionForType(tt.mimeType); got != tt.want {
			t.Errorf("ExtensionForType(%q) = %q, want %q", tt.mimeType, got, tt.want)
		}
	}
}
