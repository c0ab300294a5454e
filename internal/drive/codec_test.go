package drive_test

import (
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"github.com/hzrd149/blossom-drive-client/internal/drive"
)

func TestTreeTags_RoundTrip(t *testing.T) {
	tr := drive.NewTree()
	tr.SetFile("/music/song.mp3", "aaa", 3000, "audio/mpeg")
	tr.SetFile("/music/cover.jpg", "bbb", 500, "image/jpeg")
	tr.Folder("/empty", true)

	got := drive.TreeFromTags(drive.TreeToTags(tr))

	f, err := got.File("/music/song.mp3")
	if err != nil {
		t.Fatalf("File() after round trip: %v", err)
	}
	if f.SHA256 != "aaa" || f.Size != 3000 || f.Type != "audio/mpeg" {
		t.Errorf("file = %+v, want sha=aaa size=3000 type=audio/mpeg", f)
	}

	// Empty folders are encoded explicitly, so they survive.
	if _, err := got.Folder("/empty", false); err != nil {
		t.Errorf("empty folder lost in round trip: %v", err)
	}

	var wantPaths, gotPaths []string
	for p := range tr.Walk() {
		wantPaths = append(wantPaths, p)
	}
	for p := range got.Walk() {
		gotPaths = append(gotPaths, p)
	}
	if len(wantPaths) != len(gotPaths) {
		t.Fatalf("round trip changed node count: %v vs %v", wantPaths, gotPaths)
	}
	for i := range wantPaths {
		if wantPaths[i] != gotPaths[i] {
			t.Errorf("path[%d] = %q, want %q", i, gotPaths[i], wantPaths[i])
		}
	}
}

func TestTreeToTags_Deterministic(t *testing.T) {
	tr := drive.NewTree()
	tr.SetFile("/z.txt", "h1", 1, "")
	tr.SetFile("/a.txt", "h2", 2, "")
	tr.SetFile("/m/x.txt", "h3", 3, "")

	first := drive.TreeToTags(tr)
	for i := 0; i < 10; i++ {
		again := drive.TreeToTags(tr)
		if len(again) != len(first) {
			t.Fatalf("tag count changed between encodings")
		}
		for j := range first {
			if len(first[j]) != len(again[j]) {
				t.Fatalf("encoding %d differs at tag %d: %v vs %v", i, j, again[j], first[j])
			}
			for k := range first[j] {
				if first[j][k] != again[j][k] {
					t.Fatalf("encoding %d differs at tag %d: %v vs %v", i, j, again[j], first[j])
				}
			}
		}
	}
}

func TestTreeFromTags_SkipsMalformed(t *testing.T) {
	tags := nostr.Tags{
		{"x", "goodhash", "/good.txt", "10", "text/plain"},
		{"x", "short"},                           // too few fields
		{"x", "badsize", "/bad.txt", "not-int"}, // unparsable size
		{"x", "nomime", "/nomime.bin", "5"},     // mime optional
		{"folder", "/kept"},
		{"folder"}, // no path
	}

	tr := drive.TreeFromTags(tags)

	if _, err := tr.File("/good.txt"); err != nil {
		t.Errorf("well-formed file tag dropped: %v", err)
	}
	f, err := tr.File("/nomime.bin")
	if err != nil {
		t.Fatalf("file tag without mime dropped: %v", err)
	}
	if f.Type != "" {
		t.Errorf("mime = %q, want empty", f.Type)
	}
	if _, err := tr.File("/bad.txt"); err == nil {
		t.Errorf("file with unparsable size was kept")
	}
	if _, err := tr.Folder("/kept", false); err != nil {
		t.Errorf("folder tag dropped: %v", err)
	}
}
