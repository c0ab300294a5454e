package drive

import (
	"strconv"

	"github.com/nbd-wtf/go-nostr"
)

// TreeToTags serializes a tree into its tag tuple form: a "folder" tag per
// folder (so empty folders survive a round trip) and an "x" tag per file
// carrying hash, full path, size and MIME type.
func TreeToTags(t *Tree) nostr.Tags {
	var tags nostr.Tags
	for path, node := range t.Walk() {
		switch n := node.(type) {
		case *Folder:
			tags = append(tags, nostr.Tag{tagFolder, path})
		case *File:
			tags = append(tags, nostr.Tag{
				tagFile, n.SHA256, path, strconv.FormatInt(n.Size, 10), n.Type,
			})
		}
	}
	return tags
}

// TreeFromTags rebuilds a tree from its tag tuple form. Folders are created
// implicitly from file paths and explicitly from "folder" tags; malformed
// tags are skipped.
func TreeFromTags(tags nostr.Tags) *Tree {
	t := NewTree()
	for _, tag := range tags {
		switch {
		case len(tag) >= 2 && tag[0] == tagFolder:
			// A folder tag with an unusable path is ignored.
			t.Folder(tag[1], true)
		case len(tag) >= 4 && tag[0] == tagFile:
			size, err := strconv.ParseInt(tag[3], 10, 64)
			if err != nil {
				continue
			}
			mimeType := ""
			if len(tag) >= 5 {
				mimeType = tag[4]
			}
			t.SetFile(tag[2], tag[1], size, mimeType)
		}
	}
	return t
}
