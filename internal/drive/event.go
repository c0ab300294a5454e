package drive

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/nbd-wtf/go-nostr"
)

// Manifest event kinds. A drive's state is a parameterized replaceable
// nostr event; the encrypted variant uses its own kind.
const (
	KindDrive          = 30563
	KindEncryptedDrive = 30564
)

// Tag names that make up the manifest vocabulary.
const (
	tagIdentifier  = "d"
	tagName        = "name"
	tagDescription = "description"
	tagServer      = "server"
	tagServerOld   = "r" // legacy server tag, read but never written
	tagFile        = "x"
	tagFolder      = "folder"
	tagScryptLogN  = "scrypt-logn"
)

// Scrypt work-factor bounds for encrypted drives. Values outside the range
// are clamped; unparsable or absent values fall back to the default.
const (
	MinScryptLogN     = 1
	MaxScryptLogN     = 22
	DefaultScryptLogN = 16
)

// Metadata is the non-tree portion of a drive manifest.
type Metadata struct {
	Identifier  string
	Name        string
	Description string
	Servers     []string
	Pubkey      string
}

// ReadEventMetadata extracts drive metadata from a manifest event's tags.
// It fails if no identifier tag is present; name and description default to
// empty. Server URLs are normalized to their origin root and deduplicated.
func ReadEventMetadata(ev *nostr.Event) (Metadata, error) {
	meta := Metadata{Pubkey: ev.PubKey}
	seen := make(map[string]bool)
	for _, tag := range ev.Tags {
		if len(tag) < 2 {
			continue
		}
		switch tag[0] {
		case tagIdentifier:
			if meta.Identifier == "" {
				meta.Identifier = tag[1]
			}
		case tagName:
			if meta.Name == "" {
				meta.Name = tag[1]
			}
		case tagDescription:
			if meta.Description == "" {
				meta.Description = tag[1]
			}
		case tagServer, tagServerOld:
			server, err := normalizeServerURL(tag[1])
			if err != nil {
				continue
			}
			if !seen[server] {
				seen[server] = true
				meta.Servers = append(meta.Servers, server)
			}
		}
	}
	if meta.Identifier == "" {
		return Metadata{}, ErrMissingIdentifier
	}
	return meta, nil
}

// normalizeServerURL resolves a server URL to its origin root
// (scheme://host, no path, no trailing slash).
func normalizeServerURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing server url %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("server url %q has no origin", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// isManifestTag reports whether the tag belongs to the manifest vocabulary
// this package derives from drive state. Anything else is carried over
// untouched when a new template is built, because it cannot be re-derived.
func isManifestTag(tag nostr.Tag) bool {
	if len(tag) == 0 {
		return false
	}
	switch tag[0] {
	case tagIdentifier, tagName, tagDescription, tagServer, tagServerOld,
		tagFile, tagFolder, tagScryptLogN:
		return true
	}
	return false
}

// carryOverTags returns the tags of the previous manifest that are not part
// of the derivable vocabulary.
func carryOverTags(ev *nostr.Event) nostr.Tags {
	if ev == nil {
		return nil
	}
	var kept nostr.Tags
	for _, tag := range ev.Tags {
		if !isManifestTag(tag) {
			kept = append(kept, tag)
		}
	}
	return kept
}

// metadataTags renders the derivable metadata portion of a manifest.
func metadataTags(meta Metadata) nostr.Tags {
	tags := nostr.Tags{
		nostr.Tag{tagIdentifier, meta.Identifier},
		nostr.Tag{tagName, meta.Name},
		nostr.Tag{tagDescription, meta.Description},
	}
	for _, server := range meta.Servers {
		tags = append(tags, nostr.Tag{tagServer, server})
	}
	return tags
}

// parseScryptLogN interprets a scrypt-logn tag value. Out-of-range values
// are clamped into [MinScryptLogN, MaxScryptLogN]; anything unparsable
// falls back to DefaultScryptLogN.
func parseScryptLogN(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return DefaultScryptLogN
	}
	if n < MinScryptLogN {
		return MinScryptLogN
	}
	if n > MaxScryptLogN {
		return MaxScryptLogN
	}
	return n
}

// scryptLogNTag finds the scrypt-logn tag on an event, applying the same
// clamp-or-default rules as parseScryptLogN when it is absent.
func scryptLogNTag(ev *nostr.Event) int {
	for _, tag := range ev.Tags {
		if len(tag) >= 2 && tag[0] == tagScryptLogN {
			return parseScryptLogN(tag[1])
		}
	}
	return DefaultScryptLogN
}
