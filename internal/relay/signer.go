// Package relay provides the signed-event transport for drive manifests:
// signing with a local nostr key and publishing/fetching through a set of
// relays.
package relay

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
)

// KeySigner signs events with an in-memory nostr private key.
type KeySigner struct {
	sk string
	pk string
}

// NewKeySigner creates a signer from a hex-encoded private key.
func NewKeySigner(privateKey string) (*KeySigner, error) {
	pk, err := nostr.GetPublicKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}
	return &KeySigner{sk: privateKey, pk: pk}, nil
}

// GenerateKeySigner creates a signer with a freshly generated key.
func GenerateKeySigner() (*KeySigner, error) {
	return NewKeySigner(nostr.GeneratePrivateKey())
}

// PublicKey returns the signer's hex-encoded public key.
func (s *KeySigner) PublicKey() string { return s.pk }

// PrivateKey returns the hex-encoded private key, for writing to config.
func (s *KeySigner) PrivateKey() string { return s.sk }

// Sign fills in the event's ID, pubkey and signature.
func (s *KeySigner) Sign(_ context.Context, ev *nostr.Event) error {
	if err := ev.Sign(s.sk); err != nil {
		return fmt.Errorf("signing event: %w", err)
	}
	return nil
}
