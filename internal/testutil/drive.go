package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/nbd-wtf/go-nostr"

	"github.com/hzrd149/blossom-drive-client/internal/relay"
)

// TestPrivateKey is a fixed nostr key so signed events are reproducible.
// Never use outside tests.
const TestPrivateKey = "0000000000000000000000000000000000000000000000000000000000000001"

// NewTestSigner returns a KeySigner backed by TestPrivateKey.
func NewTestSigner(t *testing.T) *relay.KeySigner {
	t.Helper()
	s, err := relay.NewKeySigner(TestPrivateKey)
	if err != nil {
		t.Fatalf("creating test signer: %v", err)
	}
	return s
}

// RecordingPublisher captures published events instead of sending them to
// relays. Set Err to make every Publish fail.
type RecordingPublisher struct {
	mu     sync.Mutex
	Events []*nostr.Event
	Err    error
}

func (p *RecordingPublisher) Publish(_ context.Context, ev *nostr.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, ev)
	return nil
}

// Last returns the most recently published event, or nil.
func (p *RecordingPublisher) Last() *nostr.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Events) == 0 {
		return nil
	}
	return p.Events[len(p.Events)-1]
}

// MemoryBlobStore is an in-memory blob downloader keyed by (server, hash).
// Mark a server as failing to simulate an unreachable one.
type MemoryBlobStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte // key: server + "|" + sha256
	failing map[string]bool
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{
		blobs:   make(map[string][]byte),
		failing: make(map[string]bool),
	}
}

// Put stores a blob for one server.
func (s *MemoryBlobStore) Put(server, sha256 string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[server+"|"+sha256] = data
}

// Fail makes every download from server return an error.
func (s *MemoryBlobStore) Fail(server string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[server] = true
}

func (s *MemoryBlobStore) Download(_ context.Context, server, sha256 string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing[server] {
		return nil, fmt.Errorf("server %s unavailable", server)
	}
	data, ok := s.blobs[server+"|"+sha256]
	if !ok {
		return nil, fmt.Errorf("blob %s not found on %s", sha256, server)
	}
	return data, nil
}
