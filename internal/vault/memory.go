package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemoryVault is an in-memory implementation of the Vault interface,
// useful for testing. This implementation is safe for concurrent use.
type MemoryVault struct {
	name  string
	blobs map[string][]byte // checksum -> content
	mu    sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{name: name, blobs: make(map[string][]byte)}
}

// PutBlob stores a blob identified by its checksum.
func (m *MemoryVault) PutBlob(_ context.Context, sha256 string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Idempotent: storing the same checksum multiple times is safe
	m.blobs[sha256] = data
	return nil
}

// GetBlob retrieves a blob by checksum.
func (m *MemoryVault) GetBlob(_ context.Context, sha256 string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[sha256]
	if !ok {
		return fmt.Errorf("blob not found: %s", sha256)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}

	return nil
}

// HasBlob reports whether the vault stores the blob.
func (m *MemoryVault) HasBlob(_ context.Context, sha256 string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.blobs[sha256]
	return ok, nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup(context.Context) error {
	return nil
}

// Compile-time check that MemoryVault implements the Vault interface
var _ Vault = (*MemoryVault)(nil)
