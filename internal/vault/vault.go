// Package vault provides local blob mirrors: redundant copies of a drive's
// content-addressed blobs outside its blossom servers.
package vault

import (
	"context"
	"io"
)

// Vault stores blobs keyed by their content hash. All operations stream
// through io.Reader/io.Writer to support large blobs without loading them
// entirely into memory.
type Vault interface {
	// PutBlob stores a blob identified by its checksum.
	// The operation is idempotent: storing the same checksum multiple times is safe.
	// size is the number of bytes that will be read from r.
	PutBlob(ctx context.Context, sha256 string, r io.Reader, size int64) error

	// GetBlob retrieves a blob by checksum and writes it to w.
	GetBlob(ctx context.Context, sha256 string, w io.Writer) error

	// HasBlob reports whether the vault already stores the blob.
	HasBlob(ctx context.Context, sha256 string) (bool, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup(ctx context.Context) error
}
