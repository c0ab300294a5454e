package drive

import "errors"

var (
	// ErrNotFound is returned when a path does not resolve to any node, or
	// when a file cannot be retrieved from any storage server.
	ErrNotFound = errors.New("not found")

	// ErrNotAFolder is returned when a path resolves to a file where a
	// folder was expected.
	ErrNotAFolder = errors.New("not a folder")

	// ErrNotAFile is returned when a path resolves to a folder where a
	// file was expected.
	ErrNotAFile = errors.New("not a file")

	// ErrMissingIdentifier is returned when a manifest event carries no
	// "d" tag, or when a template is built for a drive with no identifier.
	ErrMissingIdentifier = errors.New("missing identifier tag")

	// ErrLocked is returned when an operation requires an unlocked
	// encrypted drive.
	ErrLocked = errors.New("drive is locked")

	// ErrAlreadyUnlocked is returned by Unlock on a drive that is not locked.
	ErrAlreadyUnlocked = errors.New("drive is already unlocked")

	// ErrNoManifest is returned by Unlock when no manifest event has ever
	// been observed.
	ErrNoManifest = errors.New("no manifest event observed")

	// ErrNoPassword is returned when an encrypted drive operation requires
	// an associated password and none is set.
	ErrNoPassword = errors.New("no password associated")

	// ErrDecryptFailed indicates a wrong password or corrupt ciphertext.
	// Cipher implementations wrap this so callers can branch on it.
	ErrDecryptFailed = errors.New("decryption failed")

	// ErrUploadInProgress is returned when a second upload batch is started
	// against a drive that already has one in flight.
	ErrUploadInProgress = errors.New("upload already in progress")
)
