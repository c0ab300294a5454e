package encryption

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"

	"github.com/hzrd149/blossom-drive-client/internal/drive"
)

// AgeCipher implements drive.Cipher using filippo.io/age passphrase
// encryption. The scrypt work factor is the drive's public key-derivation
// cost; decryption recovers it from the age header, so only the password is
// needed to decrypt.
type AgeCipher struct{}

var _ drive.Cipher = (*AgeCipher)(nil)

// NewAgeCipher creates a new AgeCipher.
func NewAgeCipher() *AgeCipher {
	return &AgeCipher{}
}

// Encrypt performs a whole-buffer age passphrase encryption of plain with
// the given scrypt work factor.
func (c *AgeCipher) Encrypt(plain []byte, password string, logN int) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(password)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(logN)

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(plain); err != nil {
		return nil, fmt.Errorf("encrypting data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), nil
}

// Decrypt reverses Encrypt. A wrong password or corrupt input yields an
// error wrapping drive.ErrDecryptFailed.
func (c *AgeCipher) Decrypt(ciphertext []byte, password string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(password)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", drive.ErrDecryptFailed, err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", drive.ErrDecryptFailed, err)
	}
	return plain, nil
}
