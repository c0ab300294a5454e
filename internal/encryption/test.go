package encryption

import (
	"bytes"
	"fmt"

	"github.com/hzrd149/blossom-drive-client/internal/drive"
)

// testHeader is prepended to data by TestCipher to make encrypted output
// clearly different from plaintext while remaining deterministic and
// reversible.
var testHeader = []byte("BDENC\x00\x00\x00")

// TestCipher is a simple, deterministic cipher for testing. Ciphertext is
// header + password + NUL + plaintext, so wrong-password decryption fails
// the same way a real cipher's would, without any crypto cost.
type TestCipher struct{}

var _ drive.Cipher = (*TestCipher)(nil)

// NewTestCipher creates a new TestCipher.
func NewTestCipher() *TestCipher {
	return &TestCipher{}
}

func (c *TestCipher) Encrypt(plain []byte, password string, logN int) ([]byte, error) {
	out := make([]byte, 0, len(testHeader)+len(password)+1+len(plain))
	out = append(out, testHeader...)
	out = append(out, password...)
	out = append(out, 0)
	out = append(out, plain...)
	return out, nil
}

func (c *TestCipher) Decrypt(ciphertext []byte, password string) ([]byte, error) {
	rest, ok := bytes.CutPrefix(ciphertext, testHeader)
	if !ok {
		return nil, fmt.Errorf("%w: bad test header", drive.ErrDecryptFailed)
	}
	want := append([]byte(password), 0)
	rest, ok = bytes.CutPrefix(rest, want)
	if !ok {
		return nil, fmt.Errorf("%w: wrong password", drive.ErrDecryptFailed)
	}
	return rest, nil
}
