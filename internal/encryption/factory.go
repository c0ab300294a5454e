package encryption

import (
	"fmt"

	"github.com/hzrd149/blossom-drive-client/internal/config"
	"github.com/hzrd149/blossom-drive-client/internal/drive"
)

// NewCipherFromConfig creates a Cipher based on the configuration type.
func NewCipherFromConfig(cfg config.EncryptionConfig) (drive.Cipher, error) {
	switch cfg.Type {
	case "age", "":
		return NewAgeCipher(), nil
	case "test":
		return NewTestCipher(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
