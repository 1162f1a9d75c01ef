package encryption

import (
	"fmt"

	"dsync-go/internal/config"
	"dsync-go/internal/dsync"
)

// NewEncryptorFromConfig creates an Encryptor based on the configuration
// type. For "age" this loads the key file, creating it on first run; the
// composition root calls it exactly once.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (dsync.Encryptor, error) {
	switch cfg.Type {
	case "age", "":
		if cfg.KeyPath == "" {
			return nil, fmt.Errorf("age encryption requires key_path to be set")
		}
		enc, _, err := LoadOrCreateKey(cfg.KeyPath)
		if err != nil {
			return nil, err
		}
		return enc, nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %q", cfg.Type)
	}
}
