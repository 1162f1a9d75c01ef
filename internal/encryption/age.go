package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"dsync-go/internal/dsync"
)

// AgeEncryptor implements dsync.Encryptor using filippo.io/age with a single
// X25519 identity. age payloads are authenticated, so tampering or a foreign
// key fails decryption instead of yielding garbage.
type AgeEncryptor struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

var _ dsync.Encryptor = (*AgeEncryptor)(nil)

// NewAgeEncryptor wraps an already loaded identity.
func NewAgeEncryptor(identity *age.X25519Identity) *AgeEncryptor {
	return &AgeEncryptor{identity: identity, recipient: identity.Recipient()}
}

// LoadOrCreateKey reads the identity stored at path, generating and writing
// a new one with owner-only permissions when the file does not exist. Losing
// this file makes everything uploaded with it unrecoverable.
func LoadOrCreateKey(path string) (*AgeEncryptor, bool, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		identity, err := age.ParseX25519Identity(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, false, fmt.Errorf("parsing key file %s: %w", path, err)
		}
		return NewAgeEncryptor(identity), false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("reading key file: %w", err)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, false, fmt.Errorf("generating key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, false, fmt.Errorf("creating key directory: %w", err)
	}

	// Never replace a key that appeared since the read above.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, false, fmt.Errorf("creating key file: %w", err)
	}
	if _, err := io.WriteString(f, identity.String()+"\n"); err != nil {
		f.Close()
		os.Remove(path)
		return nil, false, fmt.Errorf("writing key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, false, fmt.Errorf("closing key file: %w", err)
	}
	return NewAgeEncryptor(identity), true, nil
}

// Recipient returns the public half of the key, safe to display.
func (e *AgeEncryptor) Recipient() string {
	return e.recipient.String()
}

func (e *AgeEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, e.recipient)
	if err != nil {
		return nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("encrypting data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *AgeEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(ciphertext), e.identity)
	if err != nil {
		return nil, fmt.Errorf("opening ciphertext: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decrypting data: %w", err)
	}
	return plaintext, nil
}
