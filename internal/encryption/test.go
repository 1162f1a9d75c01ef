package encryption

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"dsync-go/internal/dsync"
)

// testHeader marks output of TestEncryptor so it never equals the input.
var testHeader = []byte("DSENC\x00\x00\x00")

// TestEncryptor is a deterministic, reversible stand-in for tests. It wraps
// the data in a fixed header and a trailing SHA-256 so corruption is still
// reported as a decryption failure.
type TestEncryptor struct{}

var _ dsync.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	sum := sha256.Sum256(plaintext)
	out := make([]byte, 0, len(testHeader)+len(plaintext)+len(sum))
	out = append(out, testHeader...)
	out = append(out, plaintext...)
	out = append(out, sum[:]...)
	return out, nil
}

func (e *TestEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < len(testHeader)+sha256.Size || !bytes.HasPrefix(ciphertext, testHeader) {
		return nil, fmt.Errorf("invalid test encryption header")
	}
	body := ciphertext[len(testHeader) : len(ciphertext)-sha256.Size]
	sum := sha256.Sum256(body)
	if !bytes.Equal(sum[:], ciphertext[len(ciphertext)-sha256.Size:]) {
		return nil, fmt.Errorf("test ciphertext checksum mismatch")
	}
	return append([]byte(nil), body...), nil
}
