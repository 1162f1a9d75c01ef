package dsync

// Encryptor is the authenticated confidentiality transform applied to every
// uploaded file. Implementations hold their key material; they are built once
// by the composition root and passed in.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
	// Decrypt fails when the ciphertext was tampered with or the key does
	// not match.
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Compressor is the reversible transform applied before encryption.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	// ShouldCompress reports whether a file of the given original size is
	// large enough to be compressed.
	ShouldCompress(size int64) bool
}
