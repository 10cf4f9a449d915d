// Package cryptoseam defines the narrow encryption contract the core
// consumes: encrypt/decrypt a single 16-byte block under an opaque key. The
// concrete primitive (AES-CBC or otherwise) is an external collaborator the
// core never chooses; callers guarantee block alignment, and sub-block
// writes go through the read-modify-write path in internal/clusterio.
package cryptoseam

// BlockSize is the fixed crypto-block size every Encryptor operates on.
const BlockSize = 16

// Key is an opaque key handle. The seam never interprets key material; it's
// passed through unchanged to the Encryptor implementation.
type Key []byte

// Encryptor is the crypto seam's contract: both operations take one
// BlockSize-byte block and a key, and produce exactly BlockSize bytes.
type Encryptor interface {
	Encrypt(block [BlockSize]byte, key Key) [BlockSize]byte
	Decrypt(block [BlockSize]byte, key Key) [BlockSize]byte
}

// IdentityEncryptor is the stub implementation: encrypt and decrypt are both
// no-ops. Every other test in this module must pass unmodified against it,
// per spec.md §4.3.
type IdentityEncryptor struct{}

func (IdentityEncryptor) Encrypt(block [BlockSize]byte, _ Key) [BlockSize]byte {
	return block
}

func (IdentityEncryptor) Decrypt(block [BlockSize]byte, _ Key) [BlockSize]byte {
	return block
}
