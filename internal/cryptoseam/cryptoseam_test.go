package cryptoseam_test

import (
	"testing"

	"github.com/jrh327/sfs/internal/cryptoseam"
	"github.com/stretchr/testify/assert"
)

func TestIdentityEncryptorIsNoOp(t *testing.T) {
	var block [cryptoseam.BlockSize]byte
	copy(block[:], "0123456789abcdef")

	enc := cryptoseam.IdentityEncryptor{}
	key := cryptoseam.Key("unused")

	assert.Equal(t, block, enc.Encrypt(block, key))
	assert.Equal(t, block, enc.Decrypt(block, key))
	assert.Equal(t, block, enc.Decrypt(enc.Encrypt(block, key), key))
}
