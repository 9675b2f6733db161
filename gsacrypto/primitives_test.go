package gsacrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnownVectors(t *testing.T) {
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		hex.EncodeToString(SHA256([]byte("abc"))))
	assert.Equal(t, "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
		hex.EncodeToString(HMACSHA256([]byte("Jefe"), []byte("what do ya want for nothing?"))))
	assert.Equal(t, "55ac046e56e3089fec1691c22544b605f94185216dde0465e68b9d57c20dacbc49ca9cccf179b645991664b39d77ef317c71b845b1e30bd509112041d3a19783",
		hex.EncodeToString(PBKDF2([]byte("passwd"), []byte("salt"), 1, 64)))
}

func sealGCM(t *testing.T, key, iv, aad, plaintext []byte) []byte {
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCMWithNonceSize(block, GCMIVSize)
	require.NoError(t, err)
	return gcm.Seal(nil, iv, plaintext, aad)
}

func TestDecryptGCM(t *testing.T) {
	key := bytes.Repeat([]byte{7}, KeySize)
	iv := bytes.Repeat([]byte{9}, GCMIVSize)
	aad := []byte("XYZ")
	sealed := sealGCM(t, key, iv, aad, []byte("token payload"))

	plain, err := DecryptGCM(key, iv, aad, sealed)
	require.NoError(t, err)
	assert.Equal(t, "token payload", string(plain))

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 1
	_, err = DecryptGCM(key, iv, aad, tampered)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	_, err = DecryptGCM(key, iv, []byte("ABC"), sealed)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func encryptCBC(t *testing.T, key, iv, plaintext []byte) []byte {
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
	return out
}

func TestDecryptCBCStripsPadding(t *testing.T) {
	key := bytes.Repeat([]byte{1}, KeySize)
	iv := bytes.Repeat([]byte{2}, aes.BlockSize)
	padded := append([]byte("hello world"), 5, 5, 5, 5, 5)

	plain, err := DecryptCBC(key, iv, encryptCBC(t, key, iv, padded))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(plain))
}

func TestUnpadIsLax(t *testing.T) {
	// pad bytes are not all equal to the pad length, still stripped
	data := []byte{'a', 'b', 'c', 0, 9, 3}
	assert.Equal(t, []byte{'a', 'b', 'c'}, Unpad(data))

	// last byte outside 1..16 leaves the buffer untouched
	data = []byte{'a', 'b', 0}
	assert.Equal(t, data, Unpad(data))
	data = []byte{'a', 'b', 17}
	assert.Equal(t, data, Unpad(data))
}

func TestDecryptCBCRejectsPartialBlocks(t *testing.T) {
	key := bytes.Repeat([]byte{1}, KeySize)
	iv := bytes.Repeat([]byte{2}, aes.BlockSize)
	_, err := DecryptCBC(key, iv, []byte("short"))
	assert.Error(t, err)
}
