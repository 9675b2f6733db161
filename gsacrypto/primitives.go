// Package gsacrypto holds the stateless hash, KDF, MAC and cipher operations of the GSA protocol.
package gsacrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	KeySize   = 32
	GCMIVSize = 16
	GCMTagLen = 16
)

// ErrAuthenticationFailed is returned when a GCM tag does not verify.
var ErrAuthenticationFailed = errors.New("message authentication failed")

func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// PBKDF2 derives a key of the given length with HMAC-SHA256.
func PBKDF2(password, salt []byte, iterations, length int) []byte {
	return pbkdf2.Key(password, salt, iterations, length, sha256.New)
}

// DecryptGCM opens ciphertext||tag with a 16 byte nonce and the given additional data.
func DecryptGCM(key, iv, aad, ciphertext []byte) ([]byte, error) {
	if len(iv) != GCMIVSize {
		return nil, fmt.Errorf("gcm iv must be %d bytes, got %d", GCMIVSize, len(iv))
	}
	if len(ciphertext) < GCMTagLen {
		return nil, fmt.Errorf("gcm ciphertext shorter than tag")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, GCMIVSize)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, aad)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

/*
DecryptCBC decrypts with AES-CBC and strips trailing padding the lax way the server
expects: the last byte is read as the pad length and removed when it is in 1..16,
otherwise the buffer is returned as is. The pad bytes themselves are not checked.
*/
func DecryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("cbc iv must be %d bytes, got %d", block.BlockSize(), len(iv))
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("cbc ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return Unpad(plaintext), nil
}

func Unpad(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	n := int(data[len(data)-1])
	if n >= 1 && n <= aes.BlockSize && n <= len(data) {
		return data[:len(data)-n]
	}
	return data
}
