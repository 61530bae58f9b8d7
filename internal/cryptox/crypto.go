// Package cryptox implements the symmetric payload box: AES-256-GCM with a
// fresh random nonce per encryption and the authentication tag carried
// separately from the ciphertext, so the two can be stored in distinct
// metadata fields.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/dsemenov/datavault/internal/common"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// NonceSize is the GCM nonce length in bytes.
const NonceSize = 12

// tagSize is the GCM authentication tag length in bytes.
const tagSize = 16

// GenerateKey returns a fresh cryptographically random 256-bit key.
func GenerateKey() []byte {
	return common.GenerateRandByteArray(KeySize)
}

// Encrypt seals plaintext under key with AES-256-GCM.
//
// A new random 12-byte nonce is generated on every call; a nonce must never
// be reused under the same key. The authentication tag is split off the
// sealed output and returned separately.
func Encrypt(plaintext, key []byte) (ciphertext, nonce, tag []byte, err error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, nil, err
	}

	nonce = common.GenerateRandByteArray(NonceSize)

	sealed := aesgcm.Seal(nil, nonce, plaintext, nil)
	ciphertext = sealed[:len(sealed)-tagSize]
	tag = sealed[len(sealed)-tagSize:]

	return ciphertext, nonce, tag, nil
}

// Decrypt opens ciphertext produced by Encrypt. It returns
// common.ErrAuthenticationFailed if the tag does not verify and
// common.ErrDecode if the key or nonce is malformed.
func Decrypt(ciphertext, key, nonce, tag []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(nonce) != NonceSize || len(tag) != tagSize {
		return nil, fmt.Errorf("%w: bad nonce or tag length", common.ErrDecode)
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aesgcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrAuthenticationFailed, err)
	}

	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes", common.ErrDecode, KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecode, err)
	}
	return cipher.NewGCM(block)
}
