// Package aeadcore wraps the two AEAD algorithms qiyashash sessions can be
// configured with: XChaCha20-Poly1305, the default, for its wide 24-byte
// nonce that tolerates random generation without a birthday-bound collision
// risk, and AES-256-GCM as a hardware-accelerated alternative where its
// narrower 12-byte nonce is acceptable. Every failure collapses to a single
// undistinguished authentication error; callers cannot tell a bad key from
// a bad tag from a bad associated-data binding.
package aeadcore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/qiyashash/core/qerr"
)

// Algorithm selects the AEAD primitive used to seal a message.
type Algorithm uint8

const (
	// AlgoXChaCha20Poly1305 is the default algorithm: a 256-bit key and a
	// 24-byte (192-bit) random nonce.
	AlgoXChaCha20Poly1305 Algorithm = iota
	// AlgoAES256GCM is the alternate algorithm: a 256-bit key and a
	// 12-byte (96-bit) random nonce.
	AlgoAES256GCM
)

// MaxMessageSize is the largest plaintext Encrypt will accept.
const MaxMessageSize = 65536

// Payload is the output of Encrypt: enough to reconstruct the AEAD on the
// receiving side and open the ciphertext.
type Payload struct {
	Algorithm  Algorithm
	Nonce      []byte
	Ciphertext []byte
}

func newAEAD(algo Algorithm, key []byte) (cipher.AEAD, error) {
	switch algo {
	case AlgoXChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	case AlgoAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	default:
		return nil, fmt.Errorf("aeadcore: unknown algorithm %d", algo)
	}
}

// Encrypt seals plaintext under key, authenticating aad, using the given
// algorithm. It rejects plaintext longer than MaxMessageSize before
// touching the cipher or generating a nonce.
func Encrypt(algo Algorithm, key, plaintext, aad []byte) (Payload, error) {
	if len(plaintext) > MaxMessageSize {
		return Payload{}, qerr.ErrMessageTooLarge
	}
	aead, err := newAEAD(algo, key)
	if err != nil {
		return Payload{}, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Payload{}, err
	}
	ct := aead.Seal(nil, nonce, plaintext, aad)
	return Payload{Algorithm: algo, Nonce: nonce, Ciphertext: ct}, nil
}

// Decrypt opens p under key, authenticating aad. Any failure - wrong key,
// wrong nonce length, wrong tag, wrong aad, unknown algorithm - returns
// qerr.ErrAuthenticationFailed and nothing else.
func Decrypt(key []byte, p Payload, aad []byte) ([]byte, error) {
	aead, err := newAEAD(p.Algorithm, key)
	if err != nil {
		return nil, qerr.ErrAuthenticationFailed
	}
	if len(p.Nonce) != aead.NonceSize() {
		return nil, qerr.ErrAuthenticationFailed
	}
	pt, err := aead.Open(nil, p.Nonce, p.Ciphertext, aad)
	if err != nil {
		return nil, qerr.ErrAuthenticationFailed
	}
	return pt, nil
}

// KeySize returns the key length (in bytes) the given algorithm expects.
func KeySize(algo Algorithm) int {
	switch algo {
	case AlgoAES256GCM:
		return 32
	default:
		return chacha20poly1305.KeySize
	}
}
