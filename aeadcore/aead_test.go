package aeadcore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qiyashash/core/qerr"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	for _, algo := range []Algorithm{AlgoXChaCha20Poly1305, AlgoAES256GCM} {
		key := make([]byte, KeySize(algo))
		for i := range key {
			key[i] = byte(i)
		}
		plaintext := []byte("hello, qiyashash")
		aad := []byte("associated data")

		p, err := Encrypt(algo, key, plaintext, aad)
		require.NoError(t, err)

		got, err := Decrypt(key, p, aad)
		require.NoError(t, err)
		require.True(t, bytes.Equal(plaintext, got))
	}
}

func TestDecryptWrongAADFails(t *testing.T) {
	key := make([]byte, KeySize(AlgoXChaCha20Poly1305))
	p, err := Encrypt(AlgoXChaCha20Poly1305, key, []byte("msg"), []byte("aad1"))
	require.NoError(t, err)
	_, err = Decrypt(key, p, []byte("aad2"))
	require.ErrorIs(t, err, qerr.ErrAuthenticationFailed)
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	key := make([]byte, KeySize(AlgoXChaCha20Poly1305))
	p, err := Encrypt(AlgoXChaCha20Poly1305, key, []byte("msg"), nil)
	require.NoError(t, err)
	p.Ciphertext[0] ^= 0xFF
	_, err = Decrypt(key, p, nil)
	require.ErrorIs(t, err, qerr.ErrAuthenticationFailed)
}

func TestMessageTooLargeRejected(t *testing.T) {
	key := make([]byte, KeySize(AlgoXChaCha20Poly1305))
	ok := make([]byte, MaxMessageSize)
	_, err := Encrypt(AlgoXChaCha20Poly1305, key, ok, nil)
	require.NoError(t, err)

	tooBig := make([]byte, MaxMessageSize+1)
	_, err = Encrypt(AlgoXChaCha20Poly1305, key, tooBig, nil)
	require.ErrorIs(t, err, qerr.ErrMessageTooLarge)
}
