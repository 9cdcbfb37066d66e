package identity

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qiyashash/core/qerr"
)

func TestSignVerify(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	msg := []byte("hello, qiyashash")
	sig := kp.Sign(msg)
	require.NoError(t, kp.Public().Verify(msg, sig))
}

func TestTamperedSignatureFails(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	msg := []byte("hello, qiyashash")
	sig := kp.Sign(msg)
	sig[0] ^= 0xFF
	require.ErrorIs(t, kp.Public().Verify(msg, sig), qerr.ErrInvalidSignature)
}

func TestDiffieHellmanAgreement(t *testing.T) {
	alice, err := Generate()
	require.NoError(t, err)
	bob, err := Generate()
	require.NoError(t, err)

	s1, err := alice.DH(bob.Public().DH)
	require.NoError(t, err)
	s2, err := bob.DH(alice.Public().DH)
	require.NoError(t, err)
	require.Equal(t, s1, s2)
}

func TestFingerprintStableAndDistinct(t *testing.T) {
	alice, err := Generate()
	require.NoError(t, err)
	bob, err := Generate()
	require.NoError(t, err)

	f1a := Fingerprint(alice.Public())
	f1b := Fingerprint(alice.Public())
	require.Equal(t, f1a, f1b)

	f2 := Fingerprint(bob.Public())
	require.NotEqual(t, f1a, f2)
}

func TestBytesRoundTrip(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	pk := kp.Public()
	b := pk.Bytes()
	restored, err := FromBytes64(b)
	require.NoError(t, err)
	require.True(t, pk.Equal(restored))
}

func TestRotationProofValid(t *testing.T) {
	old, err := Generate()
	require.NoError(t, err)
	_, proof, err := Rotate(old, 1700000000)
	require.NoError(t, err)
	require.NoError(t, proof.Verify())
}

func TestRotationProofTamperedSignatureFails(t *testing.T) {
	old, err := Generate()
	require.NoError(t, err)
	_, proof, err := Rotate(old, 1700000000)
	require.NoError(t, err)
	proof.SigNew[0] ^= 0xFF
	require.Error(t, proof.Verify())
}

func TestRotationProofTamperedCommitmentFails(t *testing.T) {
	old, err := Generate()
	require.NoError(t, err)
	_, proof, err := Rotate(old, 1700000000)
	require.NoError(t, err)
	proof.Commitment[0] ^= 0xFF
	require.ErrorIs(t, proof.Verify(), qerr.ErrInvalidSignature)
}

func TestFromEd25519BytesDerivesDH(t *testing.T) {
	kp, err := Generate()
	require.NoError(t, err)
	pk := kp.Public()
	derived, err := FromEd25519Bytes(pk.Signing)
	require.NoError(t, err)
	require.Equal(t, pk.DH, derived.DH)
}
