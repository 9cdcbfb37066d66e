package x3dh

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qiyashash/core/identity"
	"github.com/qiyashash/core/prekey"
	"github.com/qiyashash/core/qerr"
)

func TestHandshakeWithOneTimePreKey(t *testing.T) {
	alice, err := identity.Generate()
	require.NoError(t, err)
	bobID, err := identity.Generate()
	require.NoError(t, err)
	bob, err := prekey.NewManager(bobID)
	require.NoError(t, err)
	require.NoError(t, bob.GenerateOneTimePreKeys(10))

	bundle := bob.GetBundle()
	aliceSecret, ephPub, opkID, err := Initiate(alice, bundle)
	require.NoError(t, err)
	require.NotNil(t, opkID)

	spkID, _ := bob.SignedPreKeySecret()
	bobSecret, err := Respond(bob, alice.Public(), ephPub, spkID, opkID)
	require.NoError(t, err)

	require.Equal(t, aliceSecret.Secret, bobSecret.Secret)
	require.Equal(t, aliceSecret.AD, bobSecret.AD)
	require.Len(t, aliceSecret.AD, 128)
}

func TestHandshakeWithoutOneTimePreKey(t *testing.T) {
	alice, err := identity.Generate()
	require.NoError(t, err)
	bobID, err := identity.Generate()
	require.NoError(t, err)
	bob, err := prekey.NewManager(bobID)
	require.NoError(t, err)

	bundle := bob.GetBundle()
	require.Nil(t, bundle.OneTimePreKey)

	aliceSecret, ephPub, opkID, err := Initiate(alice, bundle)
	require.NoError(t, err)
	require.Nil(t, opkID)

	spkID, _ := bob.SignedPreKeySecret()
	bobSecret, err := Respond(bob, alice.Public(), ephPub, spkID, opkID)
	require.NoError(t, err)
	require.Equal(t, aliceSecret.Secret, bobSecret.Secret)
}

func TestTamperedSignedPreKeySignatureRejected(t *testing.T) {
	alice, err := identity.Generate()
	require.NoError(t, err)
	bobID, err := identity.Generate()
	require.NoError(t, err)
	bob, err := prekey.NewManager(bobID)
	require.NoError(t, err)

	bundle := bob.GetBundle()
	bundle.SignedPreKey.Signature[0] ^= 0xFF

	_, _, _, err = Initiate(alice, bundle)
	require.ErrorIs(t, err, qerr.ErrInvalidSignature)
}

func TestStaleSignedPreKeyRejected(t *testing.T) {
	alice, err := identity.Generate()
	require.NoError(t, err)
	bobID, err := identity.Generate()
	require.NoError(t, err)
	bob, err := prekey.NewManager(bobID)
	require.NoError(t, err)

	bundle := bob.GetBundle()
	_, ephPub, opkID, err := Initiate(alice, bundle)
	require.NoError(t, err)

	require.NoError(t, bob.RotateSignedPreKey())

	_, err = Respond(bob, alice.Public(), ephPub, bundle.SignedPreKey.ID, opkID)
	require.ErrorIs(t, err, qerr.ErrKeyExchangeFailed)
}
