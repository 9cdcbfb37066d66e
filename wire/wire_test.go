package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qiyashash/core/aeadcore"
	"github.com/qiyashash/core/identity"
	"github.com/qiyashash/core/prekey"
	"github.com/qiyashash/core/ratchet"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	kp, err := identity.Generate()
	require.NoError(t, err)

	var ephemeral [32]byte
	ephemeral[0] = 7
	opkID := uint32(42)
	spkID := uint32(1)

	e := Envelope{
		Version:           ProtocolVersion,
		SenderIdentityKey: kp.Public().Signing,
		EphemeralKey:      &ephemeral,
		OneTimePreKeyID:   &opkID,
		SignedPreKeyID:    &spkID,
		Header:            ratchet.Header{DHPublic: [32]byte{1, 2, 3}, N: 5, PN: 2},
		Algorithm:         aeadcore.AlgoXChaCha20Poly1305,
		Nonce:             []byte("0123456789012345678901"),
		Ciphertext:        []byte("ciphertext bytes here"),
		ChainProof:        [32]byte{9, 9, 9},
		TimestampHash:     [32]byte{8, 8, 8},
	}

	data, err := e.MarshalBinary()
	require.NoError(t, err)

	got, err := UnmarshalEnvelope(data)
	require.NoError(t, err)

	require.Equal(t, e.Version, got.Version)
	require.Equal(t, e.SenderIdentityKey, got.SenderIdentityKey)
	require.Equal(t, *e.EphemeralKey, *got.EphemeralKey)
	require.Equal(t, *e.OneTimePreKeyID, *got.OneTimePreKeyID)
	require.Equal(t, *e.SignedPreKeyID, *got.SignedPreKeyID)
	require.Equal(t, e.Header, got.Header)
	require.Equal(t, e.Algorithm, got.Algorithm)
	require.Equal(t, e.Nonce, got.Nonce)
	require.Equal(t, e.Ciphertext, got.Ciphertext)
	require.Equal(t, e.ChainProof, got.ChainProof)
	require.Equal(t, e.TimestampHash, got.TimestampHash)
}

func TestEnvelopeRoundTripWithoutOptionalFields(t *testing.T) {
	kp, err := identity.Generate()
	require.NoError(t, err)

	e := Envelope{
		Version:           ProtocolVersion,
		SenderIdentityKey: kp.Public().Signing,
		Header:            ratchet.Header{DHPublic: [32]byte{1}, N: 0, PN: 0},
		Algorithm:         aeadcore.AlgoAES256GCM,
		Nonce:             []byte("123456789012"),
		Ciphertext:        []byte("x"),
	}
	data, err := e.MarshalBinary()
	require.NoError(t, err)
	got, err := UnmarshalEnvelope(data)
	require.NoError(t, err)
	require.Nil(t, got.EphemeralKey)
	require.Nil(t, got.OneTimePreKeyID)
	require.Nil(t, got.SignedPreKeyID)
}

func TestBundleWireRoundTrip(t *testing.T) {
	id, err := identity.Generate()
	require.NoError(t, err)
	mgr, err := prekey.NewManager(id)
	require.NoError(t, err)
	require.NoError(t, mgr.GenerateOneTimePreKeys(1))
	b := mgr.GetBundle()

	bw := BundleWire{IdentityKey: b.IdentityKey, SignedPreKey: b.SignedPreKey, OneTimePreKey: b.OneTimePreKey}
	data, err := bw.MarshalBinary()
	require.NoError(t, err)

	got, err := UnmarshalBundleWire(data)
	require.NoError(t, err)
	require.True(t, bw.IdentityKey.Equal(got.IdentityKey))
	require.Equal(t, bw.SignedPreKey, got.SignedPreKey)
	require.Equal(t, *bw.OneTimePreKey, *got.OneTimePreKey)
}

func TestRatchetStateRoundTrip(t *testing.T) {
	s := &ratchet.State{
		DHSecret:  [32]byte{1},
		DHPublic:  [32]byte{2},
		HasRemote: true,
		DHRemote:  [32]byte{3},
		RootKey:   [32]byte{4},
		HasSendCK: true,
		SendCK:    [32]byte{5},
		HasRecvCK: true,
		RecvCK:    [32]byte{6},
		Ns:        7,
		Nr:        8,
		PN:        9,
		Algorithm: aeadcore.AlgoAES256GCM,
	}
	data := MarshalRatchetState(s)
	got, err := UnmarshalRatchetState(data)
	require.NoError(t, err)
	require.Equal(t, s, got)
}

func TestTimestampHashDeterministic(t *testing.T) {
	noise := [16]byte{1, 2, 3}
	h1 := ComputeTimestampHash(1700000000, noise)
	h2 := ComputeTimestampHash(1700000000, noise)
	require.Equal(t, h1, h2)
	h3 := ComputeTimestampHash(1700000001, noise)
	require.NotEqual(t, h1, h3)
}
