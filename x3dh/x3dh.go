// Package x3dh implements the Extended Triple Diffie-Hellman handshake:
// an initiator computes a shared secret from a responder's published
// pre-key bundle, and the responder recomputes the same secret from the
// initiator's first message, without either party needing to be online
// at the same time as the other.
package x3dh

import (
	"crypto/rand"
	"runtime"

	"golang.org/x/crypto/curve25519"

	"github.com/qiyashash/core/identity"
	"github.com/qiyashash/core/kdf"
	"github.com/qiyashash/core/prekey"
	"github.com/qiyashash/core/qerr"
)

// domainSeparator is prepended to the concatenated DH outputs before
// derivation, the same 32 0xFF bytes convention used elsewhere in the
// Signal-style X3DH literature to keep this derivation's input space
// disjoint from any other use of the same DH outputs.
var domainSeparator = func() [32]byte {
	var b [32]byte
	for i := range b {
		b[i] = 0xFF
	}
	return b
}()

// SharedSecret is the output of a completed handshake: a 32-byte root
// secret and the associated data both sides must bind their first
// ratchet message to.
type SharedSecret struct {
	Secret [32]byte
	AD     []byte
}

// Zero destroys the secret in place.
func (s *SharedSecret) Zero() {
	for i := range s.Secret {
		s.Secret[i] = 0
	}
	runtime.KeepAlive(s)
}

func deriveSharedSecret(dh1, dh2, dh3 [32]byte, dh4 *[32]byte, initiator, responder identity.PublicKey) (SharedSecret, error) {
	ikm := make([]byte, 0, 32+32*4)
	ikm = append(ikm, domainSeparator[:]...)
	ikm = append(ikm, dh1[:]...)
	ikm = append(ikm, dh2[:]...)
	ikm = append(ikm, dh3[:]...)
	if dh4 != nil {
		ikm = append(ikm, dh4[:]...)
	}

	ctx := kdf.NewContext(nil, ikm)
	var secret [32]byte
	if err := ctx.Derive(kdf.DomainRootKey, secret[:]); err != nil {
		return SharedSecret{}, err
	}

	initB := initiator.Bytes()
	respB := responder.Bytes()
	ad := make([]byte, 0, 128)
	ad = append(ad, initB[:]...)
	ad = append(ad, respB[:]...)

	return SharedSecret{Secret: secret, AD: ad}, nil
}

// Initiate runs the initiator's side of the handshake against a
// responder's published bundle: verifies the signed pre-key, generates an
// ephemeral key, and computes DH1..DH4 (DH4 only if the bundle carried a
// one-time pre-key).
func Initiate(self *identity.KeyPair, bundle prekey.Bundle) (secret SharedSecret, ephemeralPub [32]byte, opkID *uint32, err error) {
	if err := bundle.SignedPreKey.Verify(bundle.IdentityKey); err != nil {
		return SharedSecret{}, [32]byte{}, nil, qerr.ErrInvalidSignature
	}

	var ephemeralSecret [32]byte
	if _, err := rand.Read(ephemeralSecret[:]); err != nil {
		return SharedSecret{}, [32]byte{}, nil, err
	}
	ephemeralSecret[0] &= 248
	ephemeralSecret[31] &= 127
	ephemeralSecret[31] |= 64
	ephPubBytes, err := curve25519.X25519(ephemeralSecret[:], curve25519.Basepoint)
	if err != nil {
		return SharedSecret{}, [32]byte{}, nil, err
	}
	copy(ephemeralPub[:], ephPubBytes)

	spkPub := bundle.SignedPreKey.Public

	// DH1 = DH(IK_self, SPK_responder)
	dh1, err := self.DH(spkPub)
	if err != nil {
		return SharedSecret{}, [32]byte{}, nil, err
	}
	// DH2 = DH(EK_self, IK_responder)
	dh2Bytes, err := curve25519.X25519(ephemeralSecret[:], bundle.IdentityKey.DH[:])
	if err != nil {
		return SharedSecret{}, [32]byte{}, nil, err
	}
	var dh2 [32]byte
	copy(dh2[:], dh2Bytes)
	// DH3 = DH(EK_self, SPK_responder)
	dh3Bytes, err := curve25519.X25519(ephemeralSecret[:], spkPub[:])
	if err != nil {
		return SharedSecret{}, [32]byte{}, nil, err
	}
	var dh3 [32]byte
	copy(dh3[:], dh3Bytes)

	var dh4 *[32]byte
	if bundle.OneTimePreKey != nil {
		dh4Bytes, err := curve25519.X25519(ephemeralSecret[:], bundle.OneTimePreKey.Public[:])
		if err != nil {
			return SharedSecret{}, [32]byte{}, nil, err
		}
		var v [32]byte
		copy(v[:], dh4Bytes)
		dh4 = &v
		id := bundle.OneTimePreKey.ID
		opkID = &id
	}

	secret, err = deriveSharedSecret(dh1, dh2, dh3, dh4, self.Public(), bundle.IdentityKey)
	if err != nil {
		return SharedSecret{}, [32]byte{}, nil, err
	}
	return secret, ephemeralPub, opkID, nil
}

// Respond runs the responder's side: it mirrors the initiator's DH
// computations using the manager's pre-key secrets and, if the initiator
// used a one-time pre-key, consumes it exactly once.
//
// signedPreKeyID must name the signed pre-key id the initiator actually
// targeted; if it no longer matches the manager's current signed pre-key,
// the bundle the initiator saw is stale and the handshake fails.
func Respond(mgr *prekey.Manager, initiatorIdentity identity.PublicKey, initiatorEphemeral [32]byte, signedPreKeyID uint32, opkID *uint32) (SharedSecret, error) {
	currentID, spkSecret := mgr.SignedPreKeySecret()
	if currentID != signedPreKeyID {
		return SharedSecret{}, qerr.ErrKeyExchangeFailed
	}

	// DH1 = DH(SPK_self, IK_initiator)
	dh1Bytes, err := curve25519.X25519(spkSecret[:], initiatorIdentity.DH[:])
	if err != nil {
		return SharedSecret{}, err
	}
	var dh1 [32]byte
	copy(dh1[:], dh1Bytes)

	// DH2 = DH(IK_self, EK_initiator)
	dh2, err := mgr.Identity().DH(initiatorEphemeral)
	if err != nil {
		return SharedSecret{}, err
	}

	// DH3 = DH(SPK_self, EK_initiator)
	dh3Bytes, err := curve25519.X25519(spkSecret[:], initiatorEphemeral[:])
	if err != nil {
		return SharedSecret{}, err
	}
	var dh3 [32]byte
	copy(dh3[:], dh3Bytes)

	var dh4 *[32]byte
	if opkID != nil {
		opkSecret, err := mgr.ConsumeOneTimePreKeyOrErr(*opkID)
		if err != nil {
			return SharedSecret{}, err
		}
		dh4Bytes, err := curve25519.X25519(opkSecret[:], initiatorEphemeral[:])
		if err != nil {
			return SharedSecret{}, err
		}
		var v [32]byte
		copy(v[:], dh4Bytes)
		dh4 = &v
	}

	return deriveSharedSecret(dh1, dh2, dh3, dh4, initiatorIdentity, mgr.Identity().Public())
}
