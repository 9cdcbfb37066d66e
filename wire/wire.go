// Package wire defines the binary encoding used to move envelopes, pre-key
// bundles, and ratchet state between processes. It is a small hand-rolled,
// length-prefixed, fixed-endian codec - there is no general marshaling
// framework in play, since nothing in the surrounding ecosystem offers a
// schema-free binary codec for a shape this specific without generating
// code from a schema this module does not have.
package wire

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/qiyashash/core/aeadcore"
	"github.com/qiyashash/core/identity"
	"github.com/qiyashash/core/prekey"
	"github.com/qiyashash/core/ratchet"
)

// ProtocolVersion is the wire format version this codec produces and
// accepts.
const ProtocolVersion uint32 = 1

// Envelope is a single transport-ready message: everything needed to
// route and decrypt it, short of the recipient's own session state.
type Envelope struct {
	Version           uint32
	SenderIdentityKey [32]byte
	EphemeralKey      *[32]byte
	OneTimePreKeyID   *uint32
	SignedPreKeyID    *uint32
	Header            ratchet.Header
	Algorithm         aeadcore.Algorithm
	Nonce             []byte
	Ciphertext        []byte
	ChainProof        [32]byte
	TimestampHash     [32]byte
}

func putOptionalU32(buf []byte, v *uint32) []byte {
	if v == nil {
		return append(buf, 0)
	}
	out := append(buf, 1)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], *v)
	return append(out, b[:]...)
}

func getOptionalU32(data []byte) (v *uint32, rest []byte, err error) {
	if len(data) < 1 {
		return nil, nil, fmt.Errorf("wire: truncated optional uint32")
	}
	present, data := data[0], data[1:]
	if present == 0 {
		return nil, data, nil
	}
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("wire: truncated optional uint32 value")
	}
	val := binary.BigEndian.Uint32(data[:4])
	return &val, data[4:], nil
}

func putBytes(buf []byte, b []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, b...)
}

func getBytes(data []byte) (b, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("wire: truncated length prefix")
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint64(len(data)) < uint64(n) {
		return nil, nil, fmt.Errorf("wire: truncated byte field")
	}
	return data[:n], data[n:], nil
}

// MarshalBinary encodes the envelope.
func (e Envelope) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 256+len(e.Ciphertext))
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], e.Version)
	buf = append(buf, v[:]...)
	buf = append(buf, e.SenderIdentityKey[:]...)

	if e.EphemeralKey == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		buf = append(buf, e.EphemeralKey[:]...)
	}
	buf = putOptionalU32(buf, e.OneTimePreKeyID)
	buf = putOptionalU32(buf, e.SignedPreKeyID)

	buf = append(buf, e.Header.Encode()...)
	buf = append(buf, byte(e.Algorithm))
	buf = putBytes(buf, e.Nonce)
	buf = putBytes(buf, e.Ciphertext)
	buf = append(buf, e.ChainProof[:]...)
	buf = append(buf, e.TimestampHash[:]...)
	return buf, nil
}

// UnmarshalEnvelope decodes an envelope produced by MarshalBinary.
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if len(data) < 4+32+1 {
		return e, fmt.Errorf("wire: envelope too short")
	}
	e.Version = binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	copy(e.SenderIdentityKey[:], data[:32])
	data = data[32:]

	hasEphemeral := data[0]
	data = data[1:]
	if hasEphemeral == 1 {
		if len(data) < 32 {
			return e, fmt.Errorf("wire: truncated ephemeral key")
		}
		var k [32]byte
		copy(k[:], data[:32])
		e.EphemeralKey = &k
		data = data[32:]
	}

	var err error
	e.OneTimePreKeyID, data, err = getOptionalU32(data)
	if err != nil {
		return e, err
	}
	e.SignedPreKeyID, data, err = getOptionalU32(data)
	if err != nil {
		return e, err
	}

	if len(data) < 40 {
		return e, fmt.Errorf("wire: truncated header")
	}
	e.Header, err = ratchet.DecodeHeader(data[:40])
	if err != nil {
		return e, err
	}
	data = data[40:]

	if len(data) < 1 {
		return e, fmt.Errorf("wire: truncated algorithm byte")
	}
	e.Algorithm = aeadcore.Algorithm(data[0])
	data = data[1:]

	e.Nonce, data, err = getBytes(data)
	if err != nil {
		return e, err
	}
	e.Ciphertext, data, err = getBytes(data)
	if err != nil {
		return e, err
	}

	if len(data) < 64 {
		return e, fmt.Errorf("wire: truncated proof/timestamp fields")
	}
	copy(e.ChainProof[:], data[:32])
	copy(e.TimestampHash[:], data[32:64])
	return e, nil
}

// BundleWire is the publishable, wire-encoded form of a pre-key bundle.
type BundleWire struct {
	IdentityKey   identity.PublicKey
	SignedPreKey  prekey.SignedPreKey
	OneTimePreKey *prekey.OneTimePreKey
}

// MarshalBinary encodes a pre-key bundle.
func (b BundleWire) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 200)
	idBytes := b.IdentityKey.Bytes()
	buf = append(buf, idBytes[:]...)

	buf = append(buf, b.SignedPreKey.Public[:]...)
	buf = append(buf, b.SignedPreKey.Signature[:]...)
	var spkID, ts [8]byte
	binary.BigEndian.PutUint32(spkID[:4], b.SignedPreKey.ID)
	buf = append(buf, spkID[:4]...)
	binary.BigEndian.PutUint64(ts[:], uint64(b.SignedPreKey.Timestamp))
	buf = append(buf, ts[:]...)

	if b.OneTimePreKey == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		var otpkID [4]byte
		binary.BigEndian.PutUint32(otpkID[:], b.OneTimePreKey.ID)
		buf = append(buf, otpkID[:]...)
		buf = append(buf, b.OneTimePreKey.Public[:]...)
	}
	return buf, nil
}

// UnmarshalBundleWire decodes a pre-key bundle produced by MarshalBinary.
func UnmarshalBundleWire(data []byte) (BundleWire, error) {
	var b BundleWire
	const fixed = 64 + 32 + 64 + 4 + 8 + 1
	if len(data) < fixed {
		return b, fmt.Errorf("wire: bundle too short")
	}
	var idBytes [64]byte
	copy(idBytes[:], data[:64])
	data = data[64:]
	pk, err := identity.FromBytes64(idBytes)
	if err != nil {
		return b, err
	}
	b.IdentityKey = pk

	copy(b.SignedPreKey.Public[:], data[:32])
	data = data[32:]
	copy(b.SignedPreKey.Signature[:], data[:64])
	data = data[64:]
	b.SignedPreKey.ID = binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	b.SignedPreKey.Timestamp = int64(binary.BigEndian.Uint64(data[:8]))
	data = data[8:]

	hasOTPK := data[0]
	data = data[1:]
	if hasOTPK == 1 {
		if len(data) < 36 {
			return b, fmt.Errorf("wire: truncated one-time pre-key")
		}
		var otpk prekey.OneTimePreKey
		otpk.ID = binary.BigEndian.Uint32(data[:4])
		copy(otpk.Public[:], data[4:36])
		b.OneTimePreKey = &otpk
	}
	return b, nil
}

// ComputeTimestampHash binds a timestamp and random noise into a single
// hash, used so the wire timestamp field does not reveal the raw clock
// value to an observer who cannot also guess the noise.
func ComputeTimestampHash(ts int64, noise [16]byte) [32]byte {
	h := sha256.New()
	h.Write([]byte("v1"))
	var tsBytes [8]byte
	binary.BigEndian.PutUint64(tsBytes[:], uint64(ts))
	h.Write(tsBytes[:])
	h.Write(noise[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DeriveSessionID computes a session identifier from the X3DH shared
// secret and one party's identity fingerprint, giving both parties a
// stable, collision-resistant name for the session without transmitting
// one explicitly.
func DeriveSessionID(sharedSecret [32]byte, ownFingerprint [32]byte) [32]byte {
	h := sha256.New()
	h.Write([]byte("QiyasHash_v1_SessionId"))
	h.Write(sharedSecret[:])
	h.Write(ownFingerprint[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// MarshalRatchetState encodes a ratchet.State for storage, using the same
// length-prefixed convention as Envelope so the module has exactly one
// canonical binary format rather than a second one invented for state.
func MarshalRatchetState(s *ratchet.State) []byte {
	buf := make([]byte, 0, 200)
	buf = append(buf, s.DHSecret[:]...)
	buf = append(buf, s.DHPublic[:]...)
	buf = append(buf, boolByte(s.HasRemote))
	buf = append(buf, s.DHRemote[:]...)
	buf = append(buf, s.RootKey[:]...)
	buf = append(buf, boolByte(s.HasSendCK))
	buf = append(buf, s.SendCK[:]...)
	buf = append(buf, boolByte(s.HasRecvCK))
	buf = append(buf, s.RecvCK[:]...)
	var nums [13]byte
	binary.BigEndian.PutUint32(nums[0:4], s.Ns)
	binary.BigEndian.PutUint32(nums[4:8], s.Nr)
	binary.BigEndian.PutUint32(nums[8:12], s.PN)
	nums[12] = byte(s.Algorithm)
	buf = append(buf, nums[:]...)
	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// UnmarshalRatchetState decodes a ratchet.State encoded by
// MarshalRatchetState.
func UnmarshalRatchetState(data []byte) (*ratchet.State, error) {
	const want = 32 + 32 + 1 + 32 + 32 + 1 + 32 + 1 + 32 + 13
	if len(data) != want {
		return nil, fmt.Errorf("wire: invalid ratchet state length: %d", len(data))
	}
	s := &ratchet.State{}
	copy(s.DHSecret[:], data[:32])
	data = data[32:]
	copy(s.DHPublic[:], data[:32])
	data = data[32:]
	s.HasRemote = data[0] == 1
	data = data[1:]
	copy(s.DHRemote[:], data[:32])
	data = data[32:]
	copy(s.RootKey[:], data[:32])
	data = data[32:]
	s.HasSendCK = data[0] == 1
	data = data[1:]
	copy(s.SendCK[:], data[:32])
	data = data[32:]
	s.HasRecvCK = data[0] == 1
	data = data[1:]
	copy(s.RecvCK[:], data[:32])
	data = data[32:]
	s.Ns = binary.BigEndian.Uint32(data[0:4])
	s.Nr = binary.BigEndian.Uint32(data[4:8])
	s.PN = binary.BigEndian.Uint32(data[8:12])
	s.Algorithm = aeadcore.Algorithm(data[12])
	return s, nil
}
