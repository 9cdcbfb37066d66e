package ratchet

import (
	"encoding/binary"
	"fmt"
)

// Header travels alongside each ciphertext and is authenticated as AEAD
// associated data rather than encrypted.
type Header struct {
	// DHPublic is the sender's current ratchet public key.
	DHPublic [32]byte
	// N is the message number within the current sending chain.
	N uint32
	// PN is the length of the previous sending chain.
	PN uint32
}

// Encode serializes the header: DHPublic, then N, then PN, all big-endian.
func (h Header) Encode() []byte {
	buf := make([]byte, 32+4+4)
	copy(buf[:32], h.DHPublic[:])
	binary.BigEndian.PutUint32(buf[32:36], h.N)
	binary.BigEndian.PutUint32(buf[36:40], h.PN)
	return buf
}

// DecodeHeader parses a header previously produced by Encode.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) != 40 {
		return Header{}, fmt.Errorf("ratchet: invalid header length: %d", len(data))
	}
	var h Header
	copy(h.DHPublic[:], data[:32])
	h.N = binary.BigEndian.Uint32(data[32:36])
	h.PN = binary.BigEndian.Uint32(data[36:40])
	return h, nil
}

// concat binds aad and the header together, unambiguously, as associated
// data for the message AEAD: a length-prefixed aad followed by the
// encoded header.
func concat(aad []byte, h Header) []byte {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(aad)))
	out := make([]byte, 0, 8+len(aad)+40)
	out = append(out, lenBuf[:]...)
	out = append(out, aad...)
	out = append(out, h.Encode()...)
	return out
}
