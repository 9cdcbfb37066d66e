// Package kdf implements the domain-separated key derivation used across
// the qiyashash packages: an HKDF-SHA512 context for one-shot derivations
// (X3DH root secrets, session ids) and an HMAC-SHA256 symmetric-key ratchet
// for advancing chain keys (the Double Ratchet's KDF_CK).
package kdf

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Domain separators for every derivation in the system. Each is the ASCII
// string "QiyasHash_v1_" followed by a short, purpose-specific suffix.
var (
	DomainRootKey        = []byte("QiyasHash_v1_RootKey")
	DomainChainKey       = []byte("QiyasHash_v1_ChainKey")
	DomainMessageKey     = []byte("QiyasHash_v1_MessageKey")
	DomainAuthKey        = []byte("QiyasHash_v1_AuthKey")
	DomainChainProof     = []byte("QiyasHash_v1_ChainProof")
	DomainIdentityProof  = []byte("QiyasHash_v1_IdentityProof")
	DomainSessionID      = []byte("QiyasHash_v1_SessionId")
	DomainMessageKeyFull = []byte("QiyasHash_v1_MessageKeys")
)

// Context is an HKDF-SHA512 extract-then-expand context bound to a single
// (salt, ikm) pair. Derive may be called any number of times with distinct
// info strings; each call reads an independent stream from a freshly
// extracted pseudorandom key.
type Context struct {
	salt []byte
	ikm  []byte
}

// NewContext builds a derivation context from a salt and input keying
// material. salt may be nil, matching HKDF's "no salt" case.
func NewContext(salt, ikm []byte) *Context {
	return &Context{salt: salt, ikm: ikm}
}

// Derive fills out with len(out) bytes of HKDF-SHA512 output bound to info.
func (c *Context) Derive(info []byte, out []byte) error {
	r := hkdf.New(sha512.New, c.ikm, c.salt, info)
	_, err := io.ReadFull(r, out)
	return err
}

// DeriveRootAndChainKeys implements the Double Ratchet's KDF_RK: given the
// current root key and a fresh Diffie-Hellman output, it returns the next
// root key and a new sending or receiving chain key.
func DeriveRootAndChainKeys(rootKey, dhOutput [32]byte) (newRoot, chainKey [32]byte, err error) {
	ctx := NewContext(rootKey[:], dhOutput[:])
	if err := ctx.Derive(DomainRootKey, newRoot[:]); err != nil {
		return newRoot, chainKey, err
	}
	if err := ctx.Derive(DomainChainKey, chainKey[:]); err != nil {
		return newRoot, chainKey, err
	}
	return newRoot, chainKey, nil
}

// ChainRatchet advances a single chain key one step at a time (KDF_CK).
type ChainRatchet struct {
	chainKey [32]byte
}

// NewChainRatchet starts a ratchet at chainKey.
func NewChainRatchet(chainKey [32]byte) *ChainRatchet {
	return &ChainRatchet{chainKey: chainKey}
}

// Ratchet derives the next chain key and a message key from the current
// chain key, then advances the ratchet's internal state to next.
func (c *ChainRatchet) Ratchet() (next, messageKey [32]byte) {
	next, messageKey = DeriveMessageKeys(c.chainKey)
	c.chainKey = next
	return next, messageKey
}

// DeriveMessageKeys computes KDF_CK(chainKey): an HMAC-SHA256 keyed by the
// chain key over two fixed single-byte constants, producing the next chain
// key and a message key.
func DeriveMessageKeys(chainKey [32]byte) (next, messageKey [32]byte) {
	h := hmac.New(sha256.New, chainKey[:])
	h.Write([]byte{0x02})
	copy(next[:], h.Sum(nil))

	h.Reset()
	h.Write([]byte{0x01})
	copy(messageKey[:], h.Sum(nil))
	return next, messageKey
}

// ConstantTimeEqual reports whether a and b hold the same bytes, without
// branching on the content. Unequal lengths compare unequal without ever
// touching subtle.ConstantTimeCompare, so length alone never leaks through
// timing on the comparison itself.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
