// Package prekey manages a party's signed pre-key and pool of one-time
// pre-keys: generation, rotation, bundle assembly for publication, and
// exactly-once consumption during X3DH responses.
package prekey

import (
	"crypto/rand"
	"sync"
	"time"

	"golang.org/x/crypto/curve25519"

	"github.com/qiyashash/core/identity"
	"github.com/qiyashash/core/qerr"
)

func currentTimestamp() int64 { return time.Now().Unix() }

// SignedPreKey is a medium-term X25519 key signed by the owning identity.
type SignedPreKey struct {
	ID        uint32
	Public    [32]byte
	Signature [64]byte
	Timestamp int64
}

// Verify checks the signed pre-key's signature under owner.
func (spk SignedPreKey) Verify(owner identity.PublicKey) error {
	return owner.Verify(spk.Public[:], spk.Signature)
}

// OneTimePreKey is a single-use X25519 key, consumed by exactly one
// responder handshake.
type OneTimePreKey struct {
	ID     uint32
	Public [32]byte
}

// Bundle is everything a would-be initiator needs to begin an X3DH
// handshake with this party.
type Bundle struct {
	IdentityKey  identity.PublicKey
	SignedPreKey SignedPreKey
	OneTimePreKey *OneTimePreKey
}

type signedPreKeySecret struct {
	SignedPreKey
	secret [32]byte
}

type oneTimePreKeySecret struct {
	OneTimePreKey
	secret [32]byte
}

// Manager owns an identity's signed pre-key and one-time pre-key pool.
// Safe for concurrent use; callers publishing a bundle and callers
// consuming a pre-key for a handshake response both take the same lock.
type Manager struct {
	mu         sync.Mutex
	id         *identity.KeyPair
	signedPK   signedPreKeySecret
	otpks      []oneTimePreKeySecret // FIFO queue, oldest at index 0
	opkCounter uint32
}

// NewManager creates a Manager with a freshly generated signed pre-key
// (id 1) for the given identity.
func NewManager(id *identity.KeyPair) (*Manager, error) {
	m := &Manager{id: id}
	spk, err := generateSignedPreKey(id, 1, currentTimestamp())
	if err != nil {
		return nil, err
	}
	m.signedPK = spk
	return m, nil
}

func generateSignedPreKey(id *identity.KeyPair, seq uint32, ts int64) (signedPreKeySecret, error) {
	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return signedPreKeySecret{}, err
	}
	secret[0] &= 248
	secret[31] &= 127
	secret[31] |= 64
	pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return signedPreKeySecret{}, err
	}
	var spk signedPreKeySecret
	spk.ID = seq
	copy(spk.Public[:], pub)
	spk.Signature = id.Sign(spk.Public[:])
	spk.Timestamp = ts
	spk.secret = secret
	return spk, nil
}

// GenerateOneTimePreKeys appends n freshly generated one-time pre-keys to
// the queue, each with a monotonically increasing id.
func (m *Manager) GenerateOneTimePreKeys(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		var secret [32]byte
		if _, err := rand.Read(secret[:]); err != nil {
			return err
		}
		secret[0] &= 248
		secret[31] &= 127
		secret[31] |= 64
		pub, err := curve25519.X25519(secret[:], curve25519.Basepoint)
		if err != nil {
			return err
		}
		m.opkCounter++
		var otpk oneTimePreKeySecret
		otpk.ID = m.opkCounter
		copy(otpk.Public[:], pub)
		otpk.secret = secret
		m.otpks = append(m.otpks, otpk)
	}
	return nil
}

// RotateSignedPreKey generates a new signed pre-key with the next
// sequential id, replacing the current one.
func (m *Manager) RotateSignedPreKey() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	spk, err := generateSignedPreKey(m.id, m.signedPK.ID+1, currentTimestamp())
	if err != nil {
		return err
	}
	m.signedPK = spk
	return nil
}

// GetBundle assembles a publishable bundle. If one-time pre-keys are
// available, the head of the queue is included but not removed: it stays
// available until a responder actually consumes it via
// ConsumeOneTimePreKey, mirroring the original implementation's
// peek-on-publish, remove-on-consume split.
func (m *Manager) GetBundle() Bundle {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := Bundle{
		IdentityKey:  m.id.Public(),
		SignedPreKey: m.signedPK.SignedPreKey,
	}
	if len(m.otpks) > 0 {
		otpk := m.otpks[0].OneTimePreKey
		b.OneTimePreKey = &otpk
	}
	return b
}

// SignedPreKeySecret returns the current signed pre-key's id and private
// scalar, for computing the responder side of an X3DH handshake.
func (m *Manager) SignedPreKeySecret() (id uint32, secret [32]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signedPK.ID, m.signedPK.secret
}

// Identity returns the manager's underlying identity key pair.
func (m *Manager) Identity() *identity.KeyPair {
	return m.id
}

// ConsumeOneTimePreKey removes and returns the private scalar for the
// one-time pre-key with the given id. ok is false if no such id is queued,
// whether because it was never generated or already consumed - consumption
// is exactly-once and idempotent in the sense that a repeat call always
// reports ok=false.
func (m *Manager) ConsumeOneTimePreKey(id uint32) (secret [32]byte, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, otpk := range m.otpks {
		if otpk.ID == id {
			secret = otpk.secret
			m.otpks = append(m.otpks[:i], m.otpks[i+1:]...)
			return secret, true
		}
	}
	return secret, false
}

// ConsumeOneTimePreKeyOrErr is a convenience wrapper returning
// qerr.ErrPrekeyNotFound instead of a boolean.
func (m *Manager) ConsumeOneTimePreKeyOrErr(id uint32) ([32]byte, error) {
	secret, ok := m.ConsumeOneTimePreKey(id)
	if !ok {
		return secret, qerr.ErrPrekeyNotFound
	}
	return secret, nil
}
