// Package ratchet implements the Double Ratchet algorithm: a root chain
// advanced by Diffie-Hellman ratchet steps, plus a sending and a receiving
// symmetric-key chain advanced once per message. It is a fixed
// instantiation over X25519, the aeadcore AEAD primitives, and the kdf
// package's HKDF/HMAC derivations - there is no pluggable curve or hash
// here, since the protocol this implements names X25519 specifically.
package ratchet

import (
	"crypto/hmac"
	"crypto/rand"

	"golang.org/x/crypto/curve25519"

	"github.com/qiyashash/core/aeadcore"
	"github.com/qiyashash/core/kdf"
	"github.com/qiyashash/core/qerr"
	"github.com/qiyashash/core/x3dh"
)

// MaxChainLength is the most messages a single sending chain may emit
// before a DH ratchet step is required.
const MaxChainLength = 1000

// MaxSkip is the most skipped-message keys the default in-memory store
// will retain at once; beyond that, the oldest entries are evicted.
const MaxSkip = 1000

// DefaultAlgorithm is the AEAD algorithm used when a session is not
// otherwise configured.
const DefaultAlgorithm = aeadcore.AlgoXChaCha20Poly1305

func generateDHKeyPair() (secret, public [32]byte, err error) {
	if _, err = rand.Read(secret[:]); err != nil {
		return
	}
	secret[0] &= 248
	secret[31] &= 127
	secret[31] |= 64
	pubBytes, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return
	}
	copy(public[:], pubBytes)
	return
}

func dh(secret, peer [32]byte) ([32]byte, error) {
	var out [32]byte
	b, err := curve25519.X25519(secret[:], peer[:])
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// State is the full state of one side of a ratchet session.
type State struct {
	DHSecret    [32]byte
	DHPublic    [32]byte
	HasRemote   bool
	DHRemote    [32]byte
	RootKey     [32]byte
	HasSendCK   bool
	SendCK      [32]byte
	HasRecvCK   bool
	RecvCK      [32]byte
	Ns, Nr, PN  uint32
	Algorithm   aeadcore.Algorithm
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	c := *s
	return &c
}

func (s *State) wipe() {
	zero(s.DHSecret[:])
	zero(s.DHRemote[:])
	zero(s.RootKey[:])
	zero(s.SendCK[:])
	zero(s.RecvCK[:])
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Store persists session state and skipped-message keys.
type Store interface {
	// SaveState persists the current session state.
	SaveState(s *State) error
	// StoreSkippedKey remembers a message key for a message that arrived
	// out of order, keyed by the sender's ratchet public key and message
	// number.
	StoreSkippedKey(dhPublic [32]byte, n uint32, key [32]byte) error
	// LoadSkippedKey retrieves a previously stored skipped-message key.
	// ok is false if no such key is stored.
	LoadSkippedKey(dhPublic [32]byte, n uint32) (key [32]byte, ok bool, err error)
	// DeleteSkippedKey removes a skipped-message key once it has been used.
	DeleteSkippedKey(dhPublic [32]byte, n uint32) error
}

type skippedKeyID struct {
	dhPublic [32]byte
	n        uint32
}

// memoryStore is the default Store: skipped keys live in memory and are
// evicted oldest-first once more than maxSkip accumulate. Eviction is
// strictly FIFO by insertion order, never by last access, matching the
// policy that a key nobody has asked for yet is exactly as disposable as
// one that has sat unused the longest.
type memoryStore struct {
	maxSkip int
	order   []skippedKeyID
	keys    map[skippedKeyID][32]byte
}

func newMemoryStore(maxSkip int) *memoryStore {
	return &memoryStore{maxSkip: maxSkip, keys: make(map[skippedKeyID][32]byte)}
}

func (m *memoryStore) SaveState(*State) error { return nil }

func (m *memoryStore) StoreSkippedKey(dhPublic [32]byte, n uint32, key [32]byte) error {
	id := skippedKeyID{dhPublic, n}
	if _, exists := m.keys[id]; !exists {
		m.order = append(m.order, id)
	}
	m.keys[id] = key
	for len(m.order) > m.maxSkip {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.keys, oldest)
	}
	return nil
}

func (m *memoryStore) LoadSkippedKey(dhPublic [32]byte, n uint32) ([32]byte, bool, error) {
	key, ok := m.keys[skippedKeyID{dhPublic, n}]
	return key, ok, nil
}

func (m *memoryStore) DeleteSkippedKey(dhPublic [32]byte, n uint32) error {
	id := skippedKeyID{dhPublic, n}
	delete(m.keys, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Message is a ciphertext produced by Session.Encrypt.
type Message struct {
	Header     Header
	Ciphertext []byte
	Nonce      []byte
	Algorithm  aeadcore.Algorithm
}

// Session encapsulates one side of an ongoing Double Ratchet conversation.
type Session struct {
	state *State
	store Store
}

// Option configures a Session.
type Option func(*Session)

// WithStore configures the store used for session state persistence and
// skipped-message-key caching. The default is an in-memory store bounded
// at MaxSkip entries.
func WithStore(store Store) Option {
	return func(s *Session) { s.store = store }
}

// WithAlgorithm selects the AEAD algorithm new sessions encrypt with. The
// default is XChaCha20-Poly1305.
func WithAlgorithm(algo aeadcore.Algorithm) Option {
	return func(s *Session) { s.state.Algorithm = algo }
}

func newSession(opts []Option) *Session {
	s := &Session{state: &State{Algorithm: DefaultAlgorithm}}
	for _, fn := range opts {
		fn(s)
	}
	if s.store == nil {
		s.store = newMemoryStore(MaxSkip)
	}
	return s
}

// NewInitiatorSession starts a session as the X3DH initiator: it
// generates a fresh ratchet key pair, performs one DH ratchet step against
// the responder's signed pre-key, and derives the first sending chain.
func NewInitiatorSession(secret x3dh.SharedSecret, remoteSignedPreKeyPublic [32]byte, opts ...Option) (*Session, error) {
	s := newSession(opts)
	dhSecret, dhPublic, err := generateDHKeyPair()
	if err != nil {
		return nil, err
	}
	s.state.DHSecret = dhSecret
	s.state.DHPublic = dhPublic
	s.state.DHRemote = remoteSignedPreKeyPublic
	s.state.HasRemote = true

	dhOut, err := dh(dhSecret, remoteSignedPreKeyPublic)
	if err != nil {
		return nil, err
	}
	rk, ck, err := kdf.DeriveRootAndChainKeys(secret.Secret, dhOut)
	if err != nil {
		return nil, err
	}
	s.state.RootKey = rk
	s.state.SendCK = ck
	s.state.HasSendCK = true
	return s, nil
}

// NewResponderSession starts a session as the X3DH responder, using the
// signed pre-key secret the initiator's first message targeted as this
// side's initial ratchet key pair. Neither chain is keyed yet; both are
// filled in by the DH ratchet step triggered by the first Decrypt.
func NewResponderSession(secret x3dh.SharedSecret, selfSignedPreKeySecret, selfSignedPreKeyPublic [32]byte, opts ...Option) (*Session, error) {
	s := newSession(opts)
	s.state.DHSecret = selfSignedPreKeySecret
	s.state.DHPublic = selfSignedPreKeyPublic
	s.state.RootKey = secret.Secret
	return s, nil
}

// Resume reconstructs a Session from previously saved state.
func Resume(state *State, opts ...Option) *Session {
	s := &Session{state: state}
	for _, fn := range opts {
		fn(s)
	}
	if s.store == nil {
		s.store = newMemoryStore(MaxSkip)
	}
	return s
}

// State returns the session's current state, for persistence via Resume.
func (s *Session) State() *State { return s.state }

// Encrypt seals plaintext, authenticating aad, advancing the sending
// chain by one step. It rejects plaintext over aeadcore.MaxMessageSize
// and a sending chain already at MaxChainLength before performing any KDF
// step or touching the chain key.
func (s *Session) Encrypt(plaintext, aad []byte) (Message, error) {
	if len(plaintext) > aeadcore.MaxMessageSize {
		return Message{}, qerr.ErrMessageTooLarge
	}
	if s.state.Ns >= MaxChainLength {
		return Message{}, qerr.ErrChainTooLong
	}
	if !s.state.HasSendCK {
		return Message{}, qerr.ErrRatchetCorrupted
	}

	nextCK, mk := kdf.DeriveMessageKeys(s.state.SendCK)
	h := Header{DHPublic: s.state.DHPublic, N: s.state.Ns, PN: s.state.PN}

	payload, err := aeadcore.Encrypt(s.state.Algorithm, mk[:], plaintext, concat(aad, h))
	if err != nil {
		return Message{}, err
	}
	if err := s.store.SaveState(s.state); err != nil {
		return Message{}, err
	}
	s.state.SendCK = nextCK
	s.state.Ns++
	return Message{Header: h, Ciphertext: payload.Ciphertext, Nonce: payload.Nonce, Algorithm: payload.Algorithm}, nil
}

// Decrypt opens msg, authenticating aad. If msg arrived out of order, the
// intervening message keys are derived and cached but the committed
// session state is otherwise untouched until decryption succeeds; that
// caching is the only state mutation a failed Decrypt call can leave
// behind.
func (s *Session) Decrypt(msg Message, aad []byte) ([]byte, error) {
	h := msg.Header
	payload := aeadcore.Payload{Algorithm: msg.Algorithm, Nonce: msg.Nonce, Ciphertext: msg.Ciphertext}

	if mk, ok, err := s.store.LoadSkippedKey(h.DHPublic, h.N); err != nil {
		return nil, err
	} else if ok {
		pt, err := aeadcore.Decrypt(mk[:], payload, concat(aad, h))
		if err != nil {
			return nil, err
		}
		if err := s.store.DeleteSkippedKey(h.DHPublic, h.N); err != nil {
			zero(pt)
			return nil, err
		}
		return pt, nil
	}

	tmp := s.state.Clone()

	if !s.state.HasRemote || !hmac.Equal(h.DHPublic[:], tmp.DHRemote[:]) {
		if err := tmp.skip(s.store, h.PN); err != nil {
			return nil, err
		}
		if err := tmp.dhRatchetStep(h.DHPublic); err != nil {
			return nil, err
		}
	}
	if err := tmp.skip(s.store, h.N); err != nil {
		return nil, err
	}

	nextCK, mk := kdf.DeriveMessageKeys(tmp.RecvCK)
	pt, err := aeadcore.Decrypt(mk[:], payload, concat(aad, h))
	if err != nil {
		return nil, err
	}
	tmp.RecvCK = nextCK
	tmp.Nr++

	if err := s.store.SaveState(tmp); err != nil {
		zero(pt)
		return nil, err
	}
	s.state.wipe()
	s.state = tmp
	return pt, nil
}

// skip derives and caches message keys for [state.Nr, until), the gap left
// by a message (or DH ratchet step) arriving ahead of schedule.
func (s *State) skip(store Store, until uint32) error {
	if !s.HasRecvCK {
		return nil
	}
	if until > s.Nr && until-s.Nr > MaxSkip {
		return qerr.ErrMessageGapTooLarge
	}
	for s.Nr < until {
		nextCK, mk := kdf.DeriveMessageKeys(s.RecvCK)
		if err := store.StoreSkippedKey(s.DHRemote, s.Nr, mk); err != nil {
			return err
		}
		s.RecvCK = nextCK
		s.Nr++
	}
	return nil
}

// dhRatchetStep performs a DH ratchet step: closes out the current
// sending chain, adopts the peer's new ratchet public key, derives a
// fresh receiving chain from it, then generates a new ratchet key pair of
// our own and derives a fresh sending chain from that.
func (s *State) dhRatchetStep(remotePublic [32]byte) error {
	s.PN = s.Ns
	s.Ns = 0
	s.Nr = 0
	s.DHRemote = remotePublic
	s.HasRemote = true

	dhOut, err := dh(s.DHSecret, s.DHRemote)
	if err != nil {
		return err
	}
	rk, recvCK, err := kdf.DeriveRootAndChainKeys(s.RootKey, dhOut)
	if err != nil {
		return err
	}
	s.RootKey, s.RecvCK = rk, recvCK
	s.HasRecvCK = true

	newSecret, newPublic, err := generateDHKeyPair()
	if err != nil {
		return err
	}
	s.DHSecret, s.DHPublic = newSecret, newPublic

	dhOut, err = dh(s.DHSecret, s.DHRemote)
	if err != nil {
		return err
	}
	rk, sendCK, err := kdf.DeriveRootAndChainKeys(s.RootKey, dhOut)
	if err != nil {
		return err
	}
	s.RootKey, s.SendCK = rk, sendCK
	s.HasSendCK = true
	return nil
}
