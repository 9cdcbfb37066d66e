// Package chainstate provides an append-only, tamper-evident log of the
// events flowing through a session: messages, deletions, identity
// rotations, and re-keys. Each event folds into a running hash so that any
// alteration of an earlier event is detectable from the current state.
package chainstate

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"

	"github.com/qiyashash/core/kdf"
	"github.com/qiyashash/core/qerr"
)

// LinkType distinguishes what kind of event produced a Link.
type LinkType uint8

const (
	LinkInit LinkType = iota
	LinkMessage
	LinkDeletion
	LinkIdentityRotation
	LinkReKey
)

// defaultMaxHistory is the number of links retained before the oldest are
// dropped from the in-memory history.
const defaultMaxHistory = 1000

// Link is one entry in the chain: the state hash it produced and the
// inputs that produced it.
type Link struct {
	Type      LinkType
	State     [32]byte
	InputHash [32]byte
	Timestamp int64
	Sequence  uint64
}

// Proof is a compact, externally verifiable summary of a State's history.
type Proof struct {
	CurrentState [32]byte
	Sequence     uint64
	Digest       [64]byte
	LinkCount    uint64
}

// State tracks the running chain hash and a bounded window of history.
type State struct {
	current     [32]byte
	history     []Link
	sequence    uint64
	maxHistory  int
	droppedSeqs uint64 // count of links trimmed from the front, for OldestVerifiable
}

func chainInitSeed() [32]byte {
	h := sha256.New()
	h.Write(kdf.DomainChainProof)
	h.Write([]byte("QiyasHash_ChainInit_v1"))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// New creates a chain anchored at a fixed, secret-independent seed.
func New(now int64) *State {
	return newWithAnchor(chainInitSeed(), now)
}

// NewFromSharedSecret creates a chain anchored deterministically on an
// X3DH shared secret, so both parties to a handshake start their chain
// state at the same link without needing to exchange it separately.
func NewFromSharedSecret(secret [32]byte, now int64) *State {
	h := sha256.New()
	h.Write(kdf.DomainChainProof)
	h.Write(secret[:])
	var anchor [32]byte
	copy(anchor[:], h.Sum(nil))
	return newWithAnchor(anchor, now)
}

func newWithAnchor(anchor [32]byte, now int64) *State {
	s := &State{current: anchor, maxHistory: defaultMaxHistory}
	s.history = append(s.history, Link{
		Type:      LinkInit,
		State:     anchor,
		Timestamp: now,
		Sequence:  0,
	})
	return s
}

// CurrentState returns the chain's running hash.
func (s *State) CurrentState() [32]byte { return s.current }

// Sequence returns the number of links added (the init link is sequence 0).
func (s *State) Sequence() uint64 { return s.sequence }

func (s *State) computeNewState(input [32]byte, timestamp int64) [32]byte {
	h := sha256.New()
	h.Write(s.current[:])
	h.Write(input[:])
	var ts, seq [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(timestamp))
	binary.BigEndian.PutUint64(seq[:], s.sequence)
	h.Write(ts[:])
	h.Write(seq[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (s *State) appendLink(t LinkType, input [32]byte, now int64) Link {
	s.sequence++
	newState := s.computeNewState(input, now)
	s.current = newState
	link := Link{Type: t, State: newState, InputHash: input, Timestamp: now, Sequence: s.sequence}
	s.history = append(s.history, link)
	for len(s.history) > s.maxHistory {
		s.history = s.history[1:]
		s.droppedSeqs++
	}
	return link
}

// AddMessage records a regular message event.
func (s *State) AddMessage(messageHash [32]byte, now int64) Link {
	return s.appendLink(LinkMessage, messageHash, now)
}

// AddDeletion records a message-deletion event.
func (s *State) AddDeletion(messageHash [32]byte, now int64) Link {
	return s.appendLink(LinkDeletion, messageHash, now)
}

// AddIdentityRotation records an identity rotation event, keyed on a hash
// of the rotation proof.
func (s *State) AddIdentityRotation(proofHash [32]byte, now int64) Link {
	return s.appendLink(LinkIdentityRotation, proofHash, now)
}

// AddReKey records a session re-key event.
func (s *State) AddReKey(rekeyProofHash [32]byte, now int64) Link {
	return s.appendLink(LinkReKey, rekeyProofHash, now)
}

// OldestVerifiable returns the sequence number and state hash of the
// oldest link still retained in history. VerifyIntegrity only checks
// transitions from this point forward; a caller needing a guarantee over
// the full, unbounded history must persist this anchor itself before it
// is trimmed.
func (s *State) OldestVerifiable() (sequence uint64, state [32]byte) {
	if len(s.history) == 0 {
		return 0, [32]byte{}
	}
	return s.history[0].Sequence, s.history[0].State
}

// VerifyIntegrity recomputes every transition in the retained history
// window and checks it against the recorded state, and that timestamps
// never regress.
func (s *State) VerifyIntegrity() error {
	if len(s.history) == 0 {
		return qerr.ErrInvalidChainState
	}
	for i := 1; i < len(s.history); i++ {
		prev, curr := s.history[i-1], s.history[i]
		if curr.Sequence != prev.Sequence+1 {
			return qerr.ErrInvalidChainState
		}
		if curr.Timestamp < prev.Timestamp {
			return qerr.ErrInvalidChainState
		}
		expected := recompute(prev.State, curr.InputHash, curr.Timestamp, curr.Sequence)
		if expected != curr.State {
			return qerr.ErrInvalidChainState
		}
	}
	if last := s.history[len(s.history)-1]; last.State != s.current {
		return qerr.ErrInvalidChainState
	}
	return nil
}

func recompute(prevState, input [32]byte, timestamp int64, sequence uint64) [32]byte {
	h := sha256.New()
	h.Write(prevState[:])
	h.Write(input[:])
	var ts, seq [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(timestamp))
	binary.BigEndian.PutUint64(seq[:], sequence)
	h.Write(ts[:])
	h.Write(seq[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// GenerateProof summarizes the retained history into a compact,
// externally verifiable digest.
func (s *State) GenerateProof() Proof {
	h := sha512.New()
	for _, link := range s.history {
		h.Write(link.State[:])
		h.Write(link.InputHash[:])
		var ts [8]byte
		binary.BigEndian.PutUint64(ts[:], uint64(link.Timestamp))
		h.Write(ts[:])
	}
	var digest [64]byte
	copy(digest[:], h.Sum(nil))
	return Proof{
		CurrentState: s.current,
		Sequence:     s.sequence,
		Digest:       digest,
		LinkCount:    uint64(len(s.history)),
	}
}

// History returns the retained window of links, oldest first.
func (s *State) History() []Link {
	out := make([]Link, len(s.history))
	copy(out, s.history)
	return out
}

// VerifyChain independently verifies an externally supplied slice of
// links, starting from an Init link at sequence 0.
func VerifyChain(links []Link) error {
	if len(links) == 0 {
		return qerr.ErrInvalidChainState
	}
	if links[0].Type != LinkInit {
		return qerr.ErrInvalidChainState
	}
	for i := 1; i < len(links); i++ {
		prev, curr := links[i-1], links[i]
		if curr.Sequence != prev.Sequence+1 {
			return qerr.ErrInvalidChainState
		}
		expected := recompute(prev.State, curr.InputHash, curr.Timestamp, curr.Sequence)
		if expected != curr.State {
			return qerr.ErrInvalidChainState
		}
	}
	return nil
}

// ComputeMessageHash hashes a ciphertext and its header together, for use
// as a Link's InputHash.
func ComputeMessageHash(ciphertext, header []byte) [32]byte {
	h := sha256.New()
	h.Write(ciphertext)
	h.Write(header)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
