package chainstate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/qiyashash/core/qerr"
)

func TestNewChainStartsAtSequenceZero(t *testing.T) {
	s := New(1700000000)
	require.Equal(t, uint64(0), s.Sequence())
	require.Len(t, s.History(), 1)
}

func TestAddMessagesProducesDistinctStates(t *testing.T) {
	s := New(1700000000)
	h1 := [32]byte{0x01}
	h2 := [32]byte{0x02}
	link1 := s.AddMessage(h1, 1700000001)
	link2 := s.AddMessage(h2, 1700000002)
	require.Equal(t, uint64(1), link1.Sequence)
	require.Equal(t, uint64(2), link2.Sequence)
	require.NotEqual(t, link1.State, link2.State)
}

func TestVerifyIntegritySucceedsOnUntamperedChain(t *testing.T) {
	s := New(1700000000)
	for i := 0; i < 10; i++ {
		s.AddMessage([32]byte{byte(i)}, 1700000000+int64(i))
	}
	require.NoError(t, s.VerifyIntegrity())
}

func TestDeletionLinkIntegrity(t *testing.T) {
	s := New(1700000000)
	h := [32]byte{0x01}
	s.AddMessage(h, 1700000001)
	link := s.AddDeletion(h, 1700000002)
	require.Equal(t, LinkDeletion, link.Type)
	require.NoError(t, s.VerifyIntegrity())
}

func TestChainProofTracksSequence(t *testing.T) {
	s := New(1700000000)
	for i := 0; i < 10; i++ {
		s.AddMessage([32]byte{byte(i)}, 1700000000+int64(i))
	}
	proof := s.GenerateProof()
	require.Equal(t, uint64(10), proof.Sequence)
	require.Equal(t, s.CurrentState(), proof.CurrentState)
}

func TestFromSharedSecretDeterministic(t *testing.T) {
	secret := [32]byte{0x42}
	s1 := NewFromSharedSecret(secret, 1700000000)
	s2 := NewFromSharedSecret(secret, 1700000000)
	require.Equal(t, s1.CurrentState(), s2.CurrentState())

	other := [32]byte{0x43}
	s3 := NewFromSharedSecret(other, 1700000000)
	require.NotEqual(t, s1.CurrentState(), s3.CurrentState())
}

func TestVerifyChainExternalSlice(t *testing.T) {
	s := New(1700000000)
	for i := 0; i < 5; i++ {
		s.AddMessage([32]byte{byte(i)}, 1700000000+int64(i))
	}
	require.NoError(t, VerifyChain(s.History()))
}

func TestTamperedChainDetected(t *testing.T) {
	s := New(1700000000)
	for i := 0; i < 5; i++ {
		s.AddMessage([32]byte{byte(i)}, 1700000000+int64(i))
	}
	links := s.History()
	links[2].InputHash[0] ^= 0xFF
	require.ErrorIs(t, VerifyChain(links), qerr.ErrInvalidChainState)
}

func TestVerifyChainRequiresInitFirst(t *testing.T) {
	links := []Link{{Type: LinkMessage, Sequence: 0}}
	require.ErrorIs(t, VerifyChain(links), qerr.ErrInvalidChainState)
}

func TestHistoryTruncationBoundary(t *testing.T) {
	s := New(1700000000)
	for i := 0; i < defaultMaxHistory+10; i++ {
		s.AddMessage([32]byte{byte(i)}, 1700000000+int64(i))
	}
	require.LessOrEqual(t, len(s.History()), defaultMaxHistory)
	require.NoError(t, s.VerifyIntegrity())
	seq, state := s.OldestVerifiable()
	require.Equal(t, s.History()[0].Sequence, seq)
	require.Equal(t, s.History()[0].State, state)
}
