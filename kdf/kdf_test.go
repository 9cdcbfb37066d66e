package kdf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveRootAndChainKeysDeterministic(t *testing.T) {
	var root, dh [32]byte
	for i := range root {
		root[i] = byte(i)
		dh[i] = byte(255 - i)
	}
	r1, c1, err := DeriveRootAndChainKeys(root, dh)
	require.NoError(t, err)
	r2, c2, err := DeriveRootAndChainKeys(root, dh)
	require.NoError(t, err)
	require.Equal(t, r1, r2)
	require.Equal(t, c1, c2)
	require.NotEqual(t, r1, c1)
}

func TestChainRatchetAdvancesAndNeverRepeats(t *testing.T) {
	var ck [32]byte
	ck[0] = 1
	r := NewChainRatchet(ck)
	seen := map[[32]byte]bool{}
	prevChain := ck
	for i := 0; i < 50; i++ {
		next, mk := r.Ratchet()
		require.False(t, seen[mk], "message key repeated at step %d", i)
		seen[mk] = true
		require.NotEqual(t, prevChain, next)
		prevChain = next
	}
}

func TestConstantTimeEqual(t *testing.T) {
	a := []byte("abcdef")
	b := []byte("abcdef")
	c := []byte("abcdeg")
	require.True(t, ConstantTimeEqual(a, b))
	require.False(t, ConstantTimeEqual(a, c))
	require.False(t, ConstantTimeEqual(a, a[:len(a)-1]))
}
