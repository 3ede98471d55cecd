package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ga-techcraft/Online-Chat-Messenger/internal/protocol"
)

func TestNewNanoIDGenerator_Size(t *testing.T) {
	_, err := NewNanoIDGenerator(8)
	assert.Error(t, err)

	_, err = NewNanoIDGenerator(protocol.MaxTokenBytes + 1)
	assert.Error(t, err)

	g, err := NewNanoIDGenerator(protocol.MaxTokenBytes)
	require.NoError(t, err)
	tok, err := g.Generate()
	require.NoError(t, err)
	assert.Len(t, tok, protocol.MaxTokenBytes)
}

func TestNanoIDGenerator_Unique(t *testing.T) {
	g, err := NewNanoIDGenerator(DefaultSize)
	require.NoError(t, err)

	const n = 10000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		tok, err := g.Generate()
		require.NoError(t, err)
		require.LessOrEqual(t, len(tok), protocol.MaxTokenBytes)

		valid, reason := g.Validate(tok)
		require.True(t, valid, reason)

		_, dup := seen[tok]
		require.False(t, dup, "duplicate token %q", tok)
		seen[tok] = struct{}{}
	}
	assert.Len(t, seen, n)
}

func TestNanoIDGenerator_Validate(t *testing.T) {
	g, err := NewNanoIDGenerator(16)
	require.NoError(t, err)

	valid, _ := g.Validate("abcdefghijklmnop")
	assert.True(t, valid)

	valid, reason := g.Validate("short")
	assert.False(t, valid)
	assert.Contains(t, reason, "expected length")

	valid, reason = g.Validate("abcdefghijklmno+")
	assert.False(t, valid)
	assert.Contains(t, reason, "not in alphabet")
}
