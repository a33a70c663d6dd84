package shortid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	g := NewGenerator()
	seen := make(map[uint64]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := g.Next()
		_, dup := seen[id]
		require.False(t, dup, "duplicate identifier %d", id)
		seen[id] = struct{}{}
	}
}

func TestGenerateMonotonic(t *testing.T) {
	g := NewGenerator()
	last := g.Next()
	for i := 0; i < 5000; i++ {
		id := g.Next()
		assert.Greater(t, id, last)
		last = id
	}
}

func TestMachineStable(t *testing.T) {
	g := NewGenerator()
	m := g.Machine()
	assert.Less(t, m, uint64(1<<machineBits))
	for i := 0; i < 100; i++ {
		g.Next()
	}
	assert.Equal(t, m, g.Machine())
}

func TestShortCodeRoundTrip(t *testing.T) {
	g := NewGenerator()
	for i := 0; i < 10000; i++ {
		id := g.Next()
		code := ToShortCode(id)
		assert.Equal(t, id, FromShortCode(code))
	}
}

func TestShortCodeRoundTripFixed(t *testing.T) {
	for _, id := range []uint64{0, 1, 62, 1 << 22, 1<<42 - 1, ^uint64(0)} {
		code := ToShortCode(id)
		assert.Equal(t, id, FromShortCode(code), "id %d", id)
	}
}

func TestShortCodeLengthAndAlphabet(t *testing.T) {
	g := NewGenerator()
	for i := 0; i < 1000; i++ {
		code := ToShortCode(g.Next())
		require.Len(t, code, CodeLength)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(alphabet, c), "symbol %q outside alphabet", c)
		}
	}
}

func TestShortCodeNotSequential(t *testing.T) {
	// Consecutive identifiers must not share a long common prefix once
	// mixed; a shared 8-char prefix would leak ordering.
	a := ToShortCode(1000)
	b := ToShortCode(1001)
	assert.NotEqual(t, a[:8], b[:8])
}

func TestFromShortCodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"empty", ""},
		{"too short", "short"},
		{"too long", "abcdefghijkl"},
		{"invalid symbols", "!!!!!!!!!!!"},
		{"embedded space", "abcde fghij"},
		{"overflow", "zzzzzzzzzzz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, uint64(0), FromShortCode(tt.code))
		})
	}
}
