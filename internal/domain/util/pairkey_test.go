package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairKeySymmetric(t *testing.T) {
	t.Parallel()

	assert.Equal(t, PairKey(7, 42), PairKey(42, 7))
	assert.Equal(t, int64(7<<30+42), PairKey(42, 7))
}

func TestPairKeyDistinct(t *testing.T) {
	t.Parallel()

	seen := map[int64]struct{}{}
	pairs := [][2]int64{{1, 2}, {2, 3}, {1, 3}, {1, 1}, {100, 200}, {200, 300}}
	for _, p := range pairs {
		k := PairKey(p[0], p[1])
		_, dup := seen[k]
		require.False(t, dup, "pair %v collided", p)
		seen[k] = struct{}{}
	}
}

func TestSafeParse(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(42), SafeParseInt64("42"))
	assert.Equal(t, int64(0), SafeParseInt64("not-a-number"))
	assert.Equal(t, int64(0), SafeParseInt64(""))
	assert.Equal(t, 15, SafeParseInt("15"))
	assert.True(t, SafeParseBool("true"))
	assert.True(t, SafeParseBool("1"))
	assert.False(t, SafeParseBool("maybe"))
}
