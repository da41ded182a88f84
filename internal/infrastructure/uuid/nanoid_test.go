package uuid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNanoIDGenerator(t *testing.T) {
	gen := NewNanoIDGenerator(24)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := gen.Generate()
		require.NoError(t, err)
		assert.Len(t, id, 24)
		assert.Empty(t, strings.Trim(id, Alphabet))
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestNewNanoIDGeneratorPanics(t *testing.T) {
	assert.Panics(t, func() { NewNanoIDGenerator(0) })
}
