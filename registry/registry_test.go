package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := New[int]()

	require.NoError(t, reg.Register("a", 1))
	require.NoError(t, reg.Register("b", 2))

	value, ok := reg.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, 1, value)

	_, ok = reg.Lookup("ghost")
	assert.False(t, ok)
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	reg := New[string]()

	require.NoError(t, reg.Register("a", "first"))
	err := reg.Register("a", "second")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	value, _ := reg.Lookup("a")
	assert.Equal(t, "first", value, "the original registration survives")
}

func TestRegistry_NamesSorted(t *testing.T) {
	reg := New[int]()
	for i, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(name, i))
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.Names())
}
