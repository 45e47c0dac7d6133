package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase_RegisterAndGet(t *testing.T) {
	r := New[int]()
	require.NoError(t, r.Register("a", 1))

	v, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestBase_Register_RejectsEmptyName(t *testing.T) {
	r := New[int]()
	assert.Error(t, r.Register("", 1))
}

func TestBase_Register_OverwritesExisting(t *testing.T) {
	r := New[string]()
	require.NoError(t, r.Register("a", "first"))
	require.NoError(t, r.Register("a", "second"))

	v, _ := r.Get("a")
	assert.Equal(t, "second", v)
	assert.Equal(t, 1, r.Count())
}

func TestBase_RegisterStrict_FailsWhenAlreadyPresent(t *testing.T) {
	r := New[int]()
	require.NoError(t, r.RegisterStrict("a", 1))
	assert.Error(t, r.RegisterStrict("a", 2))

	v, _ := r.Get("a")
	assert.Equal(t, 1, v)
}

func TestBase_ListAndKeys_AreSorted(t *testing.T) {
	r := New[int]()
	r.Register("zebra", 1)
	r.Register("alpha", 2)
	r.Register("mid", 3)

	assert.Equal(t, []string{"alpha", "mid", "zebra"}, r.Keys())
	assert.Equal(t, []int{2, 3, 1}, r.List())
}

func TestBase_Remove(t *testing.T) {
	r := New[int]()
	r.Register("a", 1)
	require.NoError(t, r.Remove("a"))
	assert.Equal(t, 0, r.Count())
	assert.Error(t, r.Remove("a"))
}

func TestBase_Clear(t *testing.T) {
	r := New[int]()
	r.Register("a", 1)
	r.Register("b", 2)
	r.Clear()
	assert.Equal(t, 0, r.Count())
	_, ok := r.Get("a")
	assert.False(t, ok)
}
