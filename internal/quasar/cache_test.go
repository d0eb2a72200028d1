package quasar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicationCache_Admit(t *testing.T) {
	c, err := newPublicationCache(LRUCacheSize)
	require.NoError(t, err)

	assert.Zero(t, c.Count("a"))
	for want := 1; want <= MaxRepublishCached; want++ {
		assert.Equal(t, want, c.Admit("a", MaxRepublishCached))
	}
	assert.Zero(t, c.Admit("a", MaxRepublishCached))
	assert.Equal(t, MaxRepublishCached, c.Count("a"))
	assert.Equal(t, 1, c.Len())
}

func TestPublicationCache_Evicts(t *testing.T) {
	c, err := newPublicationCache(2)
	require.NoError(t, err)

	c.Admit("a", MaxRepublishCached)
	c.Admit("b", MaxRepublishCached)
	c.Admit("a", MaxRepublishCached)
	c.Admit("c", MaxRepublishCached)

	assert.Equal(t, 2, c.Count("a"))
	assert.Zero(t, c.Count("b"), "least recently used entry is evicted")
	assert.Equal(t, 1, c.Count("c"))
}
