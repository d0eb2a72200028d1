package quasar

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_AddAndHas(t *testing.T) {
	f := NewFilter()
	assert.Equal(t, FilterDepth, f.Depth())
	assert.False(t, f.Has("abc"))

	f.Add(2, "abc")
	assert.True(t, f.Has("abc"))
	assert.True(t, f.HasAt(2, "abc"))
	assert.False(t, f.HasAt(0, "abc"))
	assert.True(t, f.HasAny([]string{"nope", "abc"}))
	assert.False(t, f.HasAny(nil))
}

func TestFilter_HexArrayRoundTrip(t *testing.T) {
	f := NewFilter()
	f.Add(0, "abc")
	f.Add(1, "def")

	encoded := f.HexArray()
	require.Len(t, encoded, FilterDepth)
	for _, level := range encoded {
		assert.Len(t, level, FilterBits/4)
	}

	decoded, err := FilterFromHexArray(encoded)
	require.NoError(t, err)
	assert.True(t, f.Equal(decoded))
	assert.True(t, decoded.HasAt(0, "abc"))
	assert.True(t, decoded.HasAt(1, "def"))
	assert.Equal(t, encoded, decoded.HexArray())
}

func TestFilterFromHexArray_Malformed(t *testing.T) {
	valid := NewFilter().HexArray()

	tests := map[string][]string{
		"no levels":     nil,
		"missing level": valid[:FilterDepth-1],
		"extra level":   append(append([]string(nil), valid...), valid[0]),
		"not hex":       {strings.Repeat("z", FilterBits/4), valid[1], valid[2]},
		"short level":   {"00ff", valid[1], valid[2]},
	}
	for name, levels := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FilterFromHexArray(levels)
			assert.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}

func TestFilter_MergeIsLevelWiseUnion(t *testing.T) {
	a, b := NewFilter(), NewFilter()
	a.Add(0, "mine")
	b.Add(0, "theirs")
	b.Add(2, "far")

	require.NoError(t, a.Merge(b))
	assert.True(t, a.HasAt(0, "mine"))
	assert.True(t, a.HasAt(0, "theirs"))
	assert.True(t, a.HasAt(2, "far"))
	assert.False(t, b.Has("mine"), "merge must not touch the source")
}

func TestFilter_MergeIdempotent(t *testing.T) {
	f := NewFilter()
	f.Add(0, "abc")
	f.Add(1, "def")
	before := f.Clone()

	require.NoError(t, f.Merge(f.Clone()))
	assert.True(t, f.Equal(before))

	require.NoError(t, f.Merge(f))
	assert.True(t, f.Equal(before))
	for _, item := range []string{"abc", "def", "ghi"} {
		assert.Equal(t, before.Has(item), f.Has(item), item)
	}
}

func TestFilter_MergeRejectsShapeMismatch(t *testing.T) {
	f := NewFilter()
	shallow := &Filter{levels: NewFilter().levels[:1]}
	assert.ErrorIs(t, f.Merge(shallow), ErrInvalidFilter)
}

func TestShouldRelayPublication(t *testing.T) {
	pub := &Publication{Topic: "topic", Publishers: []string{"origin", "relay"}}

	t.Run("topic absent", func(t *testing.T) {
		assert.False(t, ShouldRelayPublication(pub, NewFilter()))
	})

	t.Run("topic at any level", func(t *testing.T) {
		for level := 0; level < FilterDepth; level++ {
			f := NewFilter()
			f.Add(level, "topic")
			assert.True(t, ShouldRelayPublication(pub, f), "level %d", level)
		}
	})

	t.Run("publisher present overrides topic", func(t *testing.T) {
		for level := 0; level < FilterDepth; level++ {
			f := NewFilter()
			f.Add(0, "topic")
			f.Add(level, "relay")
			assert.False(t, ShouldRelayPublication(pub, f), "level %d", level)
		}
	})
}
