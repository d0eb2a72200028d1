package quasar

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

const filterWords = (FilterBits + 63) / 64

// Filter is an attenuated Bloom filter: FilterDepth levels of equal width.
// It only ever accumulates. Safe for concurrent use.
type Filter struct {
	mu     sync.RWMutex
	levels []*bloom.BloomFilter
}

// NewFilter returns an empty filter
func NewFilter() *Filter {
	levels := make([]*bloom.BloomFilter, FilterDepth)
	for i := range levels {
		levels[i] = bloom.New(FilterBits, FilterHashes)
	}
	return &Filter{levels: levels}
}

// FilterFromHexArray decodes the wire form produced by HexArray
func FilterFromHexArray(encoded []string) (*Filter, error) {
	if len(encoded) != FilterDepth {
		return nil, fmt.Errorf("%w: want %d levels, got %d", ErrInvalidFilter, FilterDepth, len(encoded))
	}

	levels := make([]*bloom.BloomFilter, len(encoded))
	for i, s := range encoded {
		raw, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: level %d: %v", ErrInvalidFilter, i, err)
		}
		if len(raw) != filterWords*8 {
			return nil, fmt.Errorf("%w: level %d has %d bytes", ErrInvalidFilter, i, len(raw))
		}
		words := make([]uint64, filterWords)
		for w := range words {
			words[w] = binary.BigEndian.Uint64(raw[w*8:])
		}
		levels[i] = bloom.FromWithM(words, FilterBits, FilterHashes)
	}
	return &Filter{levels: levels}, nil
}

// Depth returns the number of levels
func (f *Filter) Depth() int {
	return len(f.levels)
}

// Add inserts item at level
func (f *Filter) Add(level int, item string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[level].AddString(item)
}

// HasAt reports whether item may be present at level
func (f *Filter) HasAt(level int, item string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.levels[level].TestString(item)
}

// Has reports whether item may be present at any level
func (f *Filter) Has(item string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, l := range f.levels {
		if l.TestString(item) {
			return true
		}
	}
	return false
}

// HasAny reports whether any of items may be present at any level
func (f *Filter) HasAny(items []string) bool {
	for _, item := range items {
		if f.Has(item) {
			return true
		}
	}
	return false
}

// Merge ORs every level of other into the matching level of f
func (f *Filter) Merge(other *Filter) error {
	snapshot := other.Clone()
	if snapshot.Depth() != f.Depth() {
		return fmt.Errorf("%w: depth %d, want %d", ErrInvalidFilter, snapshot.Depth(), f.Depth())
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i, l := range snapshot.levels {
		if err := f.levels[i].Merge(l); err != nil {
			return fmt.Errorf("%w: level %d: %v", ErrInvalidFilter, i, err)
		}
	}
	return nil
}

// Clone returns an independent copy
func (f *Filter) Clone() *Filter {
	f.mu.RLock()
	defer f.mu.RUnlock()
	levels := make([]*bloom.BloomFilter, len(f.levels))
	for i, l := range f.levels {
		levels[i] = l.Copy()
	}
	return &Filter{levels: levels}
}

// Equal reports whether both filters have identical bits
func (f *Filter) Equal(other *Filter) bool {
	a, b := f.Clone(), other.Clone()
	if len(a.levels) != len(b.levels) {
		return false
	}
	for i := range a.levels {
		if !a.levels[i].Equal(b.levels[i]) {
			return false
		}
	}
	return true
}

// HexArray encodes every level as a hex string of big-endian 64 bit words
func (f *Filter) HexArray() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, len(f.levels))
	for i, l := range f.levels {
		words := l.BitSet().Bytes()
		raw := make([]byte, filterWords*8)
		for w := 0; w < len(words) && w < filterWords; w++ {
			binary.BigEndian.PutUint64(raw[w*8:], words[w])
		}
		out[i] = hex.EncodeToString(raw)
	}
	return out
}
