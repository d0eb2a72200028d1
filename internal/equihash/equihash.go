// Package equihash implements the Equihash memory-hard proof-of-work puzzle
// (Biryukov and Khovratovich) using Wagner's generalised birthday algorithm.
//
// For parameters (n, k) every index i in [0, 2^(n/(k+1)+1)) maps to an n bit
// string H(seed || nonce || i) with BLAKE2b. A proof is an ordered list of
// 2^k distinct indices whose strings XOR to zero, where every aligned
// sub-block of size 2^j XORs to zero on its first j*n/(k+1) bits and the
// left half of every block starts with the smaller index.
//
// Proofs are serialised as the indices packed big-endian in n/(k+1)+1 bits
// each, padded with zero bits to a whole byte. Padding must be zero so a
// solution has exactly one encoding.
package equihash

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/rmacdonaldsmith/quasar-go/pkg/pow"
)

const (
	// maxCollisionBits bounds the initial list at 2^(maxCollisionBits+1) rows
	maxCollisionBits = 25
	// maxN is bounded by the BLAKE2b-256 output width
	maxN = 256
	// rowGrowth caps each round's list at rowGrowth times the initial size
	rowGrowth = 4
)

// ErrNonceSpaceExhausted is returned when every 32 bit nonce was tried
var ErrNonceSpaceExhausted = errors.New("equihash: nonce space exhausted")

// Puzzle implements pow.Puzzle
type Puzzle struct{}

// New returns an Equihash puzzle
func New() *Puzzle {
	return &Puzzle{}
}

// collisionBits validates d and returns n/(k+1)
func collisionBits(d pow.Difficulty) (int, error) {
	if d.K < 1 || d.N <= 0 || d.N > maxN || d.N%(d.K+1) != 0 {
		return 0, fmt.Errorf("%w: %s", pow.ErrInvalidDifficulty, d)
	}
	c := d.N / (d.K + 1)
	if c > maxCollisionBits || 2*c > 64 {
		return 0, fmt.Errorf("%w: %s needs too much memory", pow.ErrInvalidDifficulty, d)
	}
	return c, nil
}

// ProofSize returns the encoded proof length in bytes for d
func ProofSize(d pow.Difficulty) (int, error) {
	c, err := collisionBits(d)
	if err != nil {
		return 0, err
	}
	return ((1<<d.K)*(c+1) + 7) / 8, nil
}

type row struct {
	key  uint64
	hash []byte
	idx  []uint32
}

// Solve searches nonces from zero upwards until a proof is found.
func (p *Puzzle) Solve(ctx context.Context, seed []byte, d pow.Difficulty) (pow.Solution, error) {
	c, err := collisionBits(d)
	if err != nil {
		return pow.Solution{}, err
	}

	for nonce := uint32(0); ; nonce++ {
		if err := ctx.Err(); err != nil {
			return pow.Solution{}, err
		}
		if indices := solveNonce(ctx, seed, nonce, d, c); indices != nil {
			return pow.Solution{Nonce: nonce, Proof: encodeIndices(indices, c+1)}, nil
		}
		if nonce == math.MaxUint32 {
			return pow.Solution{}, ErrNonceSpaceExhausted
		}
	}
}

// Verify checks proof against seed and nonce
func (p *Puzzle) Verify(seed, proof []byte, nonce uint32, d pow.Difficulty) (bool, error) {
	c, err := collisionBits(d)
	if err != nil {
		return false, err
	}

	indices, ok := decodeIndices(proof, c+1, 1<<d.K)
	if !ok {
		return false, nil
	}

	seen := make(map[uint32]struct{}, len(indices))
	for _, i := range indices {
		if _, dup := seen[i]; dup {
			return false, nil
		}
		seen[i] = struct{}{}
	}

	type node struct {
		hash  []byte
		first uint32
	}
	level := make([]node, len(indices))
	for i, x := range indices {
		level[i] = node{hash: leaf(seed, nonce, x, d.N), first: x}
	}

	for j := 1; j <= d.K; j++ {
		zeroBits := j * c
		if j == d.K {
			zeroBits = d.N
		}
		next := make([]node, len(level)/2)
		for i := range next {
			l, r := level[2*i], level[2*i+1]
			if l.first >= r.first {
				return false, nil
			}
			h := xor(l.hash, r.hash)
			if !hasLeadingZeros(h, zeroBits) {
				return false, nil
			}
			next[i] = node{hash: h, first: l.first}
		}
		level = next
	}
	return true, nil
}

// solveNonce runs Wagner's algorithm for one nonce, returning nil when the
// instance has no non-trivial solution.
func solveNonce(ctx context.Context, seed []byte, nonce uint32, d pow.Difficulty, c int) []uint32 {
	size := 1 << (c + 1)
	rows := make([]row, size)
	for i := range rows {
		rows[i] = row{hash: leaf(seed, nonce, uint32(i), d.N), idx: []uint32{uint32(i)}}
	}

	for r := 0; r < d.K-1; r++ {
		if ctx.Err() != nil {
			return nil
		}
		sortByBits(rows, r*c, c)

		next := make([]row, 0, len(rows))
		forEachCollision(rows, func(a, b *row) bool {
			if !disjoint(a.idx, b.idx) {
				return true
			}
			next = append(next, combine(a, b))
			return len(next) < rowGrowth*size
		})
		rows = next
	}

	sortByBits(rows, (d.K-1)*c, 2*c)
	var solution []uint32
	forEachCollision(rows, func(a, b *row) bool {
		if !disjoint(a.idx, b.idx) {
			return true
		}
		candidate := combine(a, b)
		if !hasLeadingZeros(candidate.hash, d.N) {
			return true
		}
		solution = candidate.idx
		return false
	})
	return solution
}

func sortByBits(rows []row, start, length int) {
	for i := range rows {
		rows[i].key = bitsAt(rows[i].hash, start, length)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })
}

// forEachCollision calls fn for every pair of rows sharing a key until fn
// returns false.
func forEachCollision(rows []row, fn func(a, b *row) bool) {
	for i := 0; i < len(rows); {
		j := i + 1
		for j < len(rows) && rows[j].key == rows[i].key {
			j++
		}
		for a := i; a < j; a++ {
			for b := a + 1; b < j; b++ {
				if !fn(&rows[a], &rows[b]) {
					return
				}
			}
		}
		i = j
	}
}

func combine(a, b *row) row {
	left, right := a, b
	if right.idx[0] < left.idx[0] {
		left, right = right, left
	}
	idx := make([]uint32, 0, len(left.idx)+len(right.idx))
	idx = append(idx, left.idx...)
	idx = append(idx, right.idx...)
	return row{hash: xor(a.hash, b.hash), idx: idx}
}

func disjoint(a, b []uint32) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return false
			}
		}
	}
	return true
}

// leaf computes the n bit string for index i
func leaf(seed []byte, nonce, index uint32, n int) []byte {
	buf := make([]byte, 0, len(seed)+8)
	buf = append(buf, seed...)
	buf = binary.LittleEndian.AppendUint32(buf, nonce)
	buf = binary.LittleEndian.AppendUint32(buf, index)
	sum := blake2b.Sum256(buf)

	out := make([]byte, (n+7)/8)
	copy(out, sum[:])
	if rem := n % 8; rem != 0 {
		out[len(out)-1] &= 0xff << (8 - rem)
	}
	return out
}

func xor(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func bitsAt(h []byte, start, length int) uint64 {
	var v uint64
	for i := start; i < start+length; i++ {
		v = v<<1 | uint64(h[i/8]>>(7-uint(i%8)))&1
	}
	return v
}

func hasLeadingZeros(h []byte, bits int) bool {
	full := bits / 8
	for i := 0; i < full; i++ {
		if h[i] != 0 {
			return false
		}
	}
	if rem := bits % 8; rem != 0 {
		return h[full]&(0xff<<(8-rem)) == 0
	}
	return true
}

func encodeIndices(indices []uint32, width int) []byte {
	out := make([]byte, (len(indices)*width+7)/8)
	pos := 0
	for _, x := range indices {
		for b := width - 1; b >= 0; b-- {
			if x>>uint(b)&1 == 1 {
				out[pos/8] |= 1 << (7 - uint(pos%8))
			}
			pos++
		}
	}
	return out
}

func decodeIndices(proof []byte, width, count int) ([]uint32, bool) {
	totalBits := count * width
	if len(proof) != (totalBits+7)/8 {
		return nil, false
	}
	indices := make([]uint32, count)
	for i := range indices {
		indices[i] = uint32(bitsAt(proof, i*width, width))
	}
	if rem := totalBits % 8; rem != 0 && proof[len(proof)-1]&(0xff>>rem) != 0 {
		return nil, false
	}
	return indices, true
}

var _ pow.Puzzle = (*Puzzle)(nil)
