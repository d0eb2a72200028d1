package pow

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidDifficulty is returned for parameters the puzzle cannot use
var ErrInvalidDifficulty = errors.New("invalid proof-of-work difficulty")

// Difficulty holds the Equihash parameters
type Difficulty struct {
	N int `yaml:"n" json:"n"`
	K int `yaml:"k" json:"k"`
}

func (d Difficulty) String() string {
	return fmt.Sprintf("n=%d,k=%d", d.N, d.K)
}

// Solution is a solved puzzle instance
type Solution struct {
	Nonce uint32
	Proof []byte
}

// Puzzle solves and verifies proof-of-work instances seeded by a hash
type Puzzle interface {
	// Solve searches nonces until a valid proof is found or ctx is done.
	Solve(ctx context.Context, seed []byte, d Difficulty) (Solution, error)

	// Verify reports whether proof is a valid solution for seed and nonce.
	// A wrong proof yields false with a nil error; an error is returned only
	// for unusable parameters.
	Verify(seed, proof []byte, nonce uint32, d Difficulty) (bool, error)
}
