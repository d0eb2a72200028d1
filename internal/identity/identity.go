package identity

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/rmacdonaldsmith/quasar-go/internal/equihash"
	"github.com/rmacdonaldsmith/quasar-go/pkg/contact"
	"github.com/rmacdonaldsmith/quasar-go/pkg/pow"
)

var (
	// DefaultDifficulty is the Equihash difficulty required on the main network
	DefaultDifficulty = pow.Difficulty{N: 96, K: 5}

	// TestnetDifficulty is the reduced difficulty used by test networks
	TestnetDifficulty = pow.Difficulty{N: 48, K: 5}
)

// ErrMalformedIdentity is returned when hex encoded identity material cannot
// be decoded
var ErrMalformedIdentity = errors.New("malformed identity")

// Option configures an Identity
type Option func(*Identity)

// WithDifficulty sets the Equihash parameters used by Solve and Validate
func WithDifficulty(d pow.Difficulty) Option {
	return func(id *Identity) {
		id.difficulty = d
	}
}

// WithPuzzle replaces the proof-of-work implementation
func WithPuzzle(p pow.Puzzle) Option {
	return func(id *Identity) {
		id.puzzle = p
	}
}

// Identity binds a public key to a proof-of-work derived fingerprint.
// An Identity is owned by a single goroutine; Solve mutates it in place.
type Identity struct {
	// PublicKey is the 33 byte compressed secp256k1 public key
	PublicKey []byte

	// Nonce is the proof-of-work nonce
	Nonce uint32

	// Proof is the Equihash solution, empty until solved
	Proof []byte

	// Fingerprint is Hash160(Proof)
	Fingerprint []byte

	difficulty pow.Difficulty
	puzzle     pow.Puzzle
}

// New builds an identity from its parts and computes the fingerprint
func New(publicKey []byte, nonce uint32, proof []byte, opts ...Option) *Identity {
	id := &Identity{
		PublicKey:  publicKey,
		Nonce:      nonce,
		Proof:      proof,
		difficulty: DefaultDifficulty,
		puzzle:     equihash.New(),
	}
	for _, opt := range opts {
		opt(id)
	}
	id.Fingerprint = Hash160(id.Proof)
	return id
}

// FromKey builds an unsolved identity for a private key
func FromKey(key *secp256k1.PrivateKey, opts ...Option) *Identity {
	return New(key.PubKey().SerializeCompressed(), 0, nil, opts...)
}

// FromContact rebuilds the identity a contact claims
func FromContact(c contact.Contact, opts ...Option) (*Identity, error) {
	pubkey, err := hex.DecodeString(c.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %v", ErrMalformedIdentity, err)
	}
	proof, err := hex.DecodeString(c.Proof)
	if err != nil {
		return nil, fmt.Errorf("%w: proof: %v", ErrMalformedIdentity, err)
	}
	return New(pubkey, c.Nonce, proof, opts...), nil
}

// Difficulty returns the parameters the identity is solved and checked with
func (id *Identity) Difficulty() pow.Difficulty {
	return id.difficulty
}

// Seed returns the puzzle seed Hash256(PublicKey)
func (id *Identity) Seed() []byte {
	return Hash256(id.PublicKey)
}

// Solve runs the proof-of-work on its own goroutine until a solution is
// found or ctx is done. The identity is only updated on success.
func (id *Identity) Solve(ctx context.Context) error {
	type result struct {
		solution pow.Solution
		err      error
	}

	seed := id.Seed()
	done := make(chan result, 1)
	go func() {
		s, err := id.puzzle.Solve(ctx, seed, id.difficulty)
		done <- result{solution: s, err: err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("solve identity: %w", r.err)
		}
		id.Nonce = r.solution.Nonce
		id.Proof = r.solution.Proof
		id.Fingerprint = Hash160(id.Proof)
		return nil
	}
}

// Validate re-verifies the proof-of-work. An invalid identity yields false
// with a nil error; errors are reserved for unusable parameters.
func (id *Identity) Validate(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if len(id.Proof) == 0 {
		return false, nil
	}
	if _, err := secp256k1.ParsePubKey(id.PublicKey); err != nil {
		return false, nil
	}
	if !bytes.Equal(id.Fingerprint, Hash160(id.Proof)) {
		return false, nil
	}
	return id.puzzle.Verify(id.Seed(), id.Proof, id.Nonce, id.difficulty)
}

// FingerprintHex returns the hex encoded fingerprint, the node id
func (id *Identity) FingerprintHex() string {
	return hex.EncodeToString(id.Fingerprint)
}

// Contact returns the contact advertising this identity at address
func (id *Identity) Contact(address string) contact.Contact {
	return contact.Contact{
		ID:        id.FingerprintHex(),
		Address:   address,
		PublicKey: hex.EncodeToString(id.PublicKey),
		Nonce:     id.Nonce,
		Proof:     hex.EncodeToString(id.Proof),
	}
}
