package identity

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/quasar-go/pkg/contact"
	"github.com/rmacdonaldsmith/quasar-go/pkg/pow"
)

func solvedIdentity(t *testing.T) *Identity {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	id := FromKey(key, WithDifficulty(TestnetDifficulty))
	require.NoError(t, id.Solve(context.Background()))
	return id
}

func TestHashes(t *testing.T) {
	assert.Equal(t, "b472a266d0bd89c13706a4132ccfb16f7c3b9fcb", hex.EncodeToString(Hash160(nil)))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		hex.EncodeToString(Hash256([]byte("abc"))))
}

func TestSolveAndValidate(t *testing.T) {
	id := solvedIdentity(t)

	assert.NotEmpty(t, id.Proof)
	assert.Equal(t, Hash160(id.Proof), id.Fingerprint)
	assert.Len(t, id.FingerprintHex(), 2*contact.NodeIDSize)

	ok, err := id.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValidateRejects(t *testing.T) {
	id := solvedIdentity(t)
	ctx := context.Background()

	t.Run("unsolved", func(t *testing.T) {
		key, err := GenerateKey()
		require.NoError(t, err)
		ok, err := FromKey(key, WithDifficulty(TestnetDifficulty)).Validate(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("wrong nonce", func(t *testing.T) {
		forged := New(id.PublicKey, id.Nonce+1, id.Proof, WithDifficulty(TestnetDifficulty))
		ok, err := forged.Validate(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("borrowed proof", func(t *testing.T) {
		key, err := GenerateKey()
		require.NoError(t, err)
		forged := New(key.PubKey().SerializeCompressed(), id.Nonce, id.Proof, WithDifficulty(TestnetDifficulty))
		ok, err := forged.Validate(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("fingerprint not derived from proof", func(t *testing.T) {
		forged := New(id.PublicKey, id.Nonce, id.Proof, WithDifficulty(TestnetDifficulty))
		forged.Fingerprint = make([]byte, contact.NodeIDSize)
		ok, err := forged.Validate(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("garbage public key", func(t *testing.T) {
		forged := New([]byte{1, 2, 3}, id.Nonce, id.Proof, WithDifficulty(TestnetDifficulty))
		ok, err := forged.Validate(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("stronger difficulty", func(t *testing.T) {
		strict := New(id.PublicKey, id.Nonce, id.Proof)
		ok, err := strict.Validate(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unusable difficulty", func(t *testing.T) {
		bad := New(id.PublicKey, id.Nonce, id.Proof, WithDifficulty(pow.Difficulty{N: 7, K: 3}))
		_, err := bad.Validate(ctx)
		assert.ErrorIs(t, err, pow.ErrInvalidDifficulty)
	})
}

type blockingPuzzle struct{}

func (blockingPuzzle) Solve(ctx context.Context, _ []byte, _ pow.Difficulty) (pow.Solution, error) {
	<-ctx.Done()
	return pow.Solution{Nonce: 7, Proof: []byte{1}}, ctx.Err()
}

func (blockingPuzzle) Verify(_, _ []byte, _ uint32, _ pow.Difficulty) (bool, error) {
	return false, nil
}

func TestSolveCancelledLeavesIdentityUntouched(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	id := FromKey(key, WithPuzzle(blockingPuzzle{}))
	before := append([]byte(nil), id.Fingerprint...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = id.Solve(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, id.Nonce)
	assert.Empty(t, id.Proof)
	assert.Equal(t, before, id.Fingerprint)
}

func TestContactRoundTrip(t *testing.T) {
	id := solvedIdentity(t)

	c := id.Contact("127.0.0.1:4000")
	assert.Equal(t, id.FingerprintHex(), c.ID)
	assert.Equal(t, "127.0.0.1:4000", c.Address)

	rebuilt, err := FromContact(c, WithDifficulty(TestnetDifficulty))
	require.NoError(t, err)
	assert.Equal(t, id.Fingerprint, rebuilt.Fingerprint)

	ok, err := rebuilt.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	c.Proof = "zz"
	_, err = FromContact(c)
	assert.ErrorIs(t, err, ErrMalformedIdentity)
}
