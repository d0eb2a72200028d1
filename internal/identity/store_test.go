package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	dir := t.TempDir()
	store := Store{
		NoncePath: filepath.Join(dir, "identity.nonce"),
		ProofPath: filepath.Join(dir, "identity.proof"),
	}

	_, _, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	id := New([]byte{2, 3}, 42, []byte{0xde, 0xad})
	require.NoError(t, store.Save(id))

	nonce, proof, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(42), nonce)
	assert.Equal(t, []byte{0xde, 0xad}, proof)

	require.NoError(t, os.WriteFile(store.NoncePath, []byte("forty-two"), 0o600))
	_, _, _, err = store.Load()
	assert.ErrorIs(t, err, ErrMalformedIdentity)
}
