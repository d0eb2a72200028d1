package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Store persists the solved nonce and proof next to the private key so the
// proof-of-work only runs on first start.
type Store struct {
	NoncePath string
	ProofPath string
}

// Load reads a previously saved solution. ok is false when nothing was
// saved yet.
func (s Store) Load() (nonce uint32, proof []byte, ok bool, err error) {
	rawNonce, err := os.ReadFile(s.NoncePath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, err
	}
	rawProof, err := os.ReadFile(s.ProofPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, err
	}

	n, err := strconv.ParseUint(strings.TrimSpace(string(rawNonce)), 10, 32)
	if err != nil {
		return 0, nil, false, fmt.Errorf("%w: nonce: %v", ErrMalformedIdentity, err)
	}
	proof, err = hex.DecodeString(strings.TrimSpace(string(rawProof)))
	if err != nil {
		return 0, nil, false, fmt.Errorf("%w: proof: %v", ErrMalformedIdentity, err)
	}
	return uint32(n), proof, true, nil
}

// Save writes the identity's nonce and proof
func (s Store) Save(id *Identity) error {
	for _, p := range []string{s.NoncePath, s.ProofPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			return err
		}
	}
	if err := os.WriteFile(s.NoncePath, []byte(strconv.FormatUint(uint64(id.Nonce), 10)), 0o600); err != nil {
		return err
	}
	return os.WriteFile(s.ProofPath, []byte(hex.EncodeToString(id.Proof)), 0o600)
}
