package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const (
	// SignatureSize is the width of an R || S signature
	SignatureSize = 64

	compactMagic = 27 + 4
)

var (
	// ErrInvalidKey is returned when private key material cannot be parsed
	ErrInvalidKey = errors.New("invalid secp256k1 private key")
	// ErrInvalidSignature is returned for malformed or non-canonical signatures
	ErrInvalidSignature = errors.New("invalid signature")
)

// GenerateKey creates a new random secp256k1 private key
func GenerateKey() (*secp256k1.PrivateKey, error) {
	return secp256k1.GeneratePrivateKey()
}

// ParseKey decodes a hex encoded 32 byte private key
func ParseKey(hexkey string) (*secp256k1.PrivateKey, error) {
	b, err := hex.DecodeString(strings.TrimSpace(hexkey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(b) != secp256k1.PrivKeyBytesLen {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidKey, secp256k1.PrivKeyBytesLen, len(b))
	}
	return secp256k1.PrivKeyFromBytes(b), nil
}

// LoadKey reads a hex encoded private key from path
func LoadKey(path string) (*secp256k1.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseKey(string(data))
}

// SaveKey writes key to path hex encoded with owner-only permissions
func SaveKey(path string, key *secp256k1.PrivateKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(key.Serialize())), 0o600)
}

// LoadOrCreateKey loads the key at path, generating and saving a new one if
// the file does not exist. The boolean reports whether a key was created.
func LoadOrCreateKey(path string) (*secp256k1.PrivateKey, bool, error) {
	key, err := LoadKey(path)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("load key %s: %w", path, err)
	}

	key, err = GenerateKey()
	if err != nil {
		return nil, false, err
	}
	if err := SaveKey(path, key); err != nil {
		return nil, false, fmt.Errorf("save key %s: %w", path, err)
	}
	return key, true, nil
}

// Sign produces a low-S R || S signature over hash and the public key
// recovery id.
func Sign(key *secp256k1.PrivateKey, hash []byte) ([]byte, byte) {
	compact := ecdsa.SignCompact(key, hash, true)
	return compact[1:], compact[0] - compactMagic
}

// VerifySignature checks a R || S signature over hash against the
// compressed public key. High-S signatures are rejected. When recovery is
// supplied it must recover the same key.
func VerifySignature(pubkey, hash, sig []byte, recovery byte) error {
	if len(sig) != SignatureSize {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidSignature, SignatureSize, len(sig))
	}
	pub, err := secp256k1.ParsePubKey(pubkey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var r, s secp256k1.ModNScalar
	if r.SetByteSlice(sig[:32]) || r.IsZero() {
		return fmt.Errorf("%w: bad r", ErrInvalidSignature)
	}
	if s.SetByteSlice(sig[32:]) || s.IsZero() {
		return fmt.Errorf("%w: bad s", ErrInvalidSignature)
	}
	if s.IsOverHalfOrder() {
		return fmt.Errorf("%w: high s", ErrInvalidSignature)
	}
	if !ecdsa.NewSignature(&r, &s).Verify(hash, pub) {
		return ErrInvalidSignature
	}

	if recovery > 3 {
		return fmt.Errorf("%w: bad recovery id %d", ErrInvalidSignature, recovery)
	}
	compact := make([]byte, 0, SignatureSize+1)
	compact = append(compact, compactMagic+recovery)
	compact = append(compact, sig...)
	recovered, _, err := ecdsa.RecoverCompact(compact, hash)
	if err != nil || !recovered.IsEqual(pub) {
		return fmt.Errorf("%w: recovery mismatch", ErrInvalidSignature)
	}
	return nil
}
