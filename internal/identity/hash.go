package identity

import (
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // Hash160 is defined over RIPEMD-160
)

// Hash256 returns SHA-256(data)
func Hash256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Hash160 returns RIPEMD-160(SHA-256(data))
func Hash160(data []byte) []byte {
	h := ripemd160.New()
	h.Write(Hash256(data))
	return h.Sum(nil)
}
