package contact

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// URLScheme is the scheme used by contact URLs
const URLScheme = "quasar"

var (
	// ErrInvalidURL is returned when a contact URL cannot be parsed
	ErrInvalidURL = errors.New("invalid contact url")
	// ErrInvalidNodeID is returned when a node id is not a 20 byte hex string
	ErrInvalidNodeID = errors.New("node id must be a 40 character hex string")
)

// NodeIDSize is the width in bytes of a node id (a Hash160 fingerprint)
const NodeIDSize = 20

// Contact is a peer as seen by the overlay: where to reach it and the
// identity material it claims.
type Contact struct {
	// ID is the hex encoded fingerprint of the peer
	ID string `json:"id"`

	// Address is the peer's "host:port" transport address
	Address string `json:"address"`

	// PublicKey is the hex encoded compressed secp256k1 public key
	PublicKey string `json:"pubkey"`

	// Nonce is the proof-of-work nonce
	Nonce uint32 `json:"nonce"`

	// Proof is the hex encoded proof-of-work solution
	Proof string `json:"proof"`
}

// IsZero reports whether the contact carries no identity at all
func (c Contact) IsZero() bool {
	return c.ID == "" && c.Address == "" && c.PublicKey == ""
}

// URL returns the quasar://<fingerprint>@<address> form of the contact
func (c Contact) URL() string {
	return fmt.Sprintf("%s://%s@%s", URLScheme, c.ID, c.Address)
}

func (c Contact) String() string {
	if c.ID == "" {
		return c.Address
	}
	return c.ID + "@" + c.Address
}

// ParseURL parses a contact URL or a bare "host:port" seed. The returned
// contact only carries the id (if present) and address; the identity triple
// is learned by pinging the peer.
func ParseURL(raw string) (Contact, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Contact{}, ErrInvalidURL
	}

	if !strings.Contains(raw, "://") {
		if _, _, err := net.SplitHostPort(raw); err != nil {
			return Contact{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
		return Contact{Address: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Contact{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != URLScheme {
		return Contact{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if _, _, err := net.SplitHostPort(u.Host); err != nil {
		return Contact{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	c := Contact{Address: u.Host}
	if u.User != nil {
		id := u.User.Username()
		if err := ValidateNodeID(id); err != nil {
			return Contact{}, err
		}
		c.ID = strings.ToLower(id)
	}
	return c, nil
}

// ValidateNodeID checks that id is a hex encoded 20 byte fingerprint
func ValidateNodeID(id string) error {
	raw, err := hex.DecodeString(id)
	if err != nil || len(raw) != NodeIDSize {
		return ErrInvalidNodeID
	}
	return nil
}
