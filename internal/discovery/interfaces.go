package discovery

import (
	"context"

	"github.com/rmacdonaldsmith/quasar-go/pkg/contact"
)

// Discovery defines the interface for seed discovery mechanisms
type Discovery interface {
	// FindPeers returns candidate contacts. Only Address is guaranteed to
	// be set; ID is set when the seed pinned a fingerprint.
	FindPeers(ctx context.Context) ([]contact.Contact, error)
}
