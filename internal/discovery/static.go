package discovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/rmacdonaldsmith/quasar-go/pkg/contact"
)

// StaticDiscovery implements Discovery using a static list of seeds given as
// contact URLs or bare "host:port" addresses
type StaticDiscovery struct {
	seeds []string
}

// NewStaticDiscovery creates a new static discovery service with the given seeds
func NewStaticDiscovery(seeds []string) *StaticDiscovery {
	return &StaticDiscovery{seeds: seeds}
}

// FindPeers parses the seed list. Unparseable seeds are skipped and reported
// in the joined error alongside the seeds that did parse.
func (s *StaticDiscovery) FindPeers(ctx context.Context) ([]contact.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		peers []contact.Contact
		errs  []error
	)
	for _, seed := range s.seeds {
		c, err := contact.ParseURL(seed)
		if err != nil {
			errs = append(errs, fmt.Errorf("seed %q: %w", seed, err))
			continue
		}
		peers = append(peers, c)
	}
	return peers, errors.Join(errs...)
}

var _ Discovery = (*StaticDiscovery)(nil)
