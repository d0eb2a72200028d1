package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rmacdonaldsmith/quasar-go/internal/identity"
	"github.com/rmacdonaldsmith/quasar-go/pkg/contact"
	"github.com/rmacdonaldsmith/quasar-go/pkg/transport"
)

var (
	// ErrInvalidSeed is returned when a seed answers with an identity that
	// fails proof-of-work validation
	ErrInvalidSeed = errors.New("seed identity is invalid")
	// ErrSeedMismatch is returned when a seed answers with a fingerprint
	// other than the one pinned in its contact URL
	ErrSeedMismatch = errors.New("seed fingerprint does not match")
)

// Prober learns a seed's identity by pinging it
type Prober struct {
	Transport       transport.Transport
	IdentityOptions []identity.Option
	Logger          *zap.Logger
}

// Probe sends PING to seed and validates the contact it answers with
func (p *Prober) Probe(ctx context.Context, seed contact.Contact) (contact.Contact, error) {
	raw, err := p.Transport.Send(ctx, transport.MethodPing, []string{}, seed)
	if err != nil {
		return contact.Contact{}, err
	}

	var c contact.Contact
	if err := json.Unmarshal(raw, &c); err != nil {
		return contact.Contact{}, fmt.Errorf("%w: %v", transport.ErrMalformed, err)
	}
	if seed.ID != "" && !strings.EqualFold(seed.ID, c.ID) {
		return contact.Contact{}, fmt.Errorf("%w: want %s, got %s", ErrSeedMismatch, seed.ID, c.ID)
	}

	id, err := identity.FromContact(c, p.IdentityOptions...)
	if err != nil {
		return contact.Contact{}, err
	}
	if id.FingerprintHex() != strings.ToLower(c.ID) {
		return contact.Contact{}, fmt.Errorf("%w: fingerprint does not match proof", ErrInvalidSeed)
	}
	ok, err := id.Validate(ctx)
	if err != nil {
		return contact.Contact{}, err
	}
	if !ok {
		return contact.Contact{}, ErrInvalidSeed
	}

	// the seed may advertise an address we cannot reach; keep the one we used
	c.Address = seed.Address
	c.ID = id.FingerprintHex()
	return c, nil
}

// Bootstrap probes every seed found by d concurrently. It returns the seeds
// that proved a valid identity; failures are joined into the error but never
// stop the other probes.
func (p *Prober) Bootstrap(ctx context.Context, d Discovery) ([]contact.Contact, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	seeds, findErr := d.FindPeers(ctx)
	if findErr != nil {
		logger.Warn("some seeds could not be parsed", zap.Error(findErr))
	}

	var (
		g      errgroup.Group
		mu     sync.Mutex
		joined []contact.Contact
		errs   []error
	)
	// Every probe failure is joined into the result; Wait alone would
	// report only the first one, so tasks record their own and return nil.
	for _, seed := range seeds {
		g.Go(func() error {
			c, err := p.Probe(ctx, seed)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("seed probe failed", zap.String("seed", seed.String()), zap.Error(err))
				errs = append(errs, fmt.Errorf("%s: %w", seed, err))
				return nil
			}
			logger.Info("seed joined", zap.String("contact", c.ID), zap.String("address", c.Address))
			joined = append(joined, c)
			return nil
		})
	}
	_ = g.Wait()

	if findErr != nil {
		errs = append(errs, findErr)
	}
	return joined, errors.Join(errs...)
}
