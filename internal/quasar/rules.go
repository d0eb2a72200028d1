package quasar

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rmacdonaldsmith/quasar-go/pkg/contact"
	"github.com/rmacdonaldsmith/quasar-go/pkg/transport"
)

// ack is the empty response of PUBLISH and UPDATE
var ack = []string{}

// ShouldRelayPublication reports whether a neighbour advertising f should get
// pub: the topic must appear at some level and none of the publishers may.
// A publisher in the neighbour's filter means the publication most likely
// already reached that neighbourhood.
func ShouldRelayPublication(pub *Publication, f *Filter) bool {
	if !f.Has(pub.Topic) {
		return false
	}
	return !f.HasAny(pub.Publishers)
}

// handlePublish validates an inbound publication, delivers it when
// subscribed and relays it onwards.
func (e *Engine) handlePublish(ctx context.Context, req *transport.Request) (any, error) {
	var pub Publication
	if err := req.Decode(&pub); err != nil {
		return nil, err
	}
	log := e.logger.With(zap.String("uuid", pub.UUID), zap.String("contact", req.Fingerprint))

	if _, err := hex.DecodeString(pub.Contents); err != nil {
		log.Warn("invalid publication contents")
		e.m.dropped.WithLabelValues(dropInvalidContents).Inc()
		return ack, nil
	}
	if e.cache.Count(pub.UUID) >= MaxRepublishCached {
		log.Warn("message previously routed")
		e.m.dropped.WithLabelValues(dropDuplicate).Inc()
		return ack, nil
	}
	if pub.TTL <= 0 || pub.TTL > MaxRelayHops {
		log.Warn("message includes invalid ttl", zap.Int("ttl", pub.TTL))
		e.m.dropped.WithLabelValues(dropInvalidTTL).Inc()
		return ack, nil
	}
	if err := verifyOrigin(ctx, &pub, e.idOpts...); err != nil {
		log.Warn("invalid publication origin", zap.Error(err))
		e.m.dropped.WithLabelValues(dropInvalidOrigin).Inc()
		return nil, errors.Join(transport.ErrAuthentication, err)
	}

	seen := e.cache.Admit(pub.UUID, MaxRepublishCached)
	if seen == 0 {
		log.Warn("message previously routed")
		e.m.dropped.WithLabelValues(dropDuplicate).Inc()
		return ack, nil
	}
	pub.Publishers = append(pub.Publishers, e.id)
	candidates := e.relayCandidates(pub.Publishers)

	if e.IsSubscribedTo(pub.Topic) {
		if seen == 1 {
			e.deliver(&pub)
		}
		if pub.TTL-1 == 0 {
			return ack, nil
		}
		e.spawnRelays(func(ctx context.Context) {
			var g errgroup.Group
			for _, c := range candidates {
				g.Go(func() error {
					return e.relay(ctx, pub, c, "subscribed")
				})
			}
			e.finishRelays(&g, pub.UUID)
		})
		return ack, nil
	}

	if pub.TTL-1 == 0 {
		e.m.dropped.WithLabelValues(dropExpired).Inc()
		return ack, nil
	}

	e.spawnRelays(func(ctx context.Context) {
		var g errgroup.Group
		for _, c := range candidates {
			g.Go(func() error {
				return e.relaySelectively(ctx, pub, c)
			})
		}
		e.finishRelays(&g, pub.UUID)
	})
	return ack, nil
}

// relaySelectively pulls the candidate's filter and relays to it when it is
// interested, otherwise to a random alternate contact
func (e *Engine) relaySelectively(ctx context.Context, pub Publication, c contact.Contact) error {
	f, err := e.PullFilterFrom(ctx, c)
	if err != nil {
		e.logger.Warn("failed to pull filter", zap.String("uuid", pub.UUID), zap.String("contact", c.ID), zap.Error(err))
		return fmt.Errorf("pull filter from %s: %w", c.ID, err)
	}

	if ShouldRelayPublication(&pub, f) {
		return e.relay(ctx, pub, c, "interested")
	}
	alt, ok := e.randomContact(c.ID)
	if !ok {
		e.logger.Debug("no alternate contact for relay", zap.String("uuid", pub.UUID))
		return nil
	}
	return e.relay(ctx, pub, alt, "random")
}

func (e *Engine) relay(ctx context.Context, pub Publication, c contact.Contact, decision string) error {
	_, err := e.tr.Send(ctx, transport.MethodPublish, pub.relayed(), c)
	e.m.relayed.WithLabelValues(decision, result(err)).Inc()
	if err != nil {
		e.logger.Warn("relay failed", zap.String("uuid", pub.UUID), zap.String("contact", c.ID), zap.Error(err))
		return fmt.Errorf("relay to %s: %w", c.ID, err)
	}
	return nil
}

// finishRelays waits for a relay fan-out. A plain Group never cancels
// sibling relays; every failure was already logged where it happened, so the
// first one only marks the fan-out as incomplete.
func (e *Engine) finishRelays(g *errgroup.Group, uuid string) {
	if err := g.Wait(); err != nil {
		e.logger.Debug("relay fan-out incomplete", zap.String("uuid", uuid), zap.Error(err))
	}
}

// spawnRelays runs fn after the inbound request returns. Relays use the
// engine context so Close can cancel them.
func (e *Engine) spawnRelays(fn func(ctx context.Context)) {
	e.relays.Add(1)
	go func() {
		defer e.relays.Done()
		fn(e.ctx)
	}()
}

func (e *Engine) deliver(pub *Publication) {
	e.mu.RLock()
	h := e.groups[pub.Topic]
	e.mu.RUnlock()
	if h == nil {
		return
	}
	h(pub.Contents, pub.Topic)
	e.m.delivered.Inc()
}

// relayCandidates returns up to Alpha of the K closest contacts, shuffled,
// skipping anyone who already relayed the publication
func (e *Engine) relayCandidates(publishers []string) []contact.Contact {
	skip := make(map[string]struct{}, len(publishers))
	for _, p := range publishers {
		skip[p] = struct{}{}
	}

	var out []contact.Contact
	for _, c := range e.dir.ClosestContactsTo(e.id, K, true) {
		if _, ok := skip[c.ID]; !ok {
			out = append(out, c)
		}
	}
	e.shuffle(out)
	if len(out) > Alpha {
		out = out[:Alpha]
	}
	return out
}

// handleSubscribe answers a filter pull with the local filter
func (e *Engine) handleSubscribe(context.Context, *transport.Request) (any, error) {
	return e.filter.HexArray(), nil
}

// handleUpdate merges a pushed filter into the local filter
func (e *Engine) handleUpdate(_ context.Context, req *transport.Request) (any, error) {
	var levels []string
	if err := json.Unmarshal(req.Params, &levels); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", transport.ErrMalformed, ErrInvalidFilter, err)
	}
	f, err := FilterFromHexArray(levels)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", transport.ErrMalformed, err)
	}
	if err := e.filter.Merge(f); err != nil {
		return nil, err
	}
	return ack, nil
}
