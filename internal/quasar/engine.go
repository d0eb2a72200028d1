package quasar

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rmacdonaldsmith/quasar-go/internal/identity"
	"github.com/rmacdonaldsmith/quasar-go/pkg/contact"
	"github.com/rmacdonaldsmith/quasar-go/pkg/transport"
)

// Handler receives a delivered publication: hex encoded contents and topic
type Handler func(contents, topic string)

// Registrar is the inbound side the engine installs its handlers on
type Registrar interface {
	Handle(m transport.Method, h transport.Handler)
}

// Config holds the collaborators and tunables of an Engine
type Config struct {
	// Identity is the local solved identity
	Identity *identity.Identity

	// PrivateKey signs publication origins
	PrivateKey *secp256k1.PrivateKey

	Directory contact.Directory
	Transport transport.Transport

	// IdentityOptions configure how origin identities are verified
	IdentityOptions []identity.Option

	CacheSize        int
	SoftStateTimeout time.Duration

	// Registerer receives the engine metrics; a private registry is used
	// when nil
	Registerer prometheus.Registerer

	Logger *zap.Logger
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch {
	case c.Identity == nil:
		return errors.New("identity cannot be nil")
	case len(c.Identity.Proof) == 0:
		return errors.New("identity must be solved")
	case c.PrivateKey == nil:
		return errors.New("private key cannot be nil")
	case c.Directory == nil:
		return errors.New("directory cannot be nil")
	case c.Transport == nil:
		return errors.New("transport cannot be nil")
	}
	return nil
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.CacheSize <= 0 {
		c.CacheSize = LRUCacheSize
	}
	if c.SoftStateTimeout <= 0 {
		c.SoftStateTimeout = SoftStateTimeout
	}
	if c.Registerer == nil {
		c.Registerer = prometheus.NewRegistry()
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Option customises an Engine
type Option func(*Engine)

// WithRand makes relay shuffling and fallback selection use r
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		e.rand = r
	}
}

// PublishOption customises a single Publish call
type PublishOption func(*publishOptions)

type publishOptions struct {
	routingKey string
}

// WithRoutingKey publishes to the contacts closest to key instead of the
// local fingerprint. The topic is unchanged.
func WithRoutingKey(key string) PublishOption {
	return func(o *publishOptions) {
		o.routingKey = key
	}
}

// Engine is a node's gossip state and protocol logic. All overlay state
// (cache, filter, subscriptions) is owned here.
type Engine struct {
	self   *identity.Identity
	id     string
	key    *secp256k1.PrivateKey
	dir    contact.Directory
	tr     transport.Transport
	idOpts []identity.Option
	logger *zap.Logger
	m      *metrics

	cache  *publicationCache
	filter *Filter

	mu     sync.RWMutex
	groups map[string]Handler

	pullLimiter *rate.Limiter
	pushLimiter *rate.Limiter

	randMu sync.Mutex
	rand   *rand.Rand

	ctx    context.Context
	cancel context.CancelFunc
	relays sync.WaitGroup
}

// New creates an engine. Its own fingerprint is added to filter level 0.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()

	cache, err := newPublicationCache(cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	m, err := newMetrics(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		self:        cfg.Identity,
		id:          cfg.Identity.FingerprintHex(),
		key:         cfg.PrivateKey,
		dir:         cfg.Directory,
		tr:          cfg.Transport,
		idOpts:      cfg.IdentityOptions,
		logger:      cfg.Logger.With(zap.String("node", cfg.Identity.FingerprintHex())),
		m:           m,
		cache:       cache,
		filter:      NewFilter(),
		groups:      make(map[string]Handler),
		pullLimiter: rate.NewLimiter(rate.Every(cfg.SoftStateTimeout), 1),
		pushLimiter: rate.NewLimiter(rate.Every(cfg.SoftStateTimeout), 1),
		rand:        rand.New(rand.NewSource(time.Now().UnixNano())),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.filter.Add(0, e.id)
	return e, nil
}

// ID returns the local fingerprint, the default topic
func (e *Engine) ID() string {
	return e.id
}

// Register installs the PUBLISH, SUBSCRIBE and UPDATE handlers
func (e *Engine) Register(r Registrar) {
	r.Handle(transport.MethodPublish, e.handlePublish)
	r.Handle(transport.MethodSubscribe, e.handleSubscribe)
	r.Handle(transport.MethodUpdate, e.handleUpdate)
}

// Filter returns a snapshot of the local topic filter
func (e *Engine) Filter() *Filter {
	return e.filter.Clone()
}

// Subscribe adds topics to filter level 0, registers handler for each (the
// last registration for a topic wins), then refreshes the neighbourhood
// view with a filter pull followed by a push. Exchange failures are logged.
func (e *Engine) Subscribe(ctx context.Context, topics []string, handler Handler) error {
	if len(topics) == 0 {
		return ErrNoTopics
	}
	if handler == nil {
		return ErrNilHandler
	}

	e.mu.Lock()
	for _, topic := range topics {
		e.filter.Add(0, topic)
		e.groups[topic] = handler
	}
	e.m.subscriptions.Set(float64(len(e.groups)))
	e.mu.Unlock()

	if err := e.PullFilters(ctx); err != nil {
		e.logger.Warn("filter pull incomplete", zap.Error(err))
	}
	if err := e.PushFilters(ctx); err != nil {
		e.logger.Warn("filter push incomplete", zap.Error(err))
	}
	return nil
}

// Topics returns the subscribed topics
func (e *Engine) Topics() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	topics := make([]string, 0, len(e.groups))
	for t := range e.groups {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// IsSubscribedTo reports whether a local handler is registered for topic
func (e *Engine) IsSubscribedTo(topic string) bool {
	e.mu.RLock()
	_, ok := e.groups[topic]
	e.mu.RUnlock()
	return ok && e.filter.HasAt(0, topic)
}

// HasNeighborSubscribedTo reports whether topic appears beyond level 0
func (e *Engine) HasNeighborSubscribedTo(topic string) bool {
	for level := 1; level < e.filter.Depth(); level++ {
		if e.filter.HasAt(level, topic) {
			return true
		}
	}
	return false
}

// Publish signs contents and hands the publication to the Alpha contacts
// closest to the routing key, moving down the candidate list until Alpha
// accepted it or no candidates remain. It returns the accepting contacts.
func (e *Engine) Publish(ctx context.Context, contents []byte, opts ...PublishOption) ([]contact.Contact, error) {
	if contents == nil {
		return nil, ErrInvalidContents
	}
	o := publishOptions{routingKey: e.id}
	for _, opt := range opts {
		opt(&o)
	}

	id := uuid.NewString()
	pub := Publication{
		UUID:     id,
		Topic:    e.id,
		Contents: hex.EncodeToString(contents),
		Origin:   signOrigin(e.key, e.self, id, contents),
		TTL:      MaxRelayHops,
	}
	candidates := e.dir.ClosestContactsTo(o.routingKey, e.dir.Size(), false)

	var (
		mu         sync.Mutex
		deliveries []contact.Contact
		lastErr    error
	)
	for len(deliveries) < Alpha && len(candidates) > 0 {
		n := min(Alpha-len(deliveries), len(candidates))
		batch := candidates[:n]
		candidates = candidates[n:]

		// A plain Group never cancels the other deliveries of the batch
		var g errgroup.Group
		for _, c := range batch {
			g.Go(func() error {
				msg := pub
				msg.Publishers = []string{e.id}
				if _, err := e.tr.Send(ctx, transport.MethodPublish, msg, c); err != nil {
					e.logger.Warn("publish delivery failed", zap.String("uuid", id), zap.String("contact", c.ID), zap.Error(err))
					return fmt.Errorf("%s: %w", c.ID, err)
				}
				mu.Lock()
				deliveries = append(deliveries, c)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			lastErr = err
		}
	}

	if len(deliveries) == 0 {
		e.m.publishFailures.Inc()
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrPublishExhausted, lastErr)
		}
		return nil, ErrPublishExhausted
	}
	e.m.published.Inc()
	e.logger.Debug("published", zap.String("uuid", id), zap.Int("deliveries", len(deliveries)))
	return deliveries, nil
}

// neighbors returns the Alpha contacts closest to the local node
func (e *Engine) neighbors() []contact.Contact {
	return e.dir.ClosestContactsTo(e.id, Alpha, true)
}

// PullFilters merges the filters of the Alpha closest neighbours into the
// local filter, at most once per soft state timeout. Failures against one
// neighbour do not stop the others; they are joined into the result.
func (e *Engine) PullFilters(ctx context.Context) error {
	if !e.pullLimiter.Allow() {
		return nil
	}
	return e.forEachNeighbor(ctx, func(ctx context.Context, c contact.Contact) error {
		f, err := e.PullFilterFrom(ctx, c)
		if err != nil {
			e.logger.Warn("failed to pull filter", zap.String("contact", c.ID), zap.Error(err))
			return err
		}
		return e.filter.Merge(f)
	})
}

// PushFilters sends the local filter to the Alpha closest neighbours, at
// most once per soft state timeout.
func (e *Engine) PushFilters(ctx context.Context) error {
	if !e.pushLimiter.Allow() {
		return nil
	}
	return e.forEachNeighbor(ctx, func(ctx context.Context, c contact.Contact) error {
		if err := e.PushFilterTo(ctx, c); err != nil {
			e.logger.Warn("failed to push filter", zap.String("contact", c.ID), zap.Error(err))
			return err
		}
		return nil
	})
}

// forEachNeighbor runs fn against every neighbour concurrently and joins
// all failures. Wait reports only the first error, so each task records its
// own and returns nil.
func (e *Engine) forEachNeighbor(ctx context.Context, fn func(context.Context, contact.Contact) error) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, c := range e.neighbors() {
		g.Go(func() error {
			if err := fn(ctx, c); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", c.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// PullFilterFrom requests the topic filter of c
func (e *Engine) PullFilterFrom(ctx context.Context, c contact.Contact) (*Filter, error) {
	raw, err := e.tr.Send(ctx, transport.MethodSubscribe, []string{}, c)
	e.m.exchanges.WithLabelValues("pull", result(err)).Inc()
	if err != nil {
		return nil, err
	}

	var levels []string
	if err := json.Unmarshal(raw, &levels); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	return FilterFromHexArray(levels)
}

// PushFilterTo sends the local topic filter to c
func (e *Engine) PushFilterTo(ctx context.Context, c contact.Contact) error {
	_, err := e.tr.Send(ctx, transport.MethodUpdate, e.filter.HexArray(), c)
	e.m.exchanges.WithLabelValues("push", result(err)).Inc()
	return err
}

// Wait blocks until relays spawned by inbound publications finish
func (e *Engine) Wait() {
	e.relays.Wait()
}

// Close cancels in-flight relays and waits for them
func (e *Engine) Close() error {
	e.cancel()
	e.relays.Wait()
	return nil
}

func (e *Engine) shuffle(contacts []contact.Contact) {
	e.randMu.Lock()
	defer e.randMu.Unlock()
	e.rand.Shuffle(len(contacts), func(i, j int) {
		contacts[i], contacts[j] = contacts[j], contacts[i]
	})
}

// randomContact picks a uniformly random known contact other than exclude
func (e *Engine) randomContact(exclude string) (contact.Contact, bool) {
	all := e.dir.ClosestContactsTo(e.id, 0, true)
	pool := all[:0]
	for _, c := range all {
		if c.ID != exclude {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		return contact.Contact{}, false
	}

	e.randMu.Lock()
	defer e.randMu.Unlock()
	return pool[e.rand.Intn(len(pool))], true
}
