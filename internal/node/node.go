package node

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rmacdonaldsmith/quasar-go/internal/directory"
	"github.com/rmacdonaldsmith/quasar-go/internal/discovery"
	"github.com/rmacdonaldsmith/quasar-go/internal/eclipse"
	"github.com/rmacdonaldsmith/quasar-go/internal/quasar"
	"github.com/rmacdonaldsmith/quasar-go/internal/routingtable"
	itransport "github.com/rmacdonaldsmith/quasar-go/internal/transport"
	"github.com/rmacdonaldsmith/quasar-go/pkg/contact"
	nodepkg "github.com/rmacdonaldsmith/quasar-go/pkg/node"
	routingtablepkg "github.com/rmacdonaldsmith/quasar-go/pkg/routingtable"
	"github.com/rmacdonaldsmith/quasar-go/pkg/transport"
)

var (
	// ErrClosed is returned by every operation on a closed node
	ErrClosed = errors.New("node is closed")
	// ErrNotStarted is returned when publishing before Start
	ErrNotStarted = errors.New("node is not started")
	// ErrNilClient is returned when an operation gets no client
	ErrNilClient = errors.New("client cannot be nil")
	// ErrUnauthenticated is returned for clients that did not authenticate
	ErrUnauthenticated = errors.New("client is not authenticated")
	// ErrInvalidClientID is returned for an empty client id
	ErrInvalidClientID = errors.New("client id cannot be empty")
	// ErrInvalidTopic is returned for topics that are neither a node id nor
	// the wildcard
	ErrInvalidTopic = errors.New("topic must be a node id or " + routingtablepkg.Wildcard)
	// ErrSubscriptionNotFound is returned when unsubscribing an unknown id
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// listener is implemented by transports that can open their socket before
// Bind so ":0" addresses resolve before the local contact is built
type listener interface {
	Listen(ctx context.Context) (string, error)
}

// Node implements nodepkg.Node. It owns the peer directory, transport and
// gossip engine, and fans gossip deliveries out to local clients through a
// routing table.
type Node struct {
	mu     sync.RWMutex
	config *Config
	logger *zap.Logger

	directory    *directory.Directory
	transport    transport.Transport
	router       *itransport.Router
	engine       *quasar.Engine
	routingTable *routingtable.InMemoryRoutingTable

	self    contact.Contact
	bound   bool
	started bool
	closed  bool

	clients       map[string]*LocalClient
	subscriptions map[string]nodepkg.ClientSubscription

	published atomic.Int64
	delivered atomic.Int64
}

// NewNode creates a node from config. Nothing touches the network until
// Start is called.
func NewNode(config *Config) (*Node, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := config.Identity.FingerprintHex()
	logger = logger.With(zap.String("node", id))

	tr := config.Transport
	if tr == nil {
		tc := config.TransportConfig
		if tc == nil {
			tc = &itransport.Config{ListenAddress: config.ListenAddress}
		}
		if tc.Logger == nil {
			tc.Logger = logger
		}
		g, err := itransport.NewGRPCTransport(tc)
		if err != nil {
			return nil, fmt.Errorf("failed to create transport: %w", err)
		}
		tr = g
	}

	dir := directory.New(directory.Config{Self: id, Logger: logger})

	engine, err := quasar.New(quasar.Config{
		Identity:        config.Identity,
		PrivateKey:      config.PrivateKey,
		Directory:       dir,
		Transport:       tr,
		IdentityOptions: config.IdentityOptions(),
		Registerer:      config.Registerer,
		Logger:          logger,
	}, config.EngineOptions...)
	if err != nil {
		_ = tr.Close()
		return nil, fmt.Errorf("failed to create gossip engine: %w", err)
	}

	n := &Node{
		config:        config,
		logger:        logger,
		directory:     dir,
		transport:     tr,
		engine:        engine,
		routingTable:  routingtable.NewInMemoryRoutingTable(),
		clients:       make(map[string]*LocalClient),
		subscriptions: make(map[string]nodepkg.ClientSubscription),
	}

	n.router = itransport.NewRouter(logger)
	n.router.Use(eclipse.Middleware(logger, config.IdentityOptions()...), n.rememberSender)
	n.router.Handle(transport.MethodPing, n.handlePing)
	engine.Register(n.router)
	return n, nil
}

// rememberSender adds every admitted sender to the directory under the
// fingerprint the admission middleware proved
func (n *Node) rememberSender(_ context.Context, req *transport.Request) error {
	sender := req.Sender
	sender.ID = req.Fingerprint
	n.directory.Add(sender)
	return nil
}

// handlePing answers with the local contact
func (n *Node) handlePing(context.Context, *transport.Request) (any, error) {
	return n.GetContact(), nil
}

// Start binds the transport on first call, joins the configured seeds and
// exchanges filters with the resulting neighbourhood. Seed failures are
// logged; a node without reachable seeds still starts.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return ErrClosed
	}
	if n.started {
		n.mu.Unlock()
		return nil
	}
	if !n.bound {
		if err := n.bind(ctx); err != nil {
			n.mu.Unlock()
			return err
		}
	}
	n.started = true
	n.mu.Unlock()

	n.join(ctx)
	n.logger.Info("node started",
		zap.String("contact", n.GetContact().URL()),
		zap.Int("peers", n.directory.Size()))
	return nil
}

// bind must be called with n.mu held
func (n *Node) bind(ctx context.Context) error {
	address := n.config.AdvertiseAddress
	if l, ok := n.transport.(listener); ok {
		listening, err := l.Listen(ctx)
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
		if address == "" {
			address = listening
		}
	}
	if address == "" {
		address = n.config.ListenAddress
	}

	n.self = n.config.Identity.Contact(address)
	if err := n.transport.Bind(ctx, n.self, n.router); err != nil {
		return fmt.Errorf("failed to bind transport: %w", err)
	}
	n.bound = true
	return nil
}

func (n *Node) join(ctx context.Context) {
	if len(n.config.Seeds) > 0 {
		prober := &discovery.Prober{
			Transport:       n.transport,
			IdentityOptions: n.config.IdentityOptions(),
			Logger:          n.logger,
		}
		joined, err := prober.Bootstrap(ctx, discovery.NewStaticDiscovery(n.config.Seeds))
		if err != nil {
			n.logger.Warn("bootstrap incomplete", zap.Int("joined", len(joined)), zap.Error(err))
		}
		for _, c := range joined {
			n.directory.Add(c)
		}
	}

	if err := n.engine.PullFilters(ctx); err != nil {
		n.logger.Warn("initial filter pull incomplete", zap.Error(err))
	}
	if err := n.engine.PushFilters(ctx); err != nil {
		n.logger.Warn("initial filter push incomplete", zap.Error(err))
	}
}

// AddContact inserts a peer into the directory directly
func (n *Node) AddContact(c contact.Contact) bool {
	return n.directory.Add(c)
}

// Stop stops accepting publications from local clients. The transport stays
// bound so peers keep a route through this node until Close.
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started {
		return nil
	}
	n.started = false
	n.logger.Info("node stopped")
	return nil
}

// Close shuts down the engine, transport and routing table
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.started = false
	n.closed = true

	var errs []error
	if err := n.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close engine: %w", err))
	}
	if err := n.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close transport: %w", err))
	}
	if err := n.routingTable.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close routing table: %w", err))
	}
	return errors.Join(errs...)
}

// AuthenticateClient returns the client for clientID, creating it on first use
func (n *Node) AuthenticateClient(ctx context.Context, clientID string) (nodepkg.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if clientID == "" {
		return nil, ErrInvalidClientID
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrClosed
	}
	if c, ok := n.clients[clientID]; ok {
		return c, nil
	}
	c := NewLocalClient(clientID)
	n.clients[clientID] = c
	n.logger.Debug("client authenticated", zap.String("client", clientID))
	return c, nil
}

func checkClient(client nodepkg.Client) error {
	if client == nil {
		return ErrNilClient
	}
	if !client.IsAuthenticated() {
		return ErrUnauthenticated
	}
	return nil
}

// Publish gossips contents under the node's own topic
func (n *Node) Publish(ctx context.Context, client nodepkg.Client, contents []byte) (nodepkg.PublishResult, error) {
	if err := checkClient(client); err != nil {
		return nodepkg.PublishResult{}, err
	}

	n.mu.RLock()
	closed, started := n.closed, n.started
	n.mu.RUnlock()
	if closed {
		return nodepkg.PublishResult{}, ErrClosed
	}
	if !started {
		return nodepkg.PublishResult{}, ErrNotStarted
	}

	accepted, err := n.engine.Publish(ctx, contents)
	if err != nil {
		return nodepkg.PublishResult{}, err
	}
	n.published.Add(1)
	n.logger.Debug("client published",
		zap.String("client", client.ID()),
		zap.Int("accepted", len(accepted)))
	return nodepkg.PublishResult{
		Topic:       n.engine.ID(),
		Accepted:    accepted,
		PublishedAt: time.Now(),
	}, nil
}

func normalizeTopic(topic string) (string, error) {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == routingtablepkg.Wildcard {
		return topic, nil
	}
	if err := contact.ValidateNodeID(topic); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTopic, err)
	}
	return topic, nil
}

// Subscribe routes deliveries for topic to client. The first local
// subscription to a topic subscribes the gossip engine, which advertises the
// topic to the neighbourhood. The wildcard only matches topics some client
// subscribed to explicitly.
func (n *Node) Subscribe(ctx context.Context, client nodepkg.Client, topic string) (nodepkg.ClientSubscription, error) {
	if err := checkClient(client); err != nil {
		return nodepkg.ClientSubscription{}, err
	}
	topic, err := normalizeTopic(topic)
	if err != nil {
		return nodepkg.ClientSubscription{}, err
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nodepkg.ClientSubscription{}, ErrClosed
	}
	if err := n.routingTable.Subscribe(ctx, topic, client); err != nil {
		n.mu.Unlock()
		return nodepkg.ClientSubscription{}, err
	}
	sub := nodepkg.ClientSubscription{
		ID:        uuid.NewString(),
		Topic:     topic,
		ClientID:  client.ID(),
		CreatedAt: time.Now(),
	}
	n.subscriptions[sub.ID] = sub
	n.mu.Unlock()

	if topic != routingtablepkg.Wildcard && !n.engine.IsSubscribedTo(topic) {
		if err := n.engine.Subscribe(ctx, []string{topic}, n.fanOut); err != nil {
			return nodepkg.ClientSubscription{}, err
		}
	}

	n.logger.Info("client subscribed", zap.String("client", client.ID()), zap.String("topic", topic))
	return sub, nil
}

// fanOut is the single engine handler: it hands a delivery to every local
// subscriber of the topic
func (n *Node) fanOut(contents, topic string) {
	subscribers, err := n.routingTable.GetSubscribers(context.Background(), topic)
	if err != nil {
		n.logger.Warn("no route for delivery", zap.String("topic", topic), zap.Error(err))
		return
	}

	d := routingtablepkg.Delivery{
		UUID:       uuid.NewString(),
		Topic:      topic,
		Contents:   contents,
		ReceivedAt: time.Now(),
	}
	for _, s := range subscribers {
		if s.Deliver(d) {
			n.delivered.Add(1)
		} else {
			n.logger.Warn("delivery dropped, client buffer full", zap.String("client", s.ID()))
		}
	}
}

// Unsubscribe removes one of client's subscriptions. The overlay filter is
// not shrunk: attenuated Bloom filters cannot forget a topic.
func (n *Node) Unsubscribe(ctx context.Context, client nodepkg.Client, subscriptionID string) error {
	if err := checkClient(client); err != nil {
		return err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}

	sub, ok := n.subscriptions[subscriptionID]
	if !ok || sub.ClientID != client.ID() {
		return ErrSubscriptionNotFound
	}
	delete(n.subscriptions, subscriptionID)

	for _, other := range n.subscriptions {
		if other.ClientID == sub.ClientID && other.Topic == sub.Topic {
			return nil
		}
	}
	return n.routingTable.Unsubscribe(ctx, sub.Topic, client.ID())
}

func sortSubscriptions(subs []nodepkg.ClientSubscription) {
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.Before(subs[j].CreatedAt)
		}
		return subs[i].ID < subs[j].ID
	})
}

// GetClientSubscriptions returns the subscriptions of clientID
func (n *Node) GetClientSubscriptions(ctx context.Context, clientID string) ([]nodepkg.ClientSubscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()

	subs := []nodepkg.ClientSubscription{}
	for _, s := range n.subscriptions {
		if s.ClientID == clientID {
			subs = append(subs, s)
		}
	}
	sortSubscriptions(subs)
	return subs, nil
}

// GetAllSubscriptions returns the subscriptions of every client
func (n *Node) GetAllSubscriptions(ctx context.Context) ([]nodepkg.ClientSubscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()

	subs := make([]nodepkg.ClientSubscription, 0, len(n.subscriptions))
	for _, s := range n.subscriptions {
		subs = append(subs, s)
	}
	sortSubscriptions(subs)
	return subs, nil
}

// GetConnectedClients returns every authenticated client
func (n *Node) GetConnectedClients(ctx context.Context) ([]nodepkg.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()

	clients := make([]nodepkg.Client, 0, len(n.clients))
	for _, c := range n.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID() < clients[j].ID() })
	return clients, nil
}

// GetContact returns the contact advertised to peers. Before Start the
// address is the configured one.
func (n *Node) GetContact() contact.Contact {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.bound {
		return n.self
	}
	address := n.config.AdvertiseAddress
	if address == "" {
		address = n.config.ListenAddress
	}
	return n.config.Identity.Contact(address)
}

// GetNodeID returns the node's fingerprint
func (n *Node) GetNodeID() string {
	return n.engine.ID()
}

// GetPeers returns the known peers ordered by distance to the node
func (n *Node) GetPeers(ctx context.Context) ([]contact.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return n.directory.ClosestContactsTo(n.engine.ID(), 0, true), nil
}

// GetFilter returns the topic filter as hex encoded levels
func (n *Node) GetFilter() []string {
	return n.engine.Filter().HexArray()
}

// Topics returns the topics the gossip engine is subscribed to
func (n *Node) Topics() []string {
	return n.engine.Topics()
}

// GetHealth returns the overall health status of this node
func (n *Node) GetHealth(ctx context.Context) (nodepkg.HealthStatus, error) {
	n.mu.RLock()
	closed, started, bound := n.closed, n.started, n.bound
	clients := len(n.clients)
	n.mu.RUnlock()

	status := nodepkg.HealthStatus{
		TransportHealthy: bound && !closed,
		KnownPeers:       n.directory.Size(),
		ConnectedClients: clients,
	}

	valid, err := n.config.Identity.Validate(ctx)
	if err != nil {
		return status, err
	}
	status.IdentityValid = valid

	switch {
	case closed:
		status.Message = "node is closed"
	case !started:
		status.Message = "node is not started"
	case !valid:
		status.Message = "identity proof-of-work does not verify"
	case status.KnownPeers == 0:
		status.Healthy = true
		status.Message = "node is running without peers"
	default:
		status.Healthy = true
		status.Message = "node is running"
	}
	return status, nil
}

// GetStats returns counters for the admin API
func (n *Node) GetStats(ctx context.Context) (nodepkg.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nodepkg.Stats{}, err
	}
	n.mu.RLock()
	stats := nodepkg.Stats{
		ConnectedClients:   len(n.clients),
		TotalSubscriptions: len(n.subscriptions),
	}
	n.mu.RUnlock()

	stats.OverlayTopics = len(n.engine.Topics())
	stats.KnownPeers = n.directory.Size()
	stats.Published = n.published.Load()
	stats.Delivered = n.delivered.Load()
	return stats, nil
}

// DecodeContents turns the hex contents of a delivery back into bytes
func DecodeContents(d routingtablepkg.Delivery) ([]byte, error) {
	return hex.DecodeString(d.Contents)
}

var _ nodepkg.Node = (*Node)(nil)
