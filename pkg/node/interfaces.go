package node

import (
	"context"
	"io"
	"time"

	"github.com/rmacdonaldsmith/quasar-go/pkg/contact"
	"github.com/rmacdonaldsmith/quasar-go/pkg/routingtable"
)

// Client is a local consumer of the node (a control API session)
type Client interface {
	routingtable.Subscriber

	// IsAuthenticated returns whether the client is properly authenticated
	IsAuthenticated() bool

	// ConnectedAt returns when the client first authenticated
	ConnectedAt() time.Time

	// Deliveries streams publications for the client's subscriptions
	Deliveries() <-chan routingtable.Delivery
}

// ClientSubscription records one topic subscription made by a client
type ClientSubscription struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	ClientID  string    `json:"clientId"`
	CreatedAt time.Time `json:"createdAt"`
}

// PublishResult describes a publication handed to the overlay
type PublishResult struct {
	// Topic is the node's fingerprint, the topic of everything it publishes
	Topic string

	// Accepted lists the neighbours that took the publication
	Accepted []contact.Contact

	// PublishedAt is when the publish completed
	PublishedAt time.Time
}

// Node is a single overlay node: identity, peer directory, transport and
// gossip engine behind one lifecycle.
type Node interface {
	io.Closer

	// Start binds the transport and joins the overlay through the seeds
	Start(ctx context.Context) error

	// Stop detaches the node from the overlay until Start is called again
	Stop(ctx context.Context) error

	// AuthenticateClient returns the client for clientID, creating it on
	// first use
	AuthenticateClient(ctx context.Context, clientID string) (Client, error)

	// Publish gossips contents under the node's own topic
	Publish(ctx context.Context, client Client, contents []byte) (PublishResult, error)

	// Subscribe delivers publications for topic to client
	Subscribe(ctx context.Context, client Client, topic string) (ClientSubscription, error)

	// Unsubscribe removes one of the client's subscriptions
	Unsubscribe(ctx context.Context, client Client, subscriptionID string) error

	// GetClientSubscriptions returns the subscriptions of clientID
	GetClientSubscriptions(ctx context.Context, clientID string) ([]ClientSubscription, error)

	// GetAllSubscriptions returns the subscriptions of every client
	GetAllSubscriptions(ctx context.Context) ([]ClientSubscription, error)

	// GetConnectedClients returns every authenticated client
	GetConnectedClients(ctx context.Context) ([]Client, error)

	// GetContact returns the contact advertised to peers
	GetContact() contact.Contact

	// GetNodeID returns the node's fingerprint
	GetNodeID() string

	// GetPeers returns the known peers ordered by distance to the node
	GetPeers(ctx context.Context) ([]contact.Contact, error)

	// GetFilter returns the node's topic filter as hex encoded levels
	GetFilter() []string

	// GetHealth returns the overall health status of this node
	GetHealth(ctx context.Context) (HealthStatus, error)

	// GetStats returns counters for the admin API
	GetStats(ctx context.Context) (Stats, error)
}

// HealthStatus represents the overall health of a node
type HealthStatus struct {
	// Healthy indicates if the node is functioning properly
	Healthy bool

	// IdentityValid reports whether the node's proof-of-work verifies
	IdentityValid bool

	// TransportHealthy indicates the transport is bound
	TransportHealthy bool

	// KnownPeers is the number of contacts in the directory
	KnownPeers int

	// ConnectedClients is the number of local clients
	ConnectedClients int

	// Message provides additional health information
	Message string
}

// Stats are the node counters reported by the admin API
type Stats struct {
	ConnectedClients   int
	TotalSubscriptions int
	OverlayTopics      int
	KnownPeers         int
	Published          int64
	Delivered          int64
}
