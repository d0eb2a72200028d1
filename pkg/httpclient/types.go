package httpclient

import (
	"fmt"
	"time"
)

// Config holds client configuration
type Config struct {
	// ServerURL is the base URL of the control API (e.g., "http://localhost:5275")
	ServerURL string

	// ClientID is the identifier for this client
	ClientID string

	// Timeout for HTTP requests
	Timeout time.Duration

	// MaxRetries bounds retries of idempotent requests that failed before
	// reaching the server
	MaxRetries int

	// RetryDelay is the pause between retries
	RetryDelay time.Duration
}

// SetDefaults sets reasonable default values for the config
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 200 * time.Millisecond
	}
}

// APIError is a non-2xx response from the control API
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// AuthResponse represents the response from authentication
type AuthResponse struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"clientId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PublishRequest carries hex Contents or a plain text Message
type PublishRequest struct {
	Contents string `json:"contents,omitempty"`
	Message  string `json:"message,omitempty"`
}

// PublishResponse reports which neighbours accepted a publication
type PublishResponse struct {
	Topic       string    `json:"topic"`
	Accepted    []string  `json:"accepted"`
	PublishedAt time.Time `json:"publishedAt"`
}

// SubscriptionRequest represents a subscription creation request
type SubscriptionRequest struct {
	Topic string `json:"topic"`
}

// SubscriptionResponse represents a subscription response
type SubscriptionResponse struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	ClientID  string    `json:"clientId"`
	CreatedAt time.Time `json:"createdAt"`
}

// SubscriptionsListResponse represents a list of subscriptions
type SubscriptionsListResponse struct {
	Subscriptions []SubscriptionResponse `json:"subscriptions"`
}

// NodeInfoResponse describes the node's identity
type NodeInfoResponse struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	URL       string `json:"url"`
	PublicKey string `json:"pubkey"`
	Nonce     uint32 `json:"nonce"`
	Proof     string `json:"proof"`
}

// FilterResponse is the node's topic filter, one hex string per level
type FilterResponse struct {
	Levels []string `json:"levels"`
}

// PeerInfo is one known peer
type PeerInfo struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	URL     string `json:"url"`
}

// PeersResponse lists the known peers, closest first
type PeersResponse struct {
	Peers []PeerInfo `json:"peers"`
}

// AdminClientsResponse represents admin view of connected clients
type AdminClientsResponse struct {
	Clients []ClientInfo `json:"clients"`
}

// ClientInfo represents information about a connected client
type ClientInfo struct {
	ID            string    `json:"id"`
	Authenticated bool      `json:"authenticated"`
	ConnectedAt   time.Time `json:"connectedAt"`
	Subscriptions []string  `json:"subscriptions"`
}

// AdminSubscriptionsResponse represents admin view of all subscriptions
type AdminSubscriptionsResponse struct {
	Subscriptions []SubscriptionResponse `json:"subscriptions"`
}

// AdminStatsResponse represents node statistics
type AdminStatsResponse struct {
	ConnectedClients   int   `json:"connectedClients"`
	TotalSubscriptions int   `json:"totalSubscriptions"`
	OverlayTopics      int   `json:"overlayTopics"`
	KnownPeers         int   `json:"knownPeers"`
	Published          int64 `json:"published"`
	Delivered          int64 `json:"delivered"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Healthy          bool   `json:"healthy"`
	IdentityValid    bool   `json:"identityValid"`
	TransportHealthy bool   `json:"transportHealthy"`
	KnownPeers       int    `json:"knownPeers"`
	ConnectedClients int    `json:"connectedClients"`
	Message          string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// StreamMessage is one delivered publication
type StreamMessage struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	Contents   string    `json:"contents"`
	Text       string    `json:"text,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`

	// Data is Contents decoded, filled in by the stream client
	Data []byte `json:"-"`
}
