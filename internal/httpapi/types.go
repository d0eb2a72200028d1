package httpapi

import "time"

// Request/Response types for the control API

// AuthRequest represents a login request
type AuthRequest struct {
	ClientID string `json:"clientId"`
}

// AuthResponse represents a login response
type AuthResponse struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"clientId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PublishRequest carries the publication body, either hex encoded in
// Contents or as plain text in Message
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

// FilterResponse is the node's attenuated Bloom filter, one hex string per
// level
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

// StreamMessage is one server-sent delivery
type StreamMessage struct {
	ID         string    `json:"id"`
	Topic      string    `json:"topic"`
	Contents   string    `json:"contents"`
	Text       string    `json:"text,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}
