package httpapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/rmacdonaldsmith/quasar-go/internal/node"
	"github.com/rmacdonaldsmith/quasar-go/internal/quasar"
	nodepkg "github.com/rmacdonaldsmith/quasar-go/pkg/node"
	"github.com/rmacdonaldsmith/quasar-go/pkg/routingtable"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	node      nodepkg.Node
	jwtAuth   *JWTAuth
	logger    *zap.Logger
	keepAlive time.Duration
}

// NewHandlers creates a new handlers instance
func NewHandlers(n nodepkg.Node, jwtAuth *JWTAuth, logger *zap.Logger, keepAlive time.Duration) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &Handlers{
		node:      n,
		jwtAuth:   jwtAuth,
		logger:    logger,
		keepAlive: keepAlive,
	}
}

// statusFor maps node and engine errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, node.ErrInvalidTopic),
		errors.Is(err, node.ErrInvalidClientID),
		errors.Is(err, quasar.ErrInvalidContents):
		return http.StatusBadRequest
	case errors.Is(err, node.ErrSubscriptionNotFound):
		return http.StatusNotFound
	case errors.Is(err, node.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, node.ErrNotStarted),
		errors.Is(err, node.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, quasar.ErrPublishExhausted):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// client resolves the authenticated node client for the request
func (h *Handlers) client(w http.ResponseWriter, r *http.Request) (nodepkg.Client, bool) {
	claims := GetClaims(r)
	if claims == nil {
		writeError(w, "Authentication required", http.StatusUnauthorized)
		return nil, false
	}
	c, err := h.node.AuthenticateClient(r.Context(), claims.ClientID)
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to authenticate client: %v", err), statusFor(err))
		return nil, false
	}
	return c, true
}

// Auth endpoints

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := validateJSON(r); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validateAuthRequest(&req); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Login is unauthenticated, so it never grants admin rights
	if req.ClientID == AdminClientID {
		h.logger.Warn("admin login refused", zap.String("remote", r.RemoteAddr))
		writeError(w, "Admin tokens are issued by quasard token", http.StatusForbidden)
		return
	}

	token, expiresAt, err := h.jwtAuth.GenerateToken(req.ClientID, false)
	if err != nil {
		writeError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	h.logger.Info("client logged in", zap.String("client", req.ClientID))
	writeJSON(w, AuthResponse{
		Token:     token,
		ClientID:  req.ClientID,
		ExpiresAt: expiresAt,
	}, http.StatusOK)
}

// Publication endpoints

// Publish handles POST /api/v1/publications. The topic is always the node's
// own fingerprint.
func (h *Handlers) Publish(w http.ResponseWriter, r *http.Request) {
	if err := validateJSON(r); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	contents, err := decodePublishRequest(&req)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	client, ok := h.client(w, r)
	if !ok {
		return
	}

	result, err := h.node.Publish(r.Context(), client, contents)
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to publish: %v", err), statusFor(err))
		return
	}

	accepted := make([]string, len(result.Accepted))
	for i, c := range result.Accepted {
		accepted[i] = c.ID
	}
	writeJSON(w, PublishResponse{
		Topic:       result.Topic,
		Accepted:    accepted,
		PublishedAt: result.PublishedAt,
	}, http.StatusCreated)
}

// StreamPublications handles GET /api/v1/publications/stream. Deliveries for
// the client's subscriptions are written as server-sent events. With a topic
// parameter the stream subscribes to it for its lifetime and only forwards
// that topic.
func (h *Handlers) StreamPublications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	topic := strings.ToLower(r.URL.Query().Get("topic"))

	client, ok := h.client(w, r)
	if !ok {
		return
	}

	var sub *nodepkg.ClientSubscription
	if topic != "" {
		created, err := h.node.Subscribe(r.Context(), client, topic)
		if err != nil {
			writeError(w, fmt.Sprintf("Invalid topic filter: %v", err), statusFor(err))
			return
		}
		sub = &created
		defer func() {
			// the request context is already cancelled here
			if err := h.node.Unsubscribe(context.Background(), client, sub.ID); err != nil {
				h.logger.Debug("stream cleanup", zap.String("subscription", sub.ID), zap.Error(err))
			}
		}()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	if sub != nil {
		fmt.Fprintf(w, ": stream established for topic: %s\n\n", sub.Topic)
	} else {
		fmt.Fprint(w, ": stream established for all subscriptions\n\n")
	}
	flush(w)

	h.stream(r.Context(), w, client, topic)
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// stream forwards deliveries until the client disconnects
func (h *Handlers) stream(ctx context.Context, w http.ResponseWriter, client nodepkg.Client, topic string) {
	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	deliveries := client.Deliveries()
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flush(w)

		case d := <-deliveries:
			if topic != "" && topic != routingtable.Wildcard && d.Topic != topic {
				continue
			}
			if err := writeSSEMessage(w, streamMessage(d)); err != nil {
				h.logger.Debug("stream write failed", zap.String("client", client.ID()), zap.Error(err))
				return
			}
			flush(w)
		}
	}
}

// streamMessage converts a delivery, adding a text rendering when the
// contents are valid UTF-8
func streamMessage(d routingtable.Delivery) StreamMessage {
	msg := StreamMessage{
		ID:         d.UUID,
		Topic:      d.Topic,
		Contents:   d.Contents,
		ReceivedAt: d.ReceivedAt,
	}
	if raw, err := hex.DecodeString(d.Contents); err == nil && utf8.Valid(raw) {
		msg.Text = string(raw)
	}
	return msg
}

// writeSSEMessage writes msg as a server-sent event
func writeSSEMessage(w http.ResponseWriter, msg StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE message: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: publication\ndata: %s\n\n", msg.ID, data)
	return err
}

// Subscription endpoints

func subscriptionResponse(s nodepkg.ClientSubscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:        s.ID,
		Topic:     s.Topic,
		ClientID:  s.ClientID,
		CreatedAt: s.CreatedAt,
	}
}

func subscriptionList(subs []nodepkg.ClientSubscription) []SubscriptionResponse {
	out := make([]SubscriptionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, subscriptionResponse(s))
	}
	return out
}

// ListSubscriptions handles GET /api/v1/subscriptions
func (h *Handlers) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r)
	if claims == nil {
		writeError(w, "Authentication required", http.StatusUnauthorized)
		return
	}

	subs, err := h.node.GetClientSubscriptions(r.Context(), claims.ClientID)
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to retrieve subscriptions: %v", err), statusFor(err))
		return
	}
	writeJSON(w, SubscriptionsListResponse{Subscriptions: subscriptionList(subs)}, http.StatusOK)
}

// CreateSubscription handles POST /api/v1/subscriptions
func (h *Handlers) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	if err := validateJSON(r); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Topic == "" {
		writeError(w, "Topic is required", http.StatusBadRequest)
		return
	}

	client, ok := h.client(w, r)
	if !ok {
		return
	}

	sub, err := h.node.Subscribe(r.Context(), client, req.Topic)
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to subscribe: %v", err), statusFor(err))
		return
	}
	writeJSON(w, subscriptionResponse(sub), http.StatusCreated)
}

// DeleteSubscription handles DELETE /api/v1/subscriptions/{id}
func (h *Handlers) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	subscriptionID := GetSubscriptionID(r)
	if subscriptionID == "" {
		writeError(w, "Subscription ID required", http.StatusBadRequest)
		return
	}

	client, ok := h.client(w, r)
	if !ok {
		return
	}

	if err := h.node.Unsubscribe(r.Context(), client, subscriptionID); err != nil {
		writeError(w, fmt.Sprintf("Failed to unsubscribe: %v", err), statusFor(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Overlay endpoints

// NodeInfo handles GET /api/v1/node
func (h *Handlers) NodeInfo(w http.ResponseWriter, r *http.Request) {
	c := h.node.GetContact()
	writeJSON(w, NodeInfoResponse{
		ID:        c.ID,
		Address:   c.Address,
		URL:       c.URL(),
		PublicKey: c.PublicKey,
		Nonce:     c.Nonce,
		Proof:     c.Proof,
	}, http.StatusOK)
}

// Filter handles GET /api/v1/node/filter
func (h *Handlers) Filter(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, FilterResponse{Levels: h.node.GetFilter()}, http.StatusOK)
}

// Peers handles GET /api/v1/peers
func (h *Handlers) Peers(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.node.GetPeers(r.Context())
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to list peers: %v", err), statusFor(err))
		return
	}

	peers := make([]PeerInfo, 0, len(contacts))
	for _, c := range contacts {
		peers = append(peers, PeerInfo{ID: c.ID, Address: c.Address, URL: c.URL()})
	}
	writeJSON(w, PeersResponse{Peers: peers}, http.StatusOK)
}

// Admin endpoints

// AdminListClients handles GET /api/v1/admin/clients
func (h *Handlers) AdminListClients(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clients, err := h.node.GetConnectedClients(ctx)
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to list clients: %v", err), statusFor(err))
		return
	}
	subs, err := h.node.GetAllSubscriptions(ctx)
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to list subscriptions: %v", err), statusFor(err))
		return
	}

	topics := make(map[string][]string)
	for _, s := range subs {
		topics[s.ClientID] = append(topics[s.ClientID], s.Topic)
	}

	infos := make([]ClientInfo, 0, len(clients))
	for _, c := range clients {
		subscriptions := topics[c.ID()]
		if subscriptions == nil {
			subscriptions = []string{}
		}
		infos = append(infos, ClientInfo{
			ID:            c.ID(),
			Authenticated: c.IsAuthenticated(),
			ConnectedAt:   c.ConnectedAt(),
			Subscriptions: subscriptions,
		})
	}
	writeJSON(w, AdminClientsResponse{Clients: infos}, http.StatusOK)
}

// AdminListSubscriptions handles GET /api/v1/admin/subscriptions
func (h *Handlers) AdminListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.node.GetAllSubscriptions(r.Context())
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to list subscriptions: %v", err), statusFor(err))
		return
	}
	writeJSON(w, AdminSubscriptionsResponse{Subscriptions: subscriptionList(subs)}, http.StatusOK)
}

// AdminGetStats handles GET /api/v1/admin/stats
func (h *Handlers) AdminGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.node.GetStats(r.Context())
	if err != nil {
		writeError(w, fmt.Sprintf("Failed to get stats: %v", err), statusFor(err))
		return
	}
	writeJSON(w, AdminStatsResponse{
		ConnectedClients:   stats.ConnectedClients,
		TotalSubscriptions: stats.TotalSubscriptions,
		OverlayTopics:      stats.OverlayTopics,
		KnownPeers:         stats.KnownPeers,
		Published:          stats.Published,
		Delivered:          stats.Delivered,
	}, http.StatusOK)
}

// Health endpoint

// Health handles GET /api/v1/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health, err := h.node.GetHealth(r.Context())
	if err != nil {
		writeError(w, "Failed to get health status", http.StatusInternalServerError)
		return
	}

	statusCode := http.StatusOK
	if !health.Healthy {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, HealthResponse{
		Healthy:          health.Healthy,
		IdentityValid:    health.IdentityValid,
		TransportHealthy: health.TransportHealthy,
		KnownPeers:       health.KnownPeers,
		ConnectedClients: health.ConnectedClients,
		Message:          health.Message,
	}, statusCode)
}

// Validation helpers

// validateJSON validates that the request has valid JSON content-type
func validateJSON(r *http.Request) error {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return fmt.Errorf("Content-Type must be application/json")
	}
	return nil
}

// validateAuthRequest validates authentication request fields
func validateAuthRequest(req *AuthRequest) error {
	if req.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if len(req.ClientID) < 2 {
		return fmt.Errorf("clientId must be at least 2 characters")
	}
	return nil
}

// decodePublishRequest returns the publication body; exactly one of
// contents and message must be set
func decodePublishRequest(req *PublishRequest) ([]byte, error) {
	switch {
	case req.Contents != "" && req.Message != "":
		return nil, fmt.Errorf("only one of contents and message may be set")
	case req.Contents != "":
		contents, err := hex.DecodeString(req.Contents)
		if err != nil {
			return nil, fmt.Errorf("contents must be hex encoded: %v", err)
		}
		return contents, nil
	case req.Message != "":
		return []byte(req.Message), nil
	default:
		return nil, fmt.Errorf("contents or message is required")
	}
}
