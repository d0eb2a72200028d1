package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "0123456789abcdef0123456789abcdef01234567"

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	client, err := NewClient(Config{ServerURL: serverURL, ClientID: "test-client", RetryDelay: time.Millisecond})
	require.NoError(t, err)
	client.SetToken("test-token")
	return client
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient(t *testing.T) {
	t.Run("valid_config", func(t *testing.T) {
		client, err := NewClient(Config{ServerURL: "http://localhost:5275", ClientID: "test-client"})
		require.NoError(t, err)
		assert.Equal(t, "test-client", client.config.ClientID)
		assert.Equal(t, 30*time.Second, client.config.Timeout)
		assert.Equal(t, 3, client.config.MaxRetries)
		assert.False(t, client.IsAuthenticated())
	})

	t.Run("missing_server_url", func(t *testing.T) {
		_, err := NewClient(Config{ClientID: "test-client"})
		assert.ErrorContains(t, err, "ServerURL is required")
	})

	t.Run("missing_client_id", func(t *testing.T) {
		_, err := NewClient(Config{ServerURL: "http://localhost:5275"})
		assert.ErrorContains(t, err, "ClientID is required")
	})

	t.Run("invalid_server_url", func(t *testing.T) {
		_, err := NewClient(Config{ServerURL: "://invalid-url", ClientID: "test-client"})
		assert.ErrorContains(t, err, "invalid ServerURL")
	})
}

func TestClient_Authenticate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req["clientId"] != "test-client" {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: "clientId is required"})
			return
		}
		writeJSON(w, http.StatusOK, AuthResponse{Token: "jwt", ClientID: "test-client", ExpiresAt: time.Now().Add(time.Hour)})
	}))
	defer server.Close()

	client, err := NewClient(Config{ServerURL: server.URL, ClientID: "test-client"})
	require.NoError(t, err)
	require.NoError(t, client.Authenticate(context.Background()))
	assert.True(t, client.IsAuthenticated())
	assert.Equal(t, "jwt", client.GetToken())
}

func TestClient_RequiresAuthentication(t *testing.T) {
	client, err := NewClient(Config{ServerURL: "http://localhost:5275", ClientID: "test-client"})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.Publish(ctx, []byte("x"))
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = client.CreateSubscription(ctx, testTopic)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = client.GetPeers(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.ErrorIs(t, client.DeleteSubscription(ctx, "id"), ErrNotAuthenticated)
}

func TestClient_Publish(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/publications", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var req PublishRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		accepted := []string{req.Contents + req.Message}
		writeJSON(w, http.StatusCreated, PublishResponse{Topic: testTopic, Accepted: accepted})
	}))
	defer server.Close()
	client := newTestClient(t, server.URL)

	resp, err := client.Publish(context.Background(), []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, testTopic, resp.Topic)
	assert.Equal(t, []string{"6869"}, resp.Accepted)

	resp, err = client.PublishMessage(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, resp.Accepted)
}

func TestClient_Subscriptions(t *testing.T) {
	sub := SubscriptionResponse{ID: "sub-1", Topic: testTopic, ClientID: "test-client"}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/subscriptions":
			writeJSON(w, http.StatusCreated, sub)
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/subscriptions":
			writeJSON(w, http.StatusOK, SubscriptionsListResponse{Subscriptions: []SubscriptionResponse{sub}})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/subscriptions/sub-1":
			w.WriteHeader(http.StatusNoContent)
		default:
			writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Not Found", Message: "subscription not found", Code: 404})
		}
	}))
	defer server.Close()
	client := newTestClient(t, server.URL)
	ctx := context.Background()

	created, err := client.CreateSubscription(ctx, testTopic)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, created.ID)

	subs, err := client.ListSubscriptions(ctx)
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	require.NoError(t, client.DeleteSubscription(ctx, "sub-1"))

	err = client.DeleteSubscription(ctx, "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "subscription not found", apiErr.Message)
}

func TestClient_OverlayQueries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/node":
			writeJSON(w, http.StatusOK, NodeInfoResponse{ID: testTopic, URL: "quasar://" + testTopic + "@n:5274"})
		case "/api/v1/node/filter":
			writeJSON(w, http.StatusOK, FilterResponse{Levels: []string{"00", "00", "00"}})
		case "/api/v1/peers":
			writeJSON(w, http.StatusOK, PeersResponse{Peers: []PeerInfo{{ID: testTopic, Address: "p:5274"}}})
		}
	}))
	defer server.Close()
	client := newTestClient(t, server.URL)
	ctx := context.Background()

	info, err := client.GetNode(ctx)
	require.NoError(t, err)
	assert.Equal(t, testTopic, info.ID)

	filter, err := client.GetFilter(ctx)
	require.NoError(t, err)
	assert.Len(t, filter.Levels, 3)

	peers, err := client.GetPeers(ctx)
	require.NoError(t, err)
	require.Len(t, peers.Peers, 1)
	assert.Equal(t, "p:5274", peers.Peers[0].Address)
}

func TestClient_GetHealth(t *testing.T) {
	healthy := atomic.Bool{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			writeJSON(w, http.StatusOK, HealthResponse{Healthy: true, Message: "node is running"})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Message: "node is not started"})
	}))
	defer server.Close()
	client := newTestClient(t, server.URL)

	health, err := client.GetHealth(context.Background())
	require.NoError(t, err)
	assert.False(t, health.Healthy)
	assert.Equal(t, "node is not started", health.Message)

	healthy.Store(true)
	health, err = client.GetHealth(context.Background())
	require.NoError(t, err)
	assert.True(t, health.Healthy)
}

func TestClient_Admin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/admin/clients":
			writeJSON(w, http.StatusOK, AdminClientsResponse{Clients: []ClientInfo{{ID: "alice", Authenticated: true}}})
		case "/api/v1/admin/subscriptions":
			writeJSON(w, http.StatusOK, AdminSubscriptionsResponse{Subscriptions: []SubscriptionResponse{{ID: "s"}}})
		case "/api/v1/admin/stats":
			writeJSON(w, http.StatusForbidden, ErrorResponse{Message: "Admin privileges required"})
		}
	}))
	defer server.Close()
	client := newTestClient(t, server.URL)
	ctx := context.Background()

	clients, err := client.AdminListClients(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", clients.Clients[0].ID)

	subs, err := client.AdminListSubscriptions(ctx)
	require.NoError(t, err)
	assert.Len(t, subs.Subscriptions, 1)

	_, err = client.AdminGetStats(ctx)
	assert.ErrorContains(t, err, "Admin privileges required")
}

func TestClient_RetriesIdempotentRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, PeersResponse{})
	}))
	url := server.URL
	server.Close()

	client := newTestClient(t, url)
	start := time.Now()
	_, err := client.GetPeers(context.Background())
	assert.ErrorContains(t, err, "request failed")
	// 1 attempt plus 3 retries, each separated by RetryDelay
	assert.GreaterOrEqual(t, time.Since(start), 3*time.Millisecond)
}
