package httpapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/quasar-go/internal/node"
	"github.com/rmacdonaldsmith/quasar-go/pkg/routingtable"
)

func TestPublish(t *testing.T) {
	setup := NewTestServerSetup(t)
	ctx := context.Background()
	token := setup.GenerateTestToken(t, "alice", false)

	// a client on the peer follows the node's topic
	follower, err := setup.Peer.AuthenticateClient(ctx, "follower")
	require.NoError(t, err)
	_, err = setup.Peer.Subscribe(ctx, follower, setup.Node.GetNodeID())
	require.NoError(t, err)

	rr := setup.Do(t, http.MethodPost, "/api/v1/publications", token, PublishRequest{Contents: "68656c6c6f"})
	okStatus(t, rr, http.StatusCreated)
	var resp PublishResponse
	decode(t, rr, &resp)
	assert.Equal(t, setup.Node.GetNodeID(), resp.Topic)
	assert.Equal(t, []string{setup.Peer.GetNodeID()}, resp.Accepted)

	select {
	case d := <-follower.Deliveries():
		contents, err := node.DecodeContents(d)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(contents))
	case <-time.After(5 * time.Second):
		t.Fatal("publication not delivered")
	}
}

func TestPublish_Invalid(t *testing.T) {
	setup := NewTestServerSetup(t)
	token := setup.GenerateTestToken(t, "alice", false)

	tests := []struct {
		name string
		body interface{}
	}{
		{"empty", PublishRequest{}},
		{"both", PublishRequest{Contents: "00", Message: "x"}},
		{"not hex", PublishRequest{Contents: "zz"}},
		{"not json", "just a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := setup.Do(t, http.MethodPost, "/api/v1/publications", token, tt.body)
			okStatus(t, rr, http.StatusBadRequest)
		})
	}

	rr := setup.Do(t, http.MethodPut, "/api/v1/publications", token, PublishRequest{Message: "x"})
	okStatus(t, rr, http.StatusMethodNotAllowed)
}

func TestPublish_NoReachablePeers(t *testing.T) {
	setup := NewTestServerSetup(t)
	token := setup.GenerateTestToken(t, "alice", false)
	require.NoError(t, setup.Peer.Close())

	rr := setup.Do(t, http.MethodPost, "/api/v1/publications", token, PublishRequest{Message: "hello"})
	okStatus(t, rr, http.StatusBadGateway)
}

func TestSubscriptions(t *testing.T) {
	setup := NewTestServerSetup(t)
	token := setup.GenerateTestToken(t, "alice", false)
	other := setup.GenerateTestToken(t, "bob", false)
	topic := setup.Peer.GetNodeID()

	rr := setup.Do(t, http.MethodPost, "/api/v1/subscriptions", token, SubscriptionRequest{Topic: topic})
	okStatus(t, rr, http.StatusCreated)
	var created SubscriptionResponse
	decode(t, rr, &created)
	assert.Equal(t, topic, created.Topic)
	assert.Equal(t, "alice", created.ClientID)
	assert.Contains(t, setup.Node.Topics(), topic)

	rr = setup.Do(t, http.MethodGet, "/api/v1/subscriptions", token, nil)
	okStatus(t, rr, http.StatusOK)
	var list SubscriptionsListResponse
	decode(t, rr, &list)
	require.Len(t, list.Subscriptions, 1)
	assert.Equal(t, created.ID, list.Subscriptions[0].ID)

	rr = setup.Do(t, http.MethodGet, "/api/v1/subscriptions", other, nil)
	okStatus(t, rr, http.StatusOK)
	decode(t, rr, &list)
	assert.Empty(t, list.Subscriptions)

	// only the owner may delete
	okStatus(t, setup.Do(t, http.MethodDelete, "/api/v1/subscriptions/"+created.ID, other, nil), http.StatusNotFound)
	okStatus(t, setup.Do(t, http.MethodDelete, "/api/v1/subscriptions/"+created.ID, token, nil), http.StatusNoContent)
	okStatus(t, setup.Do(t, http.MethodDelete, "/api/v1/subscriptions/"+created.ID, token, nil), http.StatusNotFound)
	okStatus(t, setup.Do(t, http.MethodDelete, "/api/v1/subscriptions/", token, nil), http.StatusBadRequest)
}

func TestSubscriptions_Invalid(t *testing.T) {
	setup := NewTestServerSetup(t)
	token := setup.GenerateTestToken(t, "alice", false)

	okStatus(t, setup.Do(t, http.MethodPost, "/api/v1/subscriptions", token, SubscriptionRequest{}), http.StatusBadRequest)
	okStatus(t, setup.Do(t, http.MethodPost, "/api/v1/subscriptions", token, SubscriptionRequest{Topic: "orders"}), http.StatusBadRequest)

	rr := setup.Do(t, http.MethodPost, "/api/v1/subscriptions", token, SubscriptionRequest{Topic: routingtable.Wildcard})
	okStatus(t, rr, http.StatusCreated)
}

func TestOverlayEndpoints(t *testing.T) {
	setup := NewTestServerSetup(t)
	token := setup.GenerateTestToken(t, "alice", false)

	rr := setup.Do(t, http.MethodGet, "/api/v1/node", token, nil)
	okStatus(t, rr, http.StatusOK)
	var info NodeInfoResponse
	decode(t, rr, &info)
	c := setup.Node.GetContact()
	assert.Equal(t, c.ID, info.ID)
	assert.Equal(t, "node:5274", info.Address)
	assert.Equal(t, c.URL(), info.URL)
	assert.Equal(t, c.Proof, info.Proof)

	rr = setup.Do(t, http.MethodGet, "/api/v1/peers", token, nil)
	okStatus(t, rr, http.StatusOK)
	var peers PeersResponse
	decode(t, rr, &peers)
	require.Len(t, peers.Peers, 1)
	assert.Equal(t, setup.Peer.GetNodeID(), peers.Peers[0].ID)
	assert.Equal(t, "peer:5274", peers.Peers[0].Address)

	rr = setup.Do(t, http.MethodGet, "/api/v1/node/filter", token, nil)
	okStatus(t, rr, http.StatusOK)
	var filter FilterResponse
	decode(t, rr, &filter)
	assert.Equal(t, setup.Node.GetFilter(), filter.Levels)

	okStatus(t, setup.Do(t, http.MethodPost, "/api/v1/peers", token, nil), http.StatusMethodNotAllowed)
}

func TestAdminEndpoints(t *testing.T) {
	setup := NewTestServerSetup(t)
	admin := setup.GenerateTestToken(t, AdminClientID, true)
	alice := setup.GenerateTestToken(t, "alice", false)

	okStatus(t, setup.Do(t, http.MethodPost, "/api/v1/subscriptions", alice, SubscriptionRequest{Topic: setup.Peer.GetNodeID()}), http.StatusCreated)
	okStatus(t, setup.Do(t, http.MethodPost, "/api/v1/publications", alice, PublishRequest{Message: "hi"}), http.StatusCreated)

	rr := setup.Do(t, http.MethodGet, "/api/v1/admin/clients", admin, nil)
	okStatus(t, rr, http.StatusOK)
	var clients AdminClientsResponse
	decode(t, rr, &clients)
	require.Len(t, clients.Clients, 1)
	assert.Equal(t, "alice", clients.Clients[0].ID)
	assert.True(t, clients.Clients[0].Authenticated)
	assert.Equal(t, []string{setup.Peer.GetNodeID()}, clients.Clients[0].Subscriptions)

	rr = setup.Do(t, http.MethodGet, "/api/v1/admin/subscriptions", admin, nil)
	okStatus(t, rr, http.StatusOK)
	var subs AdminSubscriptionsResponse
	decode(t, rr, &subs)
	assert.Len(t, subs.Subscriptions, 1)

	rr = setup.Do(t, http.MethodGet, "/api/v1/admin/stats", admin, nil)
	okStatus(t, rr, http.StatusOK)
	var stats AdminStatsResponse
	decode(t, rr, &stats)
	assert.Equal(t, 1, stats.ConnectedClients)
	assert.Equal(t, 1, stats.TotalSubscriptions)
	assert.Equal(t, 1, stats.OverlayTopics)
	assert.Equal(t, 1, stats.KnownPeers)
	assert.EqualValues(t, 1, stats.Published)
}

func TestHealth(t *testing.T) {
	setup := NewTestServerSetup(t)

	rr := setup.Do(t, http.MethodGet, "/api/v1/health", "", nil)
	okStatus(t, rr, http.StatusOK)
	var health HealthResponse
	decode(t, rr, &health)
	assert.True(t, health.Healthy)
	assert.True(t, health.IdentityValid)
	assert.True(t, health.TransportHealthy)
	assert.Equal(t, 1, health.KnownPeers)

	require.NoError(t, setup.Node.Stop(context.Background()))
	rr = setup.Do(t, http.MethodGet, "/api/v1/health", "", nil)
	okStatus(t, rr, http.StatusServiceUnavailable)
	decode(t, rr, &health)
	assert.False(t, health.Healthy)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(node.ErrInvalidTopic))
	assert.Equal(t, http.StatusNotFound, statusFor(node.ErrSubscriptionNotFound))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(node.ErrNotStarted))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
