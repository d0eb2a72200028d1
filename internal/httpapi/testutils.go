package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rmacdonaldsmith/quasar-go/internal/identity"
	"github.com/rmacdonaldsmith/quasar-go/internal/node"
	itransport "github.com/rmacdonaldsmith/quasar-go/internal/transport"
)

type testIdentity struct {
	key *secp256k1.PrivateKey
	id  *identity.Identity
}

var (
	identitiesOnce sync.Once
	identities     [2]testIdentity
	identitiesErr  error
)

// solvedIdentities returns two testnet identities, solved once per test
// binary. Every setup uses its own memory network, so reuse is safe.
func solvedIdentities(t *testing.T) [2]testIdentity {
	t.Helper()
	identitiesOnce.Do(func() {
		for i := range identities {
			key, err := identity.GenerateKey()
			if err != nil {
				identitiesErr = err
				return
			}
			id := identity.FromKey(key, identity.WithDifficulty(identity.TestnetDifficulty))
			if err := id.Solve(context.Background()); err != nil {
				identitiesErr = err
				return
			}
			identities[i] = testIdentity{key: key, id: id}
		}
	})
	require.NoError(t, identitiesErr)
	return identities
}

// TestServerSetup holds common test dependencies: a started node with one
// peer on an in-memory network, and the control API in front of the node
type TestServerSetup struct {
	Node     *node.Node
	Peer     *node.Node
	Server   *Server
	Auth     *JWTAuth
	Registry *prometheus.Registry
}

// NewTestServerSetup creates a common test setup with a node pair and server
func NewTestServerSetup(t *testing.T) *TestServerSetup {
	t.Helper()
	ids := solvedIdentities(t)
	network := itransport.NewMemoryNetwork()
	registry := prometheus.NewRegistry()
	logger := zaptest.NewLogger(t)

	newNode := func(ti testIdentity, address string, reg prometheus.Registerer, seeds ...string) *node.Node {
		config := node.NewConfig(ti.key, ti.id, address).
			WithTestnet(true).
			WithSeeds(seeds...).
			WithTransport(network.Transport()).
			WithRegisterer(reg).
			WithLogger(logger)
		n, err := node.NewNode(config)
		require.NoError(t, err)
		t.Cleanup(func() { _ = n.Close() })
		require.NoError(t, n.Start(context.Background()))
		return n
	}

	n := newNode(ids[0], "node:5274", registry)
	peer := newNode(ids[1], "peer:5274", nil, "node:5274")

	server := NewServer(n, Config{
		Port:      "0",
		SecretKey: "test-secret-key",
		Gatherer:  registry,
		Logger:    logger,
	})
	require.NotNil(t, server)

	return &TestServerSetup{
		Node:     n,
		Peer:     peer,
		Server:   server,
		Auth:     server.jwtAuth,
		Registry: registry,
	}
}

// GenerateTestToken creates a JWT token for testing
func (setup *TestServerSetup) GenerateTestToken(t *testing.T, clientID string, isAdmin bool) string {
	t.Helper()
	token, _, err := setup.Auth.GenerateToken(clientID, isAdmin)
	require.NoError(t, err)
	return token
}

// Do runs a request through the routed handler. body is JSON encoded when
// not nil.
func (setup *TestServerSetup) Do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	setup.Server.Handler().ServeHTTP(rr, req)
	return rr
}

// decode unmarshals a recorded JSON response
func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

// okStatus fails the test unless rr has status want
func okStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, rr.Code, rr.Body.String())
}
