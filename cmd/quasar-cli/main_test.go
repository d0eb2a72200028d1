package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/quasar-go/pkg/httpclient"
)

const testTopic = "0123456789abcdef0123456789abcdef01234567"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// newMockNode serves a canned control API
func newMockNode(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/auth/login":
			writeJSON(w, http.StatusOK, httpclient.AuthResponse{
				Token:     "test-token-123",
				ExpiresAt: time.Now().Add(time.Hour),
				ClientID:  "test-client",
			})

		case "/api/v1/health":
			writeJSON(w, http.StatusOK, httpclient.HealthResponse{
				Healthy:          true,
				IdentityValid:    true,
				TransportHealthy: true,
				KnownPeers:       3,
				ConnectedClients: 5,
				Message:          "node is running",
			})

		case "/api/v1/publications":
			var req httpclient.PublishRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, httpclient.ErrorResponse{Message: "bad body"})
				return
			}
			writeJSON(w, http.StatusCreated, httpclient.PublishResponse{
				Topic:       testTopic,
				Accepted:    []string{req.Contents + req.Message},
				PublishedAt: time.Now(),
			})

		case "/api/v1/subscriptions":
			sub := httpclient.SubscriptionResponse{ID: "sub-123", Topic: testTopic, ClientID: "test-client", CreatedAt: time.Now()}
			if r.Method == http.MethodPost {
				writeJSON(w, http.StatusCreated, sub)
				return
			}
			writeJSON(w, http.StatusOK, httpclient.SubscriptionsListResponse{Subscriptions: []httpclient.SubscriptionResponse{sub}})

		case "/api/v1/subscriptions/sub-123":
			w.WriteHeader(http.StatusNoContent)

		case "/api/v1/node":
			writeJSON(w, http.StatusOK, httpclient.NodeInfoResponse{ID: testTopic, URL: "quasar://" + testTopic + "@127.0.0.1:5274"})

		case "/api/v1/node/filter":
			writeJSON(w, http.StatusOK, httpclient.FilterResponse{Levels: []string{"aa", "bb"}})

		case "/api/v1/peers":
			writeJSON(w, http.StatusOK, httpclient.PeersResponse{Peers: []httpclient.PeerInfo{{ID: testTopic, URL: "quasar://peer"}}})

		case "/api/v1/admin/stats":
			writeJSON(w, http.StatusOK, httpclient.AdminStatsResponse{ConnectedClients: 2, Published: 7, Delivered: 11})

		default:
			writeJSON(w, http.StatusNotFound, httpclient.ErrorResponse{Message: "not found"})
		}
	}))
	t.Cleanup(server.Close)
	return server
}

// execute runs the CLI against server and returns its output
func execute(t *testing.T, server *httptest.Server, args ...string) (string, error) {
	t.Helper()
	serverURL, clientID, token, noAuth, client = "", "", "", false, nil

	cmd := newRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append([]string{"--server", server.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	server := newMockNode(t)

	t.Run("auth", func(t *testing.T) {
		out, err := execute(t, server, "--client-id", "test-client", "auth")
		require.NoError(t, err)
		assert.Contains(t, out, "Token: test-token-123")
		assert.Contains(t, out, "QUASAR_TOKEN")
	})

	t.Run("health", func(t *testing.T) {
		out, err := execute(t, server, "health")
		require.NoError(t, err)
		assert.Contains(t, out, "Node is healthy")
		assert.Contains(t, out, "Known Peers: 3")
	})

	t.Run("publish message", func(t *testing.T) {
		out, err := execute(t, server, "--token", "t", "publish", "--message", "hello")
		require.NoError(t, err)
		assert.Contains(t, out, "Topic: "+testTopic)
		assert.Contains(t, out, "Accepted by 1 neighbour(s)")
		assert.Contains(t, out, "hello")
	})

	t.Run("publish hex", func(t *testing.T) {
		out, err := execute(t, server, "--token", "t", "publish", "--hex", "6869")
		require.NoError(t, err)
		assert.Contains(t, out, "6869")
	})

	t.Run("subscribe", func(t *testing.T) {
		out, err := execute(t, server, "--token", "t", "subscribe", "--topic", testTopic)
		require.NoError(t, err)
		assert.Contains(t, out, "Subscription ID: sub-123")
	})

	t.Run("subscriptions list", func(t *testing.T) {
		out, err := execute(t, server, "--token", "t", "subscriptions", "list")
		require.NoError(t, err)
		assert.Contains(t, out, "Found 1 subscription(s)")
	})

	t.Run("subscriptions delete", func(t *testing.T) {
		out, err := execute(t, server, "--token", "t", "subscriptions", "delete", "--id", "sub-123")
		require.NoError(t, err)
		assert.Contains(t, out, "deleted")

		_, err = execute(t, server, "--token", "t", "subscriptions", "delete", "--id", "missing")
		assert.ErrorContains(t, err, "not found")
	})

	t.Run("node and peers", func(t *testing.T) {
		out, err := execute(t, server, "--token", "t", "node", "info")
		require.NoError(t, err)
		assert.Contains(t, out, "Fingerprint: "+testTopic)

		out, err = execute(t, server, "--token", "t", "node", "filter")
		require.NoError(t, err)
		assert.Contains(t, out, "Level 1: bb")

		out, err = execute(t, server, "--token", "t", "peers")
		require.NoError(t, err)
		assert.Contains(t, out, "quasar://peer")
	})

	t.Run("admin stats", func(t *testing.T) {
		out, err := execute(t, server, "--token", "t", "admin", "stats")
		require.NoError(t, err)
		assert.Contains(t, out, "Delivered: 11")
	})
}

func TestPublishValidation(t *testing.T) {
	server := newMockNode(t)

	_, err := execute(t, server, "--token", "t", "publish", "--hex", "zz")
	assert.ErrorContains(t, err, "invalid hex contents")

	_, err = execute(t, server, "--token", "t", "publish")
	assert.Error(t, err)

	_, err = execute(t, server, "--token", "t", "publish", "--hex", "00", "--message", "x")
	assert.Error(t, err)
}

func TestClientIDRequired(t *testing.T) {
	server := newMockNode(t)

	_, err := execute(t, server, "auth")
	assert.ErrorContains(t, err, "client-id is required")

	_, err = execute(t, server, "--no-auth", "peers")
	assert.NoError(t, err)
}

func TestRequireAuthentication(t *testing.T) {
	t.Run("returns error when client is nil", func(t *testing.T) {
		originalClient := client
		client = nil
		defer func() { client = originalClient }()

		err := requireAuthentication()
		assert.ErrorContains(t, err, "client not initialized")
	})

	t.Run("returns error when not authenticated", func(t *testing.T) {
		testClient, err := httpclient.NewClient(httpclient.Config{ServerURL: "http://localhost:5275", ClientID: "test-client"})
		require.NoError(t, err)

		originalClient, originalNoAuth := client, noAuth
		client, noAuth = testClient, false
		defer func() { client, noAuth = originalClient, originalNoAuth }()

		err = requireAuthentication()
		assert.ErrorContains(t, err, "not authenticated")
	})

	t.Run("succeeds when authenticated", func(t *testing.T) {
		testClient, err := httpclient.NewClient(httpclient.Config{ServerURL: "http://localhost:5275", ClientID: "test-client"})
		require.NoError(t, err)
		testClient.SetToken("test-token")

		originalClient := client
		client = testClient
		defer func() { client = originalClient }()

		assert.NoError(t, requireAuthentication())
	})
}

func TestMainCommandHelp(t *testing.T) {
	rootCmd := newRootCommand()

	output := &bytes.Buffer{}
	rootCmd.SetOut(output)
	rootCmd.SetArgs([]string{"--help"})
	require.NoError(t, rootCmd.Execute())

	helpOutput := output.String()
	for _, name := range []string{"auth", "health", "publish", "subscribe", "subscriptions", "stream", "node", "peers", "admin"} {
		assert.Contains(t, helpOutput, name)
	}
}

func TestStreamCommandFlags(t *testing.T) {
	cmd := newStreamCommand()
	flag := cmd.Flags().Lookup("buffer-size")
	require.NotNil(t, flag)
	assert.Equal(t, "100", flag.DefValue)
	assert.NotNil(t, cmd.Flags().Lookup("topic"))
}

func TestPrintPublication(t *testing.T) {
	msg := httpclient.StreamMessage{ID: "p1", Topic: testTopic, Contents: "6869", Text: "hi", Data: []byte("hi")}

	out := &bytes.Buffer{}
	printPublication(out, msg, 1, false)
	assert.Contains(t, out.String(), "Size: 2 bytes")
	assert.Contains(t, out.String(), "Text: hi")

	out.Reset()
	printPublication(out, msg, 1, true)
	assert.Contains(t, out.String(), "Contents: 6869")
	assert.NotContains(t, out.String(), "Text:")
}
