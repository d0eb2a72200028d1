package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openStream connects to the event stream and returns a channel of data
// payloads. Comment lines are reported with their leading colon.
func openStream(t *testing.T, url, token string) (<-chan string, *http.Response) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "data: "):
				lines <- strings.TrimPrefix(line, "data: ")
			case strings.HasPrefix(line, ":"):
				lines <- line
			}
		}
	}()
	return lines, resp
}

func next(t *testing.T, lines <-chan string) string {
	t.Helper()
	select {
	case line, ok := <-lines:
		require.True(t, ok, "stream closed")
		return line
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stream")
		return ""
	}
}

func TestStreamPublications(t *testing.T) {
	setup := NewTestServerSetup(t)
	ts := httptest.NewServer(setup.Server.Handler())
	defer ts.Close()

	token := setup.GenerateTestToken(t, "alice", false)
	topic := setup.Peer.GetNodeID()

	lines, resp := openStream(t, ts.URL+"/api/v1/publications/stream?topic="+topic, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	assert.Equal(t, ": stream established for topic: "+topic, next(t, lines))
	assert.Contains(t, setup.Node.Topics(), topic)

	author, err := setup.Peer.AuthenticateClient(context.Background(), "author")
	require.NoError(t, err)
	_, err = setup.Peer.Publish(context.Background(), author, []byte("hello"))
	require.NoError(t, err)

	var msg StreamMessage
	require.NoError(t, json.Unmarshal([]byte(next(t, lines)), &msg))
	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, "68656c6c6f", msg.Contents)
	assert.Equal(t, "hello", msg.Text)
	assert.NotEmpty(t, msg.ID)
}

func TestStreamPublications_RemovesSubscriptionOnDisconnect(t *testing.T) {
	setup := NewTestServerSetup(t)
	ts := httptest.NewServer(setup.Server.Handler())
	defer ts.Close()

	token := setup.GenerateTestToken(t, "alice", false)
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/publications/stream?topic="+setup.Peer.GetNodeID(), nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Eventually(t, func() bool {
		subs, _ := setup.Node.GetClientSubscriptions(context.Background(), "alice")
		return len(subs) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.Eventually(t, func() bool {
		subs, _ := setup.Node.GetClientSubscriptions(context.Background(), "alice")
		return len(subs) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStreamPublications_KeepAlive(t *testing.T) {
	setup := NewTestServerSetup(t)
	setup.Server = NewServer(setup.Node, Config{SecretKey: "k", KeepAlive: 20 * time.Millisecond, Gatherer: setup.Registry})
	setup.Auth = setup.Server.jwtAuth
	ts := httptest.NewServer(setup.Server.Handler())
	defer ts.Close()

	token := setup.GenerateTestToken(t, "alice", false)
	lines, _ := openStream(t, ts.URL+"/api/v1/publications/stream", token)

	assert.Equal(t, ": stream established for all subscriptions", next(t, lines))
	assert.Equal(t, ": ping", next(t, lines))
}

func TestStreamPublications_InvalidTopic(t *testing.T) {
	setup := NewTestServerSetup(t)
	token := setup.GenerateTestToken(t, "alice", false)

	rr := setup.Do(t, http.MethodGet, "/api/v1/publications/stream?topic=orders", token, nil)
	okStatus(t, rr, http.StatusBadRequest)
}
