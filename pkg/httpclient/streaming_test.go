package httpclient

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamConfig_SetDefaults(t *testing.T) {
	config := StreamConfig{}
	config.SetDefaults()
	assert.Equal(t, 100, config.BufferSize)
	assert.Equal(t, 2*time.Second, config.ReconnectDelay)
	assert.Equal(t, 0, config.MaxReconnectAttempts)

	custom := StreamConfig{Topic: testTopic, BufferSize: 5, ReconnectDelay: time.Second, MaxReconnectAttempts: 3}
	custom.SetDefaults()
	assert.Equal(t, 5, custom.BufferSize)
	assert.Equal(t, time.Second, custom.ReconnectDelay)
}

func TestClient_Stream_RequiresAuthentication(t *testing.T) {
	client, err := NewClient(Config{ServerURL: "http://localhost:5275", ClientID: "test-client"})
	require.NoError(t, err)

	_, err = client.Stream(context.Background(), StreamConfig{})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func sseServer(t *testing.T, messages ...StreamMessage) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/publications/stream", r.URL.Path)
		assert.Equal(t, testTopic, r.URL.Query().Get("topic"))
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, ": stream established\n\n")
		fmt.Fprint(w, "data: {not json}\n\n")
		for _, m := range messages {
			data, _ := json.Marshal(m)
			fmt.Fprintf(w, "id: %s\nevent: publication\ndata: %s\n\n", m.ID, data)
		}
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
}

func TestClient_Stream(t *testing.T) {
	want := []StreamMessage{
		{ID: "1", Topic: testTopic, Contents: "6869", Text: "hi"},
		{ID: "2", Topic: testTopic, Contents: "ff"},
	}
	server := sseServer(t, want...)
	defer server.Close()

	client := newTestClient(t, server.URL)
	stream, err := client.Stream(context.Background(), StreamConfig{Topic: testTopic})
	require.NoError(t, err)

	select {
	case err := <-stream.Errors():
		assert.ErrorContains(t, err, "failed to parse event")
	case <-time.After(5 * time.Second):
		t.Fatal("expected parse error")
	}

	for _, w := range want {
		select {
		case got := <-stream.Events():
			assert.Equal(t, w.ID, got.ID)
			assert.Equal(t, w.Contents, got.Contents)
			assert.Equal(t, w.Text, got.Text)
			assert.Equal(t, mustHex(t, w.Contents), got.Data)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for publication")
		}
	}

	require.NoError(t, stream.Close())
	select {
	case <-stream.Done():
	default:
		t.Fatal("expected stream to be done after Close")
	}
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestStreamClient_ProcessSSEStream(t *testing.T) {
	body := strings.Join([]string{
		": keep-alive",
		"",
		"event: connected",
		`data: {"id":"ignored"}`,
		"",
		"id: from-id-line",
		"event: publication",
		`data: {"topic":"` + testTopic + `","contents":"776f726c64"}`,
		"",
		"event: publication",
		`data: {"id":"bad","contents":"zz"}`,
		"",
		"retry: 1000",
		`data: {"id":"bin","contents":"ff00"}`,
		"",
	}, "\n")

	sc := &StreamClient{events: make(chan StreamMessage, 10), errors: make(chan error, 10)}
	require.NoError(t, sc.processSSEStream(context.Background(), strings.NewReader(body)))
	close(sc.events)
	close(sc.errors)

	var got []StreamMessage
	for m := range sc.events {
		got = append(got, m)
	}
	require.Len(t, got, 2)

	assert.Equal(t, "from-id-line", got[0].ID)
	assert.Equal(t, testTopic, got[0].Topic)
	assert.Equal(t, []byte("world"), got[0].Data)
	assert.Equal(t, "world", got[0].Text)

	assert.Equal(t, "bin", got[1].ID)
	assert.Equal(t, []byte{0xff, 0x00}, got[1].Data)
	assert.Empty(t, got[1].Text)

	var errs []error
	for err := range sc.errors {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "failed to parse event bad")
	assert.ErrorIs(t, errs[0], hex.InvalidByteError('z'))
}

func TestClient_Stream_GivesUpAfterMaxAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Message: "Invalid token"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	stream, err := client.Stream(context.Background(), StreamConfig{
		ReconnectDelay:       time.Millisecond,
		MaxReconnectAttempts: 2,
	})
	require.NoError(t, err)

	select {
	case <-stream.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not give up")
	}

	var errs []error
	for err := range stream.Errors() {
		errs = append(errs, err)
	}
	require.NotEmpty(t, errs)
	assert.ErrorContains(t, errs[len(errs)-1], "max reconnect attempts")
}
