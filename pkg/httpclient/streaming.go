package httpclient

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"
)

// StreamClient handles Server-Sent Events streaming
type StreamClient struct {
	client *Client
	events chan StreamMessage
	errors chan error
	done   chan struct{}
	cancel context.CancelFunc
}

// StreamConfig configures the streaming client
type StreamConfig struct {
	// Topic subscribes the stream to one fingerprint for its lifetime.
	// Empty streams every subscription of the client.
	Topic string

	// BufferSize for the event channel
	BufferSize int

	// ReconnectDelay for automatic reconnection
	ReconnectDelay time.Duration

	// MaxReconnectAttempts (0 = infinite)
	MaxReconnectAttempts int
}

// SetDefaults sets reasonable default values for StreamConfig
func (sc *StreamConfig) SetDefaults() {
	if sc.BufferSize == 0 {
		sc.BufferSize = 100
	}
	if sc.ReconnectDelay == 0 {
		sc.ReconnectDelay = 2 * time.Second
	}
}

// Stream opens the publication stream in the background, reconnecting
// after failures
func (c *Client) Stream(ctx context.Context, config StreamConfig) (*StreamClient, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	config.SetDefaults()

	// Create cancellable context
	streamCtx, cancel := context.WithCancel(ctx)

	streamClient := &StreamClient{
		client: c,
		events: make(chan StreamMessage, config.BufferSize),
		errors: make(chan error, 10),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	// Start streaming in background
	go streamClient.startStreaming(streamCtx, config)

	return streamClient, nil
}

// Events returns the channel for receiving publications
func (sc *StreamClient) Events() <-chan StreamMessage {
	return sc.events
}

// Errors returns the channel for receiving errors
func (sc *StreamClient) Errors() <-chan error {
	return sc.errors
}

// Done returns a channel that's closed when streaming ends
func (sc *StreamClient) Done() <-chan struct{} {
	return sc.done
}

// Close stops the streaming client. Cancelling the request context closes
// an open response body.
func (sc *StreamClient) Close() error {
	sc.cancel()
	<-sc.done
	return nil
}

// startStreaming handles the SSE streaming loop with reconnection
func (sc *StreamClient) startStreaming(ctx context.Context, config StreamConfig) {
	defer close(sc.done)
	defer close(sc.events)
	defer close(sc.errors)

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := sc.connectAndStream(ctx, config)
		if err != nil {
			select {
			case sc.errors <- fmt.Errorf("streaming error: %w", err):
			case <-ctx.Done():
				return
			default:
			}
		}

		// Check if we should reconnect
		if config.MaxReconnectAttempts > 0 && attempts >= config.MaxReconnectAttempts {
			select {
			case sc.errors <- fmt.Errorf("max reconnect attempts (%d) exceeded", config.MaxReconnectAttempts):
			case <-ctx.Done():
			}
			return
		}

		attempts++

		// Wait before reconnecting
		select {
		case <-time.After(config.ReconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

// connectAndStream establishes SSE connection and processes events
func (sc *StreamClient) connectAndStream(ctx context.Context, config StreamConfig) error {
	// Build streaming URL
	streamURL := sc.client.baseURL.ResolveReference(&url.URL{Path: "/api/v1/publications/stream"})

	// Add topic filter if specified
	if config.Topic != "" {
		values := streamURL.Query()
		values.Set("topic", config.Topic)
		streamURL.RawQuery = values.Encode()
	}

	// Create request
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create streaming request: %w", err)
	}

	// Set SSE headers
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Authorization", "Bearer "+sc.client.token)

	// The shared client's timeout would cut long lived streams
	streamHTTP := &http.Client{Transport: sc.client.httpClient.Transport}
	resp, err := streamHTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to stream: %w", err)
	}
	defer resp.Body.Close()

	// Check response status
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("streaming failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	// Process SSE stream
	return sc.processSSEStream(ctx, resp.Body)
}

// sseEvent is one dispatched Server-Sent Events block
type sseEvent struct {
	id    string
	event string
	data  []string
}

// processSSEStream reads the stream one event block at a time. A blank line
// dispatches the block; comment lines are keep-alives.
func (sc *StreamClient) processSSEStream(ctx context.Context, reader io.Reader) error {
	scanner := bufio.NewScanner(reader)
	var ev sseEvent

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if line == "" {
			if err := sc.dispatch(ctx, ev); err != nil {
				return err
			}
			ev = sseEvent{}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			ev.id = value
		case "event":
			ev.event = value
		case "data":
			ev.data = append(ev.data, value)
		}
		// retry and unknown fields are ignored
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}

// dispatch turns a publication event into a StreamMessage. Parse failures
// are reported on the errors channel and the stream carries on.
func (sc *StreamClient) dispatch(ctx context.Context, ev sseEvent) error {
	if len(ev.data) == 0 || (ev.event != "" && ev.event != "publication") {
		return nil
	}

	msg, err := parseStreamMessage(ev)
	if err != nil {
		select {
		case sc.errors <- err:
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		return nil
	}

	select {
	case sc.events <- msg:
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Channel full, drop event
	}
	return nil
}

// parseStreamMessage decodes the event's JSON payload and its hex contents
func parseStreamMessage(ev sseEvent) (StreamMessage, error) {
	var msg StreamMessage
	if err := json.Unmarshal([]byte(strings.Join(ev.data, "\n")), &msg); err != nil {
		return StreamMessage{}, fmt.Errorf("failed to parse event: %w", err)
	}
	if msg.ID == "" {
		msg.ID = ev.id
	}

	data, err := hex.DecodeString(msg.Contents)
	if err != nil {
		return StreamMessage{}, fmt.Errorf("failed to parse event %s: contents: %w", msg.ID, err)
	}
	msg.Data = data
	if msg.Text == "" && len(data) > 0 && utf8.Valid(data) {
		msg.Text = string(data)
	}
	return msg, nil
}
