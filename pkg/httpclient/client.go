package httpclient

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrNotAuthenticated is returned by calls made before Authenticate
var ErrNotAuthenticated = errors.New("client not authenticated - call Authenticate() first")

// Client provides an HTTP client for a node's control API
type Client struct {
	config     Config
	httpClient *http.Client
	token      string
	baseURL    *url.URL
}

// NewClient creates a new control API client
func NewClient(config Config) (*Client, error) {
	config.SetDefaults()

	if config.ServerURL == "" {
		return nil, fmt.Errorf("ServerURL is required")
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("ClientID is required")
	}

	baseURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    baseURL,
	}, nil
}

// Authenticate logs in and stores the token
func (c *Client) Authenticate(ctx context.Context) error {
	authReq := map[string]string{
		"clientId": c.config.ClientID,
	}

	var authResp AuthResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", authReq, &authResp, false); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	c.token = authResp.Token
	return nil
}

// Publish gossips contents under the node's topic
func (c *Client) Publish(ctx context.Context, contents []byte) (*PublishResponse, error) {
	return c.publish(ctx, PublishRequest{Contents: hex.EncodeToString(contents)})
}

// PublishMessage gossips a plain text message under the node's topic
func (c *Client) PublishMessage(ctx context.Context, message string) (*PublishResponse, error) {
	return c.publish(ctx, PublishRequest{Message: message})
}

func (c *Client) publish(ctx context.Context, req PublishRequest) (*PublishResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp PublishResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/publications", req, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to publish: %w", err)
	}
	return &resp, nil
}

// CreateSubscription subscribes to a topic: a node fingerprint or "*"
func (c *Client) CreateSubscription(ctx context.Context, topic string) (*SubscriptionResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp SubscriptionResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/subscriptions", SubscriptionRequest{Topic: topic}, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}
	return &resp, nil
}

// ListSubscriptions returns all subscriptions for this client
func (c *Client) ListSubscriptions(ctx context.Context) ([]SubscriptionResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp SubscriptionsListResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/subscriptions", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return resp.Subscriptions, nil
}

// DeleteSubscription removes a subscription by ID
func (c *Client) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	if c.token == "" {
		return ErrNotAuthenticated
	}

	path := "/api/v1/subscriptions/" + url.PathEscape(subscriptionID)
	if err := c.doRequest(ctx, http.MethodDelete, path, nil, nil, true); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// GetNode returns the node's identity and contact URL
func (c *Client) GetNode(ctx context.Context) (*NodeInfoResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp NodeInfoResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/node", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	return &resp, nil
}

// GetFilter returns the node's topic filter
func (c *Client) GetFilter(ctx context.Context) (*FilterResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp FilterResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/node/filter", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to get filter: %w", err)
	}
	return &resp, nil
}

// GetPeers returns the node's known peers
func (c *Client) GetPeers(ctx context.Context) (*PeersResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp PeersResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/peers", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to list peers: %w", err)
	}
	return &resp, nil
}

// GetHealth returns the health status of the node. An unhealthy node
// answers 503 with a health body, which is returned without error.
func (c *Client) GetHealth(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	err := c.doRequest(ctx, http.MethodGet, "/api/v1/health", nil, &resp, false)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
		if jsonErr := json.Unmarshal(apiErr.Body, &resp); jsonErr == nil {
			return &resp, nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get health status: %w", err)
	}
	return &resp, nil
}

// Admin Methods (require admin token)

// AdminListClients returns all connected clients (admin only)
func (c *Client) AdminListClients(ctx context.Context) (*AdminClientsResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp AdminClientsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/admin/clients", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	return &resp, nil
}

// AdminListSubscriptions returns all subscriptions (admin only)
func (c *Client) AdminListSubscriptions(ctx context.Context) (*AdminSubscriptionsResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp AdminSubscriptionsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/admin/subscriptions", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to list all subscriptions: %w", err)
	}
	return &resp, nil
}

// AdminGetStats returns node statistics (admin only)
func (c *Client) AdminGetStats(ctx context.Context) (*AdminStatsResponse, error) {
	if c.token == "" {
		return nil, ErrNotAuthenticated
	}

	var resp AdminStatsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/admin/stats", nil, &resp, true); err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return &resp, nil
}

// doRequest performs an HTTP request with optional authentication. GET
// requests that fail before a response arrives are retried.
func (c *Client) doRequest(ctx context.Context, method, path string, reqBody interface{}, respBody interface{}, requireAuth bool) error {
	var jsonBody []byte
	if reqBody != nil {
		var err error
		if jsonBody, err = json.Marshal(reqBody); err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}
	fullURL := c.baseURL.ResolveReference(&url.URL{Path: path})

	attempts := 1
	if method == http.MethodGet {
		attempts += c.config.MaxRetries
	}

	var resp *http.Response
	for attempt := 1; ; attempt++ {
		var bodyReader io.Reader
		if jsonBody != nil {
			bodyReader = bytes.NewReader(jsonBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, fullURL.String(), bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if jsonBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if requireAuth && c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err = c.httpClient.Do(req)
		if err == nil {
			break
		}
		if attempt >= attempts || ctx.Err() != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		select {
		case <-time.After(c.config.RetryDelay):
		case <-ctx.Done():
			return fmt.Errorf("request failed: %w", ctx.Err())
		}
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(bodyBytes)), Body: bodyBytes}
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err == nil && errResp.Message != "" {
			apiErr.Message = errResp.Message
		}
		return apiErr
	}

	if respBody != nil && len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, respBody); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// IsAuthenticated returns whether the client has a valid token
func (c *Client) IsAuthenticated() bool {
	return c.token != ""
}

// GetToken returns the current authentication token
func (c *Client) GetToken() string {
	return c.token
}

// SetToken sets the authentication token (useful for testing or token reuse)
func (c *Client) SetToken(token string) {
	c.token = token
}
