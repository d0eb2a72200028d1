package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	nodepkg "github.com/rmacdonaldsmith/quasar-go/pkg/node"
)

// DefaultKeepAlive is the interval between SSE keepalive comments
const DefaultKeepAlive = 15 * time.Second

// Server represents the control API server
type Server struct {
	node       nodepkg.Node
	jwtAuth    *JWTAuth
	handlers   *Handlers
	middleware *Middleware
	server     *http.Server
	logger     *zap.Logger
	gatherer   prometheus.Gatherer
}

// Config holds server configuration
type Config struct {
	Port string

	// SecretKey signs client tokens. A random key is generated when empty,
	// which invalidates tokens across restarts.
	SecretKey string

	// NoAuth runs every non-admin request as DevClientID
	NoAuth bool

	// KeepAlive is the SSE keepalive interval
	KeepAlive time.Duration

	// Gatherer serves /metrics; prometheus.DefaultGatherer when nil
	Gatherer prometheus.Gatherer

	Logger *zap.Logger
}

// NewServer creates a new control API server for node
func NewServer(node nodepkg.Node, config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	secretKey := config.SecretKey
	if secretKey == "" {
		secretKey = GenerateSecret()
		logger.Warn("no control secret configured, issued tokens will not survive a restart")
	}
	keepAlive := config.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	gatherer := config.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	jwtAuth := NewJWTAuth(secretKey, node.GetNodeID())
	server := &Server{
		node:       node,
		jwtAuth:    jwtAuth,
		handlers:   NewHandlers(node, jwtAuth, logger, keepAlive),
		middleware: NewMiddleware(jwtAuth, config.NoAuth, logger),
		logger:     logger,
		gatherer:   gatherer,
	}

	// WriteTimeout stays unset: event streams are long lived
	server.server = &http.Server{
		Addr:              ":" + config.Port,
		Handler:           server.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
	return server
}

// Handler returns the routed handler, for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves on the configured port until Stop
func (s *Server) Start() error {
	s.logger.Info("control api listening", zap.String("address", s.server.Addr))
	return ignoreClosed(s.server.ListenAndServe())
}

// Serve serves on lis until Stop
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("control api listening", zap.String("address", lis.Addr().String()))
	return ignoreClosed(s.server.Serve(lis))
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// IssueToken signs a token for clientID, for operators bootstrapping the CLI
func (s *Server) IssueToken(clientID string) (string, time.Time, error) {
	return s.jwtAuth.GenerateToken(clientID, clientID == AdminClientID)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	withMiddleware := func(handler http.HandlerFunc) http.Handler {
		return s.middleware.Recovery(
			s.middleware.Logging(
				s.middleware.CORS(
					s.middleware.ContentType(handler))))
	}

	// Authentication endpoints (no auth required)
	mux.Handle("/api/v1/auth/login", withMiddleware(s.handlers.Login))

	// Publication endpoints (auth required)
	mux.Handle("/api/v1/publications", withMiddleware(s.middleware.AuthRequired(s.handlePublications)))
	mux.Handle("/api/v1/publications/stream", withMiddleware(s.middleware.AuthRequired(s.handlers.StreamPublications)))

	// Subscription endpoints (auth required)
	mux.Handle("/api/v1/subscriptions", withMiddleware(s.middleware.AuthRequired(s.handleSubscriptions)))
	mux.Handle("/api/v1/subscriptions/", withMiddleware(s.middleware.AuthRequired(s.handleSubscriptionByID)))

	// Overlay endpoints (auth required)
	mux.Handle("/api/v1/node", withMiddleware(s.middleware.AuthRequired(getOnly(s.handlers.NodeInfo))))
	mux.Handle("/api/v1/node/filter", withMiddleware(s.middleware.AuthRequired(getOnly(s.handlers.Filter))))
	mux.Handle("/api/v1/peers", withMiddleware(s.middleware.AuthRequired(getOnly(s.handlers.Peers))))

	// Admin endpoints (admin auth required)
	mux.Handle("/api/v1/admin/clients", withMiddleware(s.middleware.AdminRequired(s.handlers.AdminListClients)))
	mux.Handle("/api/v1/admin/subscriptions", withMiddleware(s.middleware.AdminRequired(s.handlers.AdminListSubscriptions)))
	mux.Handle("/api/v1/admin/stats", withMiddleware(s.middleware.AdminRequired(s.handlers.AdminGetStats)))

	// Health endpoint (no auth required)
	mux.Handle("/api/v1/health", withMiddleware(s.handlers.Health))

	// Prometheus exposition, plain text
	metrics := promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
	mux.Handle("/metrics", s.middleware.Recovery(s.middleware.Logging(metrics.ServeHTTP)))

	// Root endpoint with API info
	mux.Handle("/", withMiddleware(s.handleRoot))

	return mux
}

func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// handlePublications routes publication requests based on HTTP method
func (s *Server) handlePublications(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlers.Publish(w, r)
	case http.MethodGet:
		http.Redirect(w, r, "/api/v1/publications/stream", http.StatusTemporaryRedirect)
	default:
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSubscriptions routes subscription requests based on HTTP method
func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handlers.ListSubscriptions(w, r)
	case http.MethodPost:
		s.handlers.CreateSubscription(w, r)
	default:
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSubscriptionByID handles individual subscription operations
func (s *Server) handleSubscriptionByID(w http.ResponseWriter, r *http.Request) {
	subscriptionID := strings.TrimPrefix(r.URL.Path, "/api/v1/subscriptions/")
	if subscriptionID == "" || strings.Contains(subscriptionID, "/") {
		writeError(w, "Subscription ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodDelete:
		ctx := context.WithValue(r.Context(), SubscriptionIDKey, subscriptionID)
		s.handlers.DeleteSubscription(w, r.WithContext(ctx))
	default:
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, "Not found", http.StatusNotFound)
		return
	}

	info := map[string]interface{}{
		"service": "Quasar control API",
		"version": "1.0.0",
		"node":    s.node.GetNodeID(),
		"contact": s.node.GetContact().URL(),
		"endpoints": map[string]interface{}{
			"auth": map[string]string{
				"login": "POST /api/v1/auth/login",
			},
			"publications": map[string]string{
				"publish": "POST /api/v1/publications",
				"stream":  "GET /api/v1/publications/stream?topic={fingerprint}",
			},
			"subscriptions": map[string]string{
				"list":   "GET /api/v1/subscriptions",
				"create": "POST /api/v1/subscriptions",
				"delete": "DELETE /api/v1/subscriptions/{id}",
			},
			"overlay": map[string]string{
				"node":   "GET /api/v1/node",
				"filter": "GET /api/v1/node/filter",
				"peers":  "GET /api/v1/peers",
			},
			"admin": map[string]string{
				"clients":       "GET /api/v1/admin/clients",
				"subscriptions": "GET /api/v1/admin/subscriptions",
				"stats":         "GET /api/v1/admin/stats",
			},
			"health":  "GET /api/v1/health",
			"metrics": "GET /metrics",
		},
		"authentication": "Bearer JWT token required for most endpoints",
	}

	writeJSON(w, info, http.StatusOK)
}

// writeError writes an error response as JSON
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}, statusCode)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// ignoreClosed drops the error Serve returns after a normal Stop
func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
