package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/rmacdonaldsmith/quasar-go/pkg/transport"
)

// Router runs middleware then dispatches to the handler registered for the
// request's method.
type Router struct {
	middleware []transport.Middleware
	handlers   [transport.MethodCount]transport.Handler
	logger     *zap.Logger
}

// NewRouter creates a router with no handlers
func NewRouter(logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{logger: logger}
}

// Use appends middleware. Middleware runs in registration order before every
// handler.
func (r *Router) Use(mw ...transport.Middleware) {
	r.middleware = append(r.middleware, mw...)
}

// Handle registers h for method m, replacing any previous handler.
// Registration must complete before the router serves requests.
func (r *Router) Handle(m transport.Method, h transport.Handler) {
	if !m.Valid() {
		panic(fmt.Sprintf("transport: cannot register handler for %s", m))
	}
	r.handlers[m] = h
}

// Dispatch implements transport.Dispatcher
func (r *Router) Dispatch(ctx context.Context, req *transport.Request) (json.RawMessage, error) {
	if !req.Method.Valid() {
		return nil, fmt.Errorf("%w: %s", transport.ErrUnknownMethod, req.Method)
	}

	for _, mw := range r.middleware {
		if err := mw(ctx, req); err != nil {
			return nil, err
		}
	}

	h := r.handlers[req.Method]
	if h == nil {
		return nil, fmt.Errorf("%w: %s", transport.ErrNoHandler, req.Method)
	}

	result, err := h(ctx, req)
	if err != nil {
		r.logger.Debug("handler failed",
			zap.Stringer("method", req.Method),
			zap.String("contact", req.Fingerprint),
			zap.Error(err))
		return nil, err
	}

	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", req.Method, err)
	}
	return out, nil
}

var _ transport.Dispatcher = (*Router)(nil)
