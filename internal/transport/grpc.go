package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rmacdonaldsmith/quasar-go/pkg/contact"
	"github.com/rmacdonaldsmith/quasar-go/pkg/transport"
)

const (
	serviceName    = "quasar.overlay.v1.Overlay"
	callMethodName = "/" + serviceName + "/Call"
)

// envelope is the JSON document carried in a BytesValue on every call
type envelope struct {
	Method      transport.Method `json:"method"`
	Fingerprint string           `json:"fingerprint"`
	Sender      contact.Contact  `json:"contact"`
	Params      json.RawMessage  `json:"params"`
}

// overlayServer is the server API for the Overlay gRPC service. The service
// carries JSON envelopes in protobuf well-known wrappers so no codegen step
// is needed.
type overlayServer interface {
	Call(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

func _Overlay_Call_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(overlayServer).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: callMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(overlayServer).Call(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

var overlayServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*overlayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Call", Handler: _Overlay_Call_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "overlay.proto",
}

// GRPCTransport implements transport.Transport over gRPC
type GRPCTransport struct {
	config *Config
	logger *zap.Logger

	mu         sync.Mutex
	listener   net.Listener
	server     *grpc.Server
	dispatcher transport.Dispatcher
	self       contact.Contact
	bound      bool
	closed     bool
	conns      map[string]*grpc.ClientConn
}

// NewGRPCTransport creates a new GRPCTransport with the given configuration
func NewGRPCTransport(config *Config) (*GRPCTransport, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Make a copy and set defaults
	configCopy := *config
	configCopy.SetDefaults()

	return &GRPCTransport{
		config: &configCopy,
		logger: configCopy.Logger,
		conns:  make(map[string]*grpc.ClientConn),
	}, nil
}

// Listen opens the server socket and returns its address. Bind calls it if
// it was not called before; calling it early lets ":0" listeners learn their
// port before the local contact is built.
func (g *GRPCTransport) Listen(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.listenLocked(ctx)
}

func (g *GRPCTransport) listenLocked(ctx context.Context) (string, error) {
	if g.closed {
		return "", transport.ErrClosed
	}
	if g.listener != nil {
		return g.listener.Addr().String(), nil
	}
	if g.config.Listener != nil {
		g.listener = g.config.Listener
		return g.listener.Addr().String(), nil
	}

	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", g.config.ListenAddress)
	if err != nil {
		return "", fmt.Errorf("listen on %s: %w", g.config.ListenAddress, err)
	}
	g.listener = lis
	return lis.Addr().String(), nil
}

// Bind starts serving inbound calls with d
func (g *GRPCTransport) Bind(ctx context.Context, self contact.Contact, d transport.Dispatcher) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.bound {
		return errors.New("transport already bound")
	}
	if _, err := g.listenLocked(ctx); err != nil {
		return err
	}

	g.self = self
	g.dispatcher = d
	g.server = grpc.NewServer(
		grpc.MaxRecvMsgSize(g.config.MaxMessageSize),
		grpc.MaxSendMsgSize(g.config.MaxMessageSize),
	)
	g.server.RegisterService(&overlayServiceDesc, g)
	g.bound = true

	server, lis := g.server, g.listener
	go func() {
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			g.logger.Warn("grpc server stopped", zap.Error(err))
		}
	}()
	g.logger.Info("transport listening", zap.String("address", lis.Addr().String()))
	return nil
}

// Call implements overlayServer
func (g *GRPCTransport) Call(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var env envelope
	if err := json.Unmarshal(in.GetValue(), &env); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	g.mu.Lock()
	d := g.dispatcher
	g.mu.Unlock()
	if d == nil {
		return nil, status.Error(codes.Unavailable, transport.ErrNotBound.Error())
	}

	result, err := d.Dispatch(ctx, &transport.Request{
		Method:      env.Method,
		Fingerprint: env.Fingerprint,
		Sender:      env.Sender,
		Params:      env.Params,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return wrapperspb.Bytes(result), nil
}

// Send implements transport.Transport
func (g *GRPCTransport) Send(ctx context.Context, method transport.Method, params any, to contact.Contact) (json.RawMessage, error) {
	g.mu.Lock()
	self, bound, closed := g.self, g.bound, g.closed
	g.mu.Unlock()
	if closed {
		return nil, transport.ErrClosed
	}
	if !bound {
		return nil, transport.ErrNotBound
	}

	rawParams, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}
	body, err := json.Marshal(envelope{Method: method, Fingerprint: self.ID, Sender: self, Params: rawParams})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", method, err)
	}

	cc, err := g.conn(to.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", transport.ErrUnreachable, to.Address, err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.RequestTimeout)
	defer cancel()

	out := new(wrapperspb.BytesValue)
	if err := cc.Invoke(ctx, callMethodName, wrapperspb.Bytes(body), out); err != nil {
		return nil, mapRPC(err)
	}
	return out.GetValue(), nil
}

func (g *GRPCTransport) conn(address string) (*grpc.ClientConn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, transport.ErrClosed
	}
	if cc, ok := g.conns[address]; ok {
		return cc, nil
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(g.config.MaxMessageSize),
			grpc.MaxCallSendMsgSize(g.config.MaxMessageSize),
		),
	}
	if g.config.Dialer != nil {
		opts = append(opts, grpc.WithContextDialer(g.config.Dialer))
	}

	cc, err := grpc.NewClient("passthrough:///"+address, opts...)
	if err != nil {
		return nil, err
	}
	g.conns[address] = cc
	return cc, nil
}

// Addr returns the listening address, or "" before Listen
func (g *GRPCTransport) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

// Close stops the server and closes all client connections
func (g *GRPCTransport) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil // Already closed, safe to call multiple times
	}
	g.closed = true

	if g.server != nil {
		g.server.Stop()
	} else if g.listener != nil {
		_ = g.listener.Close()
	}

	var errs []error
	for addr, cc := range g.conns {
		if err := cc.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", addr, err))
		}
	}
	g.conns = nil
	return errors.Join(errs...)
}

// mapErr converts dispatcher errors into gRPC status errors
func mapErr(err error) error {
	switch {
	case errors.Is(err, transport.ErrAuthentication):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, transport.ErrMalformed):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, transport.ErrUnknownMethod), errors.Is(err, transport.ErrNoHandler):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Unknown, err.Error())
	}
}

// mapRPC converts gRPC status errors back into transport sentinels
func mapRPC(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	var sentinel error
	switch st.Code() {
	case codes.Unauthenticated:
		sentinel = transport.ErrAuthentication
	case codes.InvalidArgument:
		sentinel = transport.ErrMalformed
	case codes.Unimplemented:
		sentinel = transport.ErrNoHandler
	case codes.Unavailable:
		sentinel = transport.ErrUnreachable
	case codes.DeadlineExceeded:
		sentinel = context.DeadlineExceeded
	case codes.Canceled:
		sentinel = context.Canceled
	default:
		return errors.New(st.Message())
	}
	return fmt.Errorf("%w: %s", sentinel, st.Message())
}

var _ transport.Transport = (*GRPCTransport)(nil)
