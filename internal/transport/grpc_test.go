package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rmacdonaldsmith/quasar-go/pkg/contact"
	"github.com/rmacdonaldsmith/quasar-go/pkg/transport"
)

// bufNet routes dials by address to in-memory listeners
type bufNet struct {
	mu        sync.Mutex
	listeners map[string]*bufconn.Listener
}

func newBufNet() *bufNet {
	return &bufNet{listeners: make(map[string]*bufconn.Listener)}
}

func (n *bufNet) listen(address string) *bufconn.Listener {
	n.mu.Lock()
	defer n.mu.Unlock()
	lis := bufconn.Listen(1024 * 1024)
	n.listeners[address] = lis
	return lis
}

func (n *bufNet) dial(ctx context.Context, address string) (net.Conn, error) {
	n.mu.Lock()
	lis, ok := n.listeners[address]
	n.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no route to %s", address)
	}
	return lis.DialContext(ctx)
}

func newTestGRPC(t *testing.T, n *bufNet, self contact.Contact, d transport.Dispatcher) *GRPCTransport {
	t.Helper()
	g, err := NewGRPCTransport(&Config{
		Listener:       n.listen(self.Address),
		Dialer:         n.dial,
		RequestTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, g.Bind(context.Background(), self, d))
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestGRPCTransport_RoundTrip(t *testing.T) {
	n := newBufNet()
	a := contact.Contact{ID: "aa", Address: "node-a:1"}
	b := contact.Contact{ID: "bb", Address: "node-b:1", PublicKey: "02ff", Nonce: 9, Proof: "00"}

	var mu sync.Mutex
	var seen transport.Request
	rb := NewRouter(nil)
	rb.Handle(transport.MethodSubscribe, func(_ context.Context, req *transport.Request) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		seen = *req
		return []string{"00", "ff"}, nil
	})

	ga := newTestGRPC(t, n, a, NewRouter(nil))
	newTestGRPC(t, n, b, rb)

	out, err := ga.Send(context.Background(), transport.MethodSubscribe, []string{}, b)
	require.NoError(t, err)

	var levels []string
	require.NoError(t, json.Unmarshal(out, &levels))
	assert.Equal(t, []string{"00", "ff"}, levels)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, transport.MethodSubscribe, seen.Method)
	assert.Equal(t, "aa", seen.Fingerprint)
	assert.Equal(t, a, seen.Sender)
	assert.JSONEq(t, `[]`, string(seen.Params))

	_, err = ga.Send(context.Background(), transport.MethodPing, map[string]string{}, b)
	assert.ErrorIs(t, err, transport.ErrNoHandler)
}

func TestGRPCTransport_ErrorMapping(t *testing.T) {
	n := newBufNet()
	a := contact.Contact{ID: "aa", Address: "node-a:1"}
	b := contact.Contact{ID: "bb", Address: "node-b:1"}

	rb := NewRouter(nil)
	rb.Use(func(_ context.Context, req *transport.Request) error {
		if req.Method == transport.MethodUpdate {
			return errors.Join(transport.ErrAuthentication, errors.New("bad proof"))
		}
		return nil
	})
	rb.Handle(transport.MethodPublish, func(_ context.Context, req *transport.Request) (any, error) {
		var v struct{ X int }
		return nil, req.Decode(&v)
	})
	rb.Handle(transport.MethodPing, func(context.Context, *transport.Request) (any, error) {
		return nil, errors.New("boom")
	})

	ga := newTestGRPC(t, n, a, NewRouter(nil))
	newTestGRPC(t, n, b, rb)
	ctx := context.Background()

	_, err := ga.Send(ctx, transport.MethodUpdate, []string{}, b)
	assert.ErrorIs(t, err, transport.ErrAuthentication)

	_, err = ga.Send(ctx, transport.MethodPublish, "not an object", b)
	assert.ErrorIs(t, err, transport.ErrMalformed)

	_, err = ga.Send(ctx, transport.MethodPing, map[string]string{}, b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = ga.Send(ctx, transport.MethodPing, map[string]string{}, contact.Contact{Address: "nowhere:1"})
	assert.ErrorIs(t, err, transport.ErrUnreachable)
}

func TestGRPCTransport_Lifecycle(t *testing.T) {
	n := newBufNet()
	g, err := NewGRPCTransport(&Config{Listener: n.listen("x:1"), Dialer: n.dial})
	require.NoError(t, err)

	_, err = g.Send(context.Background(), transport.MethodPing, nil, contact.Contact{Address: "x:1"})
	assert.ErrorIs(t, err, transport.ErrNotBound)

	addr, err := g.Listen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, addr, g.Addr())

	require.NoError(t, g.Bind(context.Background(), contact.Contact{ID: "aa", Address: "x:1"}, NewRouter(nil)))
	assert.Error(t, g.Bind(context.Background(), contact.Contact{ID: "aa", Address: "x:1"}, NewRouter(nil)))

	require.NoError(t, g.Close())
	require.NoError(t, g.Close())

	_, err = g.Send(context.Background(), transport.MethodPing, nil, contact.Contact{Address: "x:1"})
	assert.ErrorIs(t, err, transport.ErrClosed)

	_, err = NewGRPCTransport(&Config{})
	assert.Error(t, err)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
		back error
	}{
		{errors.Join(transport.ErrAuthentication, errors.New("x")), codes.Unauthenticated, transport.ErrAuthentication},
		{errors.Join(transport.ErrMalformed, errors.New("x")), codes.InvalidArgument, transport.ErrMalformed},
		{fmt.Errorf("%w: FOO", transport.ErrNoHandler), codes.Unimplemented, transport.ErrNoHandler},
		{context.DeadlineExceeded, codes.DeadlineExceeded, context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			mapped := mapErr(tt.err)
			assert.Equal(t, tt.code, status.Code(mapped))
			assert.ErrorIs(t, mapRPC(mapped), tt.back)
		})
	}

	assert.ErrorIs(t, mapRPC(status.Error(codes.Unavailable, "down")), transport.ErrUnreachable)
}
