package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rmacdonaldsmith/quasar-go/pkg/contact"
	"github.com/rmacdonaldsmith/quasar-go/pkg/transport"
)

// MemoryNetwork connects in-process transports by address. It lets many
// nodes share one test process without sockets.
type MemoryNetwork struct {
	mu    sync.RWMutex
	nodes map[string]transport.Dispatcher
	down  map[string]bool
}

// NewMemoryNetwork creates an empty network
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		nodes: make(map[string]transport.Dispatcher),
		down:  make(map[string]bool),
	}
}

// Transport returns a new endpoint on the network
func (n *MemoryNetwork) Transport() *MemoryTransport {
	return &MemoryTransport{network: n}
}

// SetDown makes address unreachable (true) or reachable again (false)
func (n *MemoryNetwork) SetDown(address string, down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down[address] = down
}

func (n *MemoryNetwork) lookup(address string) (transport.Dispatcher, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.down[address] {
		return nil, false
	}
	d, ok := n.nodes[address]
	return d, ok
}

// MemoryTransport is a transport.Transport on a MemoryNetwork
type MemoryTransport struct {
	network *MemoryNetwork

	mu     sync.RWMutex
	self   contact.Contact
	bound  bool
	closed bool
}

// Bind registers d under self.Address
func (t *MemoryTransport) Bind(_ context.Context, self contact.Contact, d transport.Dispatcher) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return transport.ErrClosed
	}

	t.network.mu.Lock()
	defer t.network.mu.Unlock()
	if _, taken := t.network.nodes[self.Address]; taken {
		return fmt.Errorf("address %s already bound", self.Address)
	}
	t.network.nodes[self.Address] = d
	t.self = self
	t.bound = true
	return nil
}

// Send round-trips params and the result through JSON so handlers never
// share memory with the caller.
func (t *MemoryTransport) Send(ctx context.Context, method transport.Method, params any, to contact.Contact) (json.RawMessage, error) {
	t.mu.RLock()
	self, bound, closed := t.self, t.bound, t.closed
	t.mu.RUnlock()
	if closed {
		return nil, transport.ErrClosed
	}
	if !bound {
		return nil, transport.ErrNotBound
	}

	d, ok := t.network.lookup(to.Address)
	if !ok {
		return nil, fmt.Errorf("%w: %s", transport.ErrUnreachable, to.Address)
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return d.Dispatch(ctx, &transport.Request{
		Method:      method,
		Fingerprint: self.ID,
		Sender:      self,
		Params:      raw,
	})
}

// Close unregisters the endpoint
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.bound {
		t.network.mu.Lock()
		delete(t.network.nodes, t.self.Address)
		t.network.mu.Unlock()
	}
	return nil
}

var _ transport.Transport = (*MemoryTransport)(nil)
