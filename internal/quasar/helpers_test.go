package quasar

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rmacdonaldsmith/quasar-go/internal/directory"
	"github.com/rmacdonaldsmith/quasar-go/internal/eclipse"
	"github.com/rmacdonaldsmith/quasar-go/internal/identity"
	itransport "github.com/rmacdonaldsmith/quasar-go/internal/transport"
	"github.com/rmacdonaldsmith/quasar-go/pkg/contact"
	"github.com/rmacdonaldsmith/quasar-go/pkg/transport"
)

var testnet = identity.WithDifficulty(identity.TestnetDifficulty)

type testIdentity struct {
	key *secp256k1.PrivateKey
	id  *identity.Identity
}

func (ti testIdentity) ID() string {
	return ti.id.FingerprintHex()
}

const poolSize = 8

var (
	poolOnce sync.Once
	pool     []testIdentity
	poolErr  error
)

// testIdentities returns n solved identities shared by all tests
func testIdentities(t *testing.T, n int) []testIdentity {
	t.Helper()
	poolOnce.Do(func() {
		for i := 0; i < poolSize; i++ {
			key, err := identity.GenerateKey()
			if err != nil {
				poolErr = err
				return
			}
			id := identity.FromKey(key, testnet)
			if err := id.Solve(context.Background()); err != nil {
				poolErr = err
				return
			}
			pool = append(pool, testIdentity{key: key, id: id})
		}
	})
	require.NoError(t, poolErr)
	require.LessOrEqual(t, n, poolSize)
	return pool[:n]
}

// recordingTransport remembers every outbound call
type recordingTransport struct {
	transport.Transport

	mu   sync.Mutex
	sent []sentMessage
}

type sentMessage struct {
	method transport.Method
	to     contact.Contact
	params json.RawMessage
}

func (r *recordingTransport) Send(ctx context.Context, m transport.Method, params any, to contact.Contact) (json.RawMessage, error) {
	raw, _ := json.Marshal(params)
	r.mu.Lock()
	r.sent = append(r.sent, sentMessage{method: m, to: to, params: raw})
	r.mu.Unlock()
	return r.Transport.Send(ctx, m, params, to)
}

func (r *recordingTransport) messages(m transport.Method) []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sentMessage
	for _, s := range r.sent {
		if s.method == m {
			out = append(out, s)
		}
	}
	return out
}

func (r *recordingTransport) publications(t *testing.T) []Publication {
	t.Helper()
	var out []Publication
	for _, s := range r.messages(transport.MethodPublish) {
		var pub Publication
		require.NoError(t, json.Unmarshal(s.params, &pub))
		out = append(out, pub)
	}
	return out
}

type testNode struct {
	ti      testIdentity
	contact contact.Contact
	engine  *Engine
	dir     *directory.Directory
	router  *itransport.Router
	rec     *recordingTransport
}

func newTestNode(t *testing.T, network *itransport.MemoryNetwork, ti testIdentity, opts ...Option) *testNode {
	t.Helper()
	logger := zaptest.NewLogger(t)
	self := ti.id.Contact(fmt.Sprintf("%s:4000", ti.ID()[:12]))

	dir := directory.New(directory.Config{Self: self.ID})
	mem := network.Transport()
	rec := &recordingTransport{Transport: mem}

	engine, err := New(Config{
		Identity:        ti.id,
		PrivateKey:      ti.key,
		Directory:       dir,
		Transport:       rec,
		IdentityOptions: []identity.Option{testnet},
		Logger:          logger,
	}, opts...)
	require.NoError(t, err)

	router := itransport.NewRouter(logger)
	router.Use(eclipse.Middleware(logger, testnet))
	engine.Register(router)
	require.NoError(t, mem.Bind(context.Background(), self, router))

	t.Cleanup(func() {
		_ = engine.Close()
		_ = mem.Close()
	})
	return &testNode{ti: ti, contact: self, engine: engine, dir: dir, router: router, rec: rec}
}

// knows adds the contacts of others to n's directory
func (n *testNode) knows(others ...*testNode) {
	for _, o := range others {
		n.dir.Add(o.contact)
	}
}

// newPublication builds a publication signed by ti
func newPublication(ti testIdentity, contents []byte, ttl int) Publication {
	id := uuid.NewString()
	return Publication{
		UUID:       id,
		Topic:      ti.ID(),
		Contents:   hex.EncodeToString(contents),
		Origin:     signOrigin(ti.key, ti.id, id, contents),
		Publishers: []string{ti.ID()},
		TTL:        ttl,
	}
}

// deliver dispatches pub to n through its router as if sent by from
func (n *testNode) deliver(t *testing.T, from contact.Contact, pub Publication) (json.RawMessage, error) {
	t.Helper()
	raw, err := json.Marshal(pub)
	require.NoError(t, err)
	return n.router.Dispatch(context.Background(), &transport.Request{
		Method:      transport.MethodPublish,
		Fingerprint: from.ID,
		Sender:      from,
		Params:      raw,
	})
}

// deliveries collects handler invocations
type deliveries struct {
	mu    sync.Mutex
	calls [][2]string
}

func (d *deliveries) handler(contents, topic string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, [2]string{contents, topic})
}

func (d *deliveries) all() [][2]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][2]string(nil), d.calls...)
}
