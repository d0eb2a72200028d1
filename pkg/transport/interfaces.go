package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/rmacdonaldsmith/quasar-go/pkg/contact"
)

var (
	// ErrUnknownMethod is returned for a method outside the protocol
	ErrUnknownMethod = errors.New("unknown method")
	// ErrNoHandler is returned when no handler is registered for a method
	ErrNoHandler = errors.New("no handler registered")
	// ErrUnreachable is returned when the remote address cannot be reached
	ErrUnreachable = errors.New("peer unreachable")
	// ErrNotBound is returned when sending before Bind
	ErrNotBound = errors.New("transport not bound")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("transport closed")
	// ErrAuthentication marks errors raised by admission checks
	ErrAuthentication = errors.New("authentication failed")
	// ErrMalformed marks errors raised for undecodable parameters
	ErrMalformed = errors.New("malformed request")
)

// Request is an inbound call as seen by middleware and handlers
type Request struct {
	// Method is the RPC method being invoked
	Method Method

	// Fingerprint is the sender's claimed node id
	Fingerprint string

	// Sender is the sender's claimed contact
	Sender contact.Contact

	// Params holds the raw JSON parameters
	Params json.RawMessage
}

// Decode unmarshals the request parameters into v, wrapping failures with
// ErrMalformed
func (r *Request) Decode(v any) error {
	if len(r.Params) == 0 || string(r.Params) == "null" {
		return errors.Join(ErrMalformed, errors.New("missing params"))
	}
	if err := json.Unmarshal(r.Params, v); err != nil {
		return errors.Join(ErrMalformed, err)
	}
	return nil
}

// Handler serves a single method. The returned value is encoded as the JSON
// result.
type Handler func(ctx context.Context, req *Request) (any, error)

// Middleware runs before any handler. Returning an error rejects the request.
type Middleware func(ctx context.Context, req *Request) error

// Dispatcher routes inbound requests to handlers
type Dispatcher interface {
	Dispatch(ctx context.Context, req *Request) (json.RawMessage, error)
}

// Transport is the outbound side of the wire layer.
type Transport interface {
	io.Closer

	// Bind sets the local contact stamped on outbound requests and starts
	// delivering inbound requests to d.
	Bind(ctx context.Context, self contact.Contact, d Dispatcher) error

	// Send invokes method on the remote contact. params is JSON encoded.
	Send(ctx context.Context, method Method, params any, to contact.Contact) (json.RawMessage, error)
}
