// Package transport defines the request/response contract between quasar nodes.
//
// This package defines the core abstractions for the overlay wire layer:
//   - Method: the closed set of RPC methods a node understands (PING, PUBLISH,
//     SUBSCRIBE, UPDATE). Handlers are resolved through a table indexed by
//     Method rather than by string lookup.
//   - Request: an inbound call, carrying the sender's claimed fingerprint and
//     contact together with the raw JSON parameters.
//   - Handler and Middleware: the functions a Dispatcher runs for a request.
//     Middleware runs first, in registration order, and may short-circuit by
//     returning an error.
//   - Transport: the outbound side (Send) plus binding of the local dispatcher.
//
// Timeouts are owned by the transport implementation; callers treat a timed
// out Send like any other failed peer.
//
// Example usage:
//
//	result, err := t.Send(ctx, transport.MethodSubscribe, []string{}, peer)
//	if err != nil {
//		return err
//	}
//	var levels []string
//	err = json.Unmarshal(result, &levels)
package transport
