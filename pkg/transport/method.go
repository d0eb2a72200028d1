package transport

import (
	"fmt"
	"strings"
)

// Method identifies an RPC method of the overlay protocol
type Method int

const (
	// MethodPing asks a peer for its contact
	MethodPing Method = iota
	// MethodPublish carries a gossip publication
	MethodPublish
	// MethodSubscribe pulls the peer's topic filter
	MethodSubscribe
	// MethodUpdate pushes our topic filter to the peer
	MethodUpdate

	methodCount
)

// Methods lists every method in dispatch table order
var Methods = []Method{MethodPing, MethodPublish, MethodSubscribe, MethodUpdate}

// MethodCount is the size of a dispatch table indexed by Method
const MethodCount = int(methodCount)

func (m Method) String() string {
	switch m {
	case MethodPing:
		return "PING"
	case MethodPublish:
		return "PUBLISH"
	case MethodSubscribe:
		return "SUBSCRIBE"
	case MethodUpdate:
		return "UPDATE"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// Valid reports whether m is one of the protocol methods
func (m Method) Valid() bool {
	return m >= 0 && m < methodCount
}

// ParseMethod resolves a wire method name
func ParseMethod(name string) (Method, error) {
	for _, m := range Methods {
		if strings.EqualFold(m.String(), name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
}

// MarshalText encodes the method by name
func (m Method) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMethod, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText decodes a method name
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
