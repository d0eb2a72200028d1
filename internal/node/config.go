package node

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/rmacdonaldsmith/quasar-go/internal/identity"
	"github.com/rmacdonaldsmith/quasar-go/internal/quasar"
	itransport "github.com/rmacdonaldsmith/quasar-go/internal/transport"
	"github.com/rmacdonaldsmith/quasar-go/pkg/transport"
)

var (
	// ErrNilPrivateKey is returned when no private key is configured
	ErrNilPrivateKey = errors.New("private key cannot be nil")
	// ErrNilIdentity is returned when no identity is configured
	ErrNilIdentity = errors.New("identity cannot be nil")
	// ErrUnsolvedIdentity is returned when the identity has no proof yet
	ErrUnsolvedIdentity = errors.New("identity must be solved before the node starts")
	// ErrKeyMismatch is returned when the identity was not derived from the key
	ErrKeyMismatch = errors.New("identity public key does not match the private key")
	// ErrInvalidListenAddress is returned when listen address is invalid
	ErrInvalidListenAddress = errors.New("listen address cannot be empty")
)

// Config represents configuration for a Node
type Config struct {
	// PrivateKey signs the node's publications
	PrivateKey *secp256k1.PrivateKey

	// Identity is the solved proof-of-work identity derived from PrivateKey
	Identity *identity.Identity

	// ListenAddress is where the peer transport listens ("host:port")
	ListenAddress string

	// AdvertiseAddress is the address put in the node's contact. Defaults
	// to the transport's listen address.
	AdvertiseAddress string

	// Seeds are contact URLs or "host:port" addresses to bootstrap from
	Seeds []string

	// Testnet lowers the proof-of-work difficulty expected from peers
	Testnet bool

	// TransportConfig configures the gRPC transport. Ignored when Transport
	// is set.
	TransportConfig *itransport.Config

	// Transport overrides the gRPC transport, for in-process networks
	Transport transport.Transport

	// EngineOptions are passed to the gossip engine
	EngineOptions []quasar.Option

	// Registerer receives the gossip metrics
	Registerer prometheus.Registerer

	Logger *zap.Logger
}

// NewConfig creates a new Node configuration with safe defaults
func NewConfig(key *secp256k1.PrivateKey, id *identity.Identity, listenAddress string) *Config {
	return &Config{
		PrivateKey:    key,
		Identity:      id,
		ListenAddress: listenAddress,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.PrivateKey == nil {
		return ErrNilPrivateKey
	}
	if c.Identity == nil {
		return ErrNilIdentity
	}
	if !bytes.Equal(c.Identity.PublicKey, c.PrivateKey.PubKey().SerializeCompressed()) {
		return ErrKeyMismatch
	}
	if len(c.Identity.Proof) == 0 {
		return ErrUnsolvedIdentity
	}
	if c.ListenAddress == "" && c.AdvertiseAddress == "" {
		return ErrInvalidListenAddress
	}

	if c.Transport == nil && c.TransportConfig != nil {
		if err := c.TransportConfig.Validate(); err != nil {
			return fmt.Errorf("invalid transport config: %w", err)
		}
	}
	return nil
}

// IdentityOptions returns the options used to rebuild peer identities
func (c *Config) IdentityOptions() []identity.Option {
	if c.Testnet {
		return []identity.Option{identity.WithDifficulty(identity.TestnetDifficulty)}
	}
	return []identity.Option{identity.WithDifficulty(identity.DefaultDifficulty)}
}

// WithSeeds sets the bootstrap seeds
func (c *Config) WithSeeds(seeds ...string) *Config {
	c.Seeds = append(c.Seeds, seeds...)
	return c
}

// WithTestnet toggles the reduced proof-of-work difficulty
func (c *Config) WithTestnet(enabled bool) *Config {
	c.Testnet = enabled
	return c
}

// WithAdvertiseAddress sets the address peers are told to use
func (c *Config) WithAdvertiseAddress(address string) *Config {
	c.AdvertiseAddress = address
	return c
}

// WithTransportConfig sets the gRPC transport configuration
func (c *Config) WithTransportConfig(config *itransport.Config) *Config {
	c.TransportConfig = config
	return c
}

// WithTransport replaces the gRPC transport
func (c *Config) WithTransport(t transport.Transport) *Config {
	c.Transport = t
	return c
}

// WithEngineOptions appends gossip engine options
func (c *Config) WithEngineOptions(opts ...quasar.Option) *Config {
	c.EngineOptions = append(c.EngineOptions, opts...)
	return c
}

// WithRegisterer sets the metrics registerer
func (c *Config) WithRegisterer(r prometheus.Registerer) *Config {
	c.Registerer = r
	return c
}

// WithLogger sets the logger
func (c *Config) WithLogger(logger *zap.Logger) *Config {
	c.Logger = logger
	return c
}
