package transport

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
)

// Config holds configuration for the gRPC transport
type Config struct {
	// ListenAddress is the "host:port" the server listens on
	ListenAddress string

	// Listener, when set, is served instead of listening on ListenAddress
	Listener net.Listener

	// Dialer, when set, replaces the default TCP dialer for outbound calls
	Dialer func(ctx context.Context, address string) (net.Conn, error)

	// RequestTimeout bounds every outbound call
	RequestTimeout time.Duration

	// MaxMessageSize bounds inbound and outbound messages in bytes
	MaxMessageSize int

	Logger *zap.Logger
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ListenAddress == "" && c.Listener == nil {
		return errors.New("listen address cannot be empty")
	}
	if c.RequestTimeout < 0 {
		return errors.New("request timeout cannot be negative")
	}
	return nil
}

// SetDefaults sets sensible default values for unset configuration fields
func (c *Config) SetDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 1024 * 1024 // 1MB
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
