// Package eclipse admits only peers whose identities carry a valid
// proof-of-work, making it expensive to surround a node with Sybil contacts.
package eclipse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rmacdonaldsmith/quasar-go/internal/identity"
	"github.com/rmacdonaldsmith/quasar-go/pkg/transport"
)

var (
	// ErrFingerprintMismatch is returned when the claimed node id is not the
	// hash of the presented proof
	ErrFingerprintMismatch = errors.New("fingerprint does not match the proof hash")
	// ErrInvalidIdentity is returned when the proof-of-work does not verify
	ErrInvalidIdentity = errors.New("identity proof-of-work is invalid")
)

// Middleware returns a transport middleware that rejects every request whose
// sender identity does not validate. opts configure the identities rebuilt
// from senders (the network difficulty in particular).
func Middleware(logger *zap.Logger, opts ...identity.Option) transport.Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(ctx context.Context, req *transport.Request) error {
		id, err := identity.FromContact(req.Sender, opts...)
		if err != nil {
			return reject(logger, req, fmt.Errorf("%w: %v", ErrInvalidIdentity, err))
		}

		// The directory keys senders by Sender.ID, so it must name the
		// proven fingerprint too
		if id.FingerprintHex() != req.Fingerprint || !strings.EqualFold(req.Sender.ID, req.Fingerprint) {
			return reject(logger, req, ErrFingerprintMismatch)
		}

		ok, err := id.Validate(ctx)
		if err != nil {
			return reject(logger, req, fmt.Errorf("%w: %v", ErrInvalidIdentity, err))
		}
		if !ok {
			return reject(logger, req, ErrInvalidIdentity)
		}
		return nil
	}
}

func reject(logger *zap.Logger, req *transport.Request, err error) error {
	logger.Debug("rejected request",
		zap.Stringer("method", req.Method),
		zap.String("fingerprint", req.Fingerprint),
		zap.String("address", req.Sender.Address),
		zap.Error(err))
	return errors.Join(transport.ErrAuthentication, err)
}
