package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"go.uber.org/zap"

	"github.com/rmacdonaldsmith/quasar-go/internal/identity"
	"github.com/rmacdonaldsmith/quasar-go/internal/node"
)

var errIdentityNotSolved = errors.New("identity has not been solved yet, run 'quasard' or 'quasard identity' first")

// loadIdentity loads the node key, creating it on first run, and the stored
// proof of work. A missing or invalid proof is solved again and saved.
func loadIdentity(ctx context.Context, cfg node.FileConfig, logger *zap.Logger) (*secp256k1.PrivateKey, *identity.Identity, error) {
	key, created, err := identity.LoadOrCreateKey(cfg.PrivateKeyPath)
	if err != nil {
		return nil, nil, err
	}
	if created {
		logger.Info("generated node key", zap.String("path", cfg.PrivateKeyPath))
	}

	id, err := storedIdentity(key, cfg)
	switch {
	case errors.Is(err, errIdentityNotSolved):
	case err != nil:
		return nil, nil, err
	default:
		valid, err := id.Validate(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("validate identity: %w", err)
		}
		if valid {
			return key, id, nil
		}
		logger.Warn("stored identity is invalid for the configured network, solving again")
	}

	id = identity.FromKey(key, cfg.IdentityOptions()...)
	logger.Info("solving identity proof of work",
		zap.Int("n", id.Difficulty().N),
		zap.Int("k", id.Difficulty().K))
	if err := id.Solve(ctx); err != nil {
		return nil, nil, err
	}
	if err := cfg.IdentityStore().Save(id); err != nil {
		return nil, nil, fmt.Errorf("save identity: %w", err)
	}
	logger.Info("identity solved", zap.String("fingerprint", id.FingerprintHex()))
	return key, id, nil
}

// storedIdentity rebuilds the identity saved for key without verifying it
func storedIdentity(key *secp256k1.PrivateKey, cfg node.FileConfig) (*identity.Identity, error) {
	nonce, proof, ok, err := cfg.IdentityStore().Load()
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	if !ok {
		return nil, errIdentityNotSolved
	}
	return identity.New(key.PubKey().SerializeCompressed(), nonce, proof, cfg.IdentityOptions()...), nil
}
