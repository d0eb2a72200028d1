package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/quasar-go/internal/httpapi"
	"github.com/rmacdonaldsmith/quasar-go/internal/identity"
	"github.com/rmacdonaldsmith/quasar-go/internal/logging"
)

func newIdentityCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Show the node identity, solving it if needed",
		Long: `Print the node fingerprint, public key and contact URL. The identity
proof of work is solved and saved first when the data directory has none.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			logger, err := logging.New(logging.Config{Level: cfg.Log.Level})
			if err != nil {
				return err
			}

			_, id, err := loadIdentity(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			address := cfg.AdvertiseAddress
			if address == "" {
				address = cfg.ListenAddress
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Fingerprint: %s\n", id.FingerprintHex())
			fmt.Fprintf(out, "Public Key: %s\n", hex.EncodeToString(id.PublicKey))
			fmt.Fprintf(out, "Nonce: %d\n", id.Nonce)
			fmt.Fprintf(out, "Difficulty: n=%d k=%d\n", id.Difficulty().N, id.Difficulty().K)
			fmt.Fprintf(out, "Contact: %s\n", id.Contact(address).URL())
			return nil
		},
	}
}

func newTokenCommand(f *flags) *cobra.Command {
	var clientID string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a control API token",
		Long: `Sign a control API token with the configured control secret. Use
--client-id admin for a token that can call the admin endpoints.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.load(cmd)
			if err != nil {
				return err
			}
			if err := ensureControlSecret(&cfg); err != nil {
				return err
			}

			key, _, err := identity.LoadOrCreateKey(cfg.PrivateKeyPath)
			if err != nil {
				return err
			}
			id, err := storedIdentity(key, cfg)
			if err != nil {
				return err
			}

			// Tokens are issued by the node fingerprint
			auth := httpapi.NewJWTAuth(cfg.ControlSecret, id.FingerprintHex())
			token, expiresAt, err := auth.GenerateToken(clientID, clientID == httpapi.AdminClientID)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "Expires: %s\n", expiresAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}

	cmd.Flags().StringVar(&clientID, "client-id", httpapi.AdminClientID, "Client ID the token is issued to")
	return cmd
}
