package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check node health",
		Long:  "Check the health status of the Quasar node",
		RunE:  runHealth,
	}

	return cmd
}

func runHealth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	health, err := client.GetHealth(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	out := cmd.OutOrStdout()
	if health.Healthy {
		fmt.Fprintf(out, "✅ Node is healthy!\n")
	} else {
		fmt.Fprintf(out, "❌ Node is not healthy!\n")
	}
	fmt.Fprintf(out, "Identity Valid: %t\n", health.IdentityValid)
	fmt.Fprintf(out, "Transport: %t\n", health.TransportHealthy)
	fmt.Fprintf(out, "Known Peers: %d\n", health.KnownPeers)
	fmt.Fprintf(out, "Connected Clients: %d\n", health.ConnectedClients)
	if health.Message != "" {
		fmt.Fprintf(out, "Message: %s\n", health.Message)
	}

	if !health.Healthy {
		return fmt.Errorf("node is unhealthy")
	}
	return nil
}
