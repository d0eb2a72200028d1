package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin commands (requires admin privileges)",
		Long:  "Administrative commands for monitoring a Quasar node. Pass a token from 'quasard token' with --token.",
	}

	cmd.AddCommand(newAdminClientsCommand())
	cmd.AddCommand(newAdminSubscriptionsCommand())
	cmd.AddCommand(newAdminStatsCommand())

	return cmd
}

func newAdminClientsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "List all connected clients",
		Long:  "List all clients currently connected to the node",
		RunE:  runAdminClients,
	}

	return cmd
}

func newAdminSubscriptionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "List all subscriptions across all clients",
		Long:  "List all subscriptions in the system (admin view)",
		RunE:  runAdminSubscriptions,
	}

	return cmd
}

func newAdminStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show system statistics",
		Long:  "Display node statistics",
		RunE:  runAdminStats,
	}

	return cmd
}

func runAdminClients(cmd *cobra.Command, args []string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Fetching connected clients...")

	response, err := client.AdminListClients(ctx)
	if err != nil {
		return fmt.Errorf("failed to list clients: %w", err)
	}

	if len(response.Clients) == 0 {
		fmt.Fprintln(out, "No clients currently connected")
		return nil
	}

	fmt.Fprintf(out, "\nFound %d connected client(s):\n\n", len(response.Clients))
	for i, clientInfo := range response.Clients {
		fmt.Fprintf(out, "%d. Client ID: %s\n", i+1, clientInfo.ID)
		fmt.Fprintf(out, "   Authenticated: %t\n", clientInfo.Authenticated)
		fmt.Fprintf(out, "   Connected At: %s\n", clientInfo.ConnectedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "   Subscriptions: %d topics\n", len(clientInfo.Subscriptions))
		if len(clientInfo.Subscriptions) > 0 {
			fmt.Fprintf(out, "   Topics: %v\n", clientInfo.Subscriptions)
		}
		if i < len(response.Clients)-1 {
			fmt.Fprintln(out)
		}
	}

	return nil
}

func runAdminSubscriptions(cmd *cobra.Command, args []string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Fetching all subscriptions...")

	response, err := client.AdminListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}

	if len(response.Subscriptions) == 0 {
		fmt.Fprintln(out, "No subscriptions found in the system")
		return nil
	}

	fmt.Fprintf(out, "\nFound %d subscription(s) across all clients:\n\n", len(response.Subscriptions))
	for i, sub := range response.Subscriptions {
		fmt.Fprintf(out, "%d. Subscription ID: %s\n", i+1, sub.ID)
		fmt.Fprintf(out, "   Topic: %s\n", sub.Topic)
		fmt.Fprintf(out, "   Client ID: %s\n", sub.ClientID)
		fmt.Fprintf(out, "   Created At: %s\n", sub.CreatedAt.Format("2006-01-02 15:04:05"))
		if i < len(response.Subscriptions)-1 {
			fmt.Fprintln(out)
		}
	}

	return nil
}

func runAdminStats(cmd *cobra.Command, args []string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Fetching system statistics...")

	response, err := client.AdminGetStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	fmt.Fprintf(out, "\n📊 Node Statistics:\n\n")
	fmt.Fprintf(out, "Connected Clients: %d\n", response.ConnectedClients)
	fmt.Fprintf(out, "Total Subscriptions: %d\n", response.TotalSubscriptions)
	fmt.Fprintf(out, "Overlay Topics: %d\n", response.OverlayTopics)
	fmt.Fprintf(out, "Known Peers: %d\n", response.KnownPeers)
	fmt.Fprintf(out, "Published: %d\n", response.Published)
	fmt.Fprintf(out, "Delivered: %d\n", response.Delivered)

	return nil
}
