package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSubscriptionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "Manage subscriptions",
		Long:  "List and delete this client's subscriptions",
	}

	cmd.AddCommand(newSubscriptionsListCommand())
	cmd.AddCommand(newSubscriptionsDeleteCommand())

	return cmd
}

func newSubscriptionsListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all subscriptions for this client",
		RunE:  runSubscriptionsList,
	}

	return cmd
}

func newSubscriptionsDeleteCommand() *cobra.Command {
	var subscriptionID string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a subscription",
		Long: `Delete a subscription by its ID. The node keeps advertising the topic
to the overlay until it restarts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscriptionsDelete(cmd, subscriptionID)
		},
	}

	cmd.Flags().StringVar(&subscriptionID, "id", "", "Subscription ID to delete (required)")
	if err := cmd.MarkFlagRequired("id"); err != nil {
		panic(fmt.Sprintf("Failed to mark id as required: %v", err))
	}

	return cmd
}

func runSubscriptionsList(cmd *cobra.Command, args []string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	subscriptions, err := client.ListSubscriptions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(subscriptions) == 0 {
		fmt.Fprintln(out, "No subscriptions found")
		return nil
	}

	fmt.Fprintf(out, "Found %d subscription(s):\n\n", len(subscriptions))
	for i, sub := range subscriptions {
		fmt.Fprintf(out, "%d. ID: %s\n", i+1, sub.ID)
		fmt.Fprintf(out, "   Topic: %s\n", sub.Topic)
		fmt.Fprintf(out, "   Created: %s\n", sub.CreatedAt.Format("2006-01-02 15:04:05"))
		if i < len(subscriptions)-1 {
			fmt.Fprintln(out)
		}
	}

	return nil
}

func runSubscriptionsDelete(cmd *cobra.Command, subscriptionID string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.DeleteSubscription(ctx, subscriptionID); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Subscription %s deleted\n", subscriptionID)
	return nil
}
