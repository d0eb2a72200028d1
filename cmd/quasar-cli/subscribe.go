package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newSubscribeCommand() *cobra.Command {
	var topic string

	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Follow a publisher",
		Long: `Create a subscription to a publisher fingerprint. The node advertises the
interest to the overlay. To actually receive publications, use the 'stream' command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(cmd, topic)
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Publisher fingerprint to follow, or * for everything delivered here (required)")
	if err := cmd.MarkFlagRequired("topic"); err != nil {
		panic(fmt.Sprintf("Failed to mark topic as required: %v", err))
	}

	return cmd
}

func runSubscribe(cmd *cobra.Command, topic string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Creating subscription to topic '%s'...\n", topic)

	response, err := client.CreateSubscription(ctx, topic)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	fmt.Fprintf(out, "✅ Subscription created successfully!\n")
	fmt.Fprintf(out, "Subscription ID: %s\n", response.ID)
	fmt.Fprintf(out, "Topic: %s\n", response.Topic)
	fmt.Fprintf(out, "Client ID: %s\n", response.ClientID)
	fmt.Fprintf(out, "Created At: %s\n", response.CreatedAt.Format("2006-01-02 15:04:05"))

	return nil
}
