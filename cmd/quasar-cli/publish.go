package main

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/quasar-go/pkg/httpclient"
)

func newPublishCommand() *cobra.Command {
	var (
		message  string
		contents string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish to this node's followers",
		Long: `Publish a publication under this node's fingerprint. Pass the contents
either as plain text with --message or hex encoded with --hex.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, message, contents)
		},
	}

	cmd.Flags().StringVar(&message, "message", "", "Publication contents as text")
	cmd.Flags().StringVar(&contents, "hex", "", "Publication contents, hex encoded")
	cmd.MarkFlagsMutuallyExclusive("message", "hex")
	cmd.MarkFlagsOneRequired("message", "hex")

	return cmd
}

func runPublish(cmd *cobra.Command, message, contents string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	var raw []byte
	if contents != "" {
		var err error
		if raw, err = hex.DecodeString(contents); err != nil {
			return fmt.Errorf("invalid hex contents: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Publishing...")

	var (
		response *httpclient.PublishResponse
		err      error
	)
	if raw != nil {
		response, err = client.Publish(ctx, raw)
	} else {
		response, err = client.PublishMessage(ctx, message)
	}
	if err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}

	fmt.Fprintf(out, "✅ Published successfully!\n")
	fmt.Fprintf(out, "Topic: %s\n", response.Topic)
	fmt.Fprintf(out, "Accepted by %d neighbour(s)\n", len(response.Accepted))
	for _, id := range response.Accepted {
		fmt.Fprintf(out, "  %s\n", id)
	}
	fmt.Fprintf(out, "Timestamp: %s\n", response.PublishedAt.Format("2006-01-02 15:04:05"))

	return nil
}
