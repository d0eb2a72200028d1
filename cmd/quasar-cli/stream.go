package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/quasar-go/pkg/httpclient"
)

func newStreamCommand() *cobra.Command {
	var (
		topic      string
		bufferSize int
		hexOnly    bool
	)

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream publications in real-time",
		Long: `Stream delivered publications using Server-Sent Events. With --topic the
node follows that publisher for the lifetime of the stream; without it every
subscription of this client is streamed. Press Ctrl+C to stop streaming.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			// Handle Ctrl+C gracefully
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case <-sigChan:
					fmt.Fprintln(cmd.OutOrStdout(), "\n🛑 Stopping stream...")
					cancel()
				case <-ctx.Done():
				}
			}()

			return runStream(ctx, cmd.OutOrStdout(), topic, bufferSize, hexOnly)
		},
	}

	cmd.Flags().StringVar(&topic, "topic", "", "Publisher fingerprint to follow (optional - streams all subscriptions if not specified)")
	cmd.Flags().IntVar(&bufferSize, "buffer-size", 100, "Publication buffer size")
	cmd.Flags().BoolVar(&hexOnly, "hex", false, "Print contents as hex even when they are text")

	return cmd
}

func runStream(ctx context.Context, out io.Writer, topic string, bufferSize int, hexOnly bool) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	config := httpclient.StreamConfig{
		Topic:                topic,
		BufferSize:           bufferSize,
		MaxReconnectAttempts: 0, // Infinite retries
	}

	fmt.Fprintf(out, "🌊 Starting publication stream from %s", serverURL)
	if topic != "" {
		fmt.Fprintf(out, " (topic: %s)", topic)
	} else {
		fmt.Fprintf(out, " (all subscriptions)")
	}
	fmt.Fprintln(out, "...")

	streamClient, err := client.Stream(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to start streaming: %w", err)
	}
	defer func() {
		if err := streamClient.Close(); err != nil {
			fmt.Fprintf(out, "Warning: failed to close stream client: %v\n", err)
		}
	}()

	count := 0
	errs := streamClient.Errors()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(out, "\n✅ Stream stopped. Received %d publication(s).\n", count)
			return nil

		case msg, ok := <-streamClient.Events():
			if !ok {
				fmt.Fprintf(out, "\n🔌 Stream closed. Received %d publication(s).\n", count)
				return nil
			}
			count++
			printPublication(out, msg, count, hexOnly)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			// Errors are non-fatal, the client reconnects
			fmt.Fprintf(out, "❌ Stream error: %v\n", err)
		}
	}
}

func printPublication(out io.Writer, msg httpclient.StreamMessage, count int, hexOnly bool) {
	fmt.Fprintf(out, "📨 Publication #%d:\n", count)
	fmt.Fprintf(out, "   ID: %s\n", msg.ID)
	fmt.Fprintf(out, "   Topic: %s\n", msg.Topic)
	fmt.Fprintf(out, "   Time: %s\n", msg.ReceivedAt.Format("2006-01-02 15:04:05.000"))
	fmt.Fprintf(out, "   Size: %d bytes\n", len(msg.Data))
	if msg.Text != "" && !hexOnly {
		fmt.Fprintf(out, "   Text: %s\n", msg.Text)
	} else {
		fmt.Fprintf(out, "   Contents: %s\n", msg.Contents)
	}
	fmt.Fprintln(out)
}
