package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newNodeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Inspect the node",
		Long:  "Show the node identity and the topic filter it advertises to neighbours.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Show the node identity and contact URL",
		RunE:  runNodeInfo,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "filter",
		Short: "Show the node's attenuated Bloom filter",
		RunE:  runNodeFilter,
	})

	return cmd
}

func newPeersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "List the peers the node knows, closest first",
		RunE:  runPeers,
	}
}

func runNodeInfo(cmd *cobra.Command, args []string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	info, err := client.GetNode(ctx)
	if err != nil {
		return fmt.Errorf("failed to get node info: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Fingerprint: %s\n", info.ID)
	fmt.Fprintf(out, "Address: %s\n", info.Address)
	fmt.Fprintf(out, "Contact: %s\n", info.URL)
	fmt.Fprintf(out, "Public Key: %s\n", info.PublicKey)
	fmt.Fprintf(out, "Nonce: %d\n", info.Nonce)
	return nil
}

func runNodeFilter(cmd *cobra.Command, args []string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	filter, err := client.GetFilter(ctx)
	if err != nil {
		return fmt.Errorf("failed to get filter: %w", err)
	}

	out := cmd.OutOrStdout()
	for i, level := range filter.Levels {
		fmt.Fprintf(out, "Level %d: %s\n", i, level)
	}
	return nil
}

func runPeers(cmd *cobra.Command, args []string) error {
	if err := requireAuthentication(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	peers, err := client.GetPeers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list peers: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(peers.Peers) == 0 {
		fmt.Fprintln(out, "No known peers")
		return nil
	}

	fmt.Fprintf(out, "Found %d peer(s):\n\n", len(peers.Peers))
	for i, peer := range peers.Peers {
		fmt.Fprintf(out, "%d. %s\n", i+1, peer.URL)
	}
	return nil
}
