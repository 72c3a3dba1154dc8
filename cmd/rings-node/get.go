package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var getTarget string

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Look up the value stored at a ring position derived from key",
	Long: `Get connects to --target (did@ws://host:port/path), an
already-running ring member, and sends a SearchVNode for the VNode
whose Did is the Keccak-256 hash of key, printing whatever blobs come
back.`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringVar(&getTarget, "target", "", "did@ws://host:port/path of any live ring member")
	getCmd.MarkFlagRequired("target")
}

func runGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	priv, err := loadKey(cfg)
	if err != nil {
		return err
	}
	targetDid, targetURL, err := parseBootstrap(getTarget)
	if err != nil {
		return err
	}

	n := newNode(priv, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := n.ConnectSignaling(ctx, targetURL, targetDid); err != nil {
		return fmt.Errorf("get: %w", err)
	}

	vid := vnodeID(key)
	node, err := n.Swarm.LookupVNode(ctx, targetDid, vid)
	if err != nil {
		return fmt.Errorf("get: lookup: %w", err)
	}
	if node == nil {
		fmt.Fprintf(os.Stdout, "key=%q not found (vid=%s)\n", key, vid.String())
		return nil
	}

	fmt.Fprintf(os.Stdout, "key=%q vid=%s:\n", key, vid.String())
	for _, blob := range node.Data {
		fmt.Fprintf(os.Stdout, "  %s\n", string(blob))
	}
	return nil
}
