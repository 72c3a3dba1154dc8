package main

import (
	"context"
	"fmt"
	"os"
	"time"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/sage-x-project/rings/dht"
	"github.com/sage-x-project/rings/identity"
)

var (
	putTarget string
	putExtend bool
)

var putCmd = &cobra.Command{
	Use:   "put <key> <value>",
	Short: "Store a value at a ring position derived from key",
	Long: `Put connects to --target (did@ws://host:port/path), an
already-running ring member, and sends an OperateVNode for the VNode
whose Did is the Keccak-256 hash of key. The request is relayed
hop-by-hop to whichever node actually owns that position.`,
	Args: cobra.ExactArgs(2),
	RunE: runPut,
}

func init() {
	rootCmd.AddCommand(putCmd)
	putCmd.Flags().StringVar(&putTarget, "target", "", "did@ws://host:port/path of any live ring member")
	putCmd.Flags().BoolVar(&putExtend, "extend", false, "append to the stored list instead of overwriting it")
	putCmd.MarkFlagRequired("target")
}

// vnodeID derives a VNode's ring position from an arbitrary string key,
// the same way identity.Did derives a node's position from a public key:
// the low 160 bits of its Keccak-256 hash.
func vnodeID(key string) identity.Did {
	var d identity.Did
	h := gethcrypto.Keccak256([]byte(key))
	copy(d[:], h[len(h)-len(d):])
	return d
}

func runPut(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	priv, err := loadKey(cfg)
	if err != nil {
		return err
	}
	targetDid, targetURL, err := parseBootstrap(putTarget)
	if err != nil {
		return err
	}

	n := newNode(priv, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := n.ConnectSignaling(ctx, targetURL, targetDid); err != nil {
		return fmt.Errorf("put: %w", err)
	}

	vid := vnodeID(key)
	opKind := dht.OpOverwrite
	if putExtend {
		opKind = dht.OpExtend
	}
	op := dht.VNodeOp{Kind: opKind, Node: dht.VNode{Did: vid, Data: [][]byte{[]byte(value)}}}
	if err := n.Swarm.StoreVNode(ctx, targetDid, op); err != nil {
		return fmt.Errorf("put: store: %w", err)
	}

	fmt.Fprintf(os.Stdout, "stored key=%q at vid=%s\n", key, vid.String())
	return nil
}
