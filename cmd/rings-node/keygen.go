package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sage-x-project/rings/identity"
)

var keygenOutput string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new node secp256k1 key pair",
	Long: `Generate a new secp256k1 key pair and print the node's Did (ring
address). The key is written to --output (or --key), sealed with
--passphrase when one is given.`,
	RunE: runKeygen,
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVarP(&keygenOutput, "output", "o", "", "Output key file (default: ./node.key)")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	priv, err := identity.GenerateSecretKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	did := identity.DidFromPrivateKey(priv)

	out := keygenOutput
	if out == "" {
		out = keyPath
	}
	if out == "" {
		out = "node.key"
	}

	if err := identity.SaveEncryptedKey(out, priv, passphrase); err != nil {
		return fmt.Errorf("save key: %w", err)
	}

	fmt.Fprintf(os.Stdout, "did: %s\nkey: %s\n", did.String(), out)
	return nil
}
