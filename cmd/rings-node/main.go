// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	keyPath    string
	passphrase string
)

var rootCmd = &cobra.Command{
	Use:   "rings-node",
	Short: "Rings CLI - Chord DHT overlay node and key management",
	Long: `Rings CLI operates a node on a decentralized peer-to-peer Chord
overlay: key generation, starting/joining the ring, and reading or
writing values stored at a ring position.`,
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: config cascade)")
	rootCmd.PersistentFlags().StringVarP(&keyPath, "key", "k", "", "Path to node private key file")
	rootCmd.PersistentFlags().StringVar(&passphrase, "passphrase", "", "Keystore passphrase (empty for an unencrypted hex key file)")

	// Note: Commands are registered in their respective files
	// - keygen.go: keygenCmd
	// - start.go: startCmd
	// - join.go: joinCmd
	// - put.go: putCmd
	// - get.go: getCmd
}
