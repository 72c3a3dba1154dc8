package main

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/sage-x-project/rings/config"
	"github.com/sage-x-project/rings/identity"
)

// loadConfig resolves --config against the usual config.Load cascade,
// falling back to sane standalone defaults (a single-process node with
// no config/ directory on disk) when nothing on disk overrides them.
func loadConfig() (*config.Config, error) {
	opts := config.DefaultLoaderOptions()
	if configPath != "" {
		opts.ConfigDir = configPath
	}
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Ring == nil {
		cfg.Ring = &config.RingConfig{}
	}
	if cfg.Signaling == nil {
		cfg.Signaling = &config.SignalingConfig{ListenAddr: ":7946"}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &config.MetricsConfig{}
	}
	if cfg.KeyStore == nil {
		cfg.KeyStore = &config.KeyStoreConfig{}
	}
	if cfg.Health == nil {
		cfg.Health = &config.HealthConfig{}
	}
	return cfg, nil
}

// loadKey loads the node's private key from --key (node.key in the
// working directory when --key is empty), decrypting with --passphrase.
// The config's keystore settings are not consulted.
func loadKey(cfg *config.Config) (*ecdsa.PrivateKey, error) {
	path := keyPath
	if path == "" {
		path = "node.key"
	}
	priv, err := identity.LoadEncryptedKey(path, passphrase)
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", path, err)
	}
	return priv, nil
}

// parseBootstrap splits a "did@url" peer reference, as accepted by
// --bootstrap and --target, into its Did and signaling URL.
func parseBootstrap(s string) (did identity.Did, url string, err error) {
	parts := strings.SplitN(s, "@", 2)
	if len(parts) != 2 {
		return identity.Did{}, "", fmt.Errorf("peer reference must be did@ws://host:port/path, got %q", s)
	}
	did, err = identity.ParseDid(parts[0])
	if err != nil {
		return identity.Did{}, "", fmt.Errorf("parse did: %w", err)
	}
	return did, parts[1], nil
}
