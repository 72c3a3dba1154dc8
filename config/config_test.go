package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "rings.yaml")

	configContent := `environment: staging
ring:
  bootstrap_peers:
    - "ws://seed.example.com:9000/signal"
  successor_list_size: 4
  ice_servers:
    - "stun:stun.example.com:3478"
keystore:
  type: file
  directory: /tmp/rings-keys
storage:
  backend: postgres
  postgres:
    host: db.internal
    port: 5432
    user: rings
    database: rings
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, []string{"ws://seed.example.com:9000/signal"}, cfg.Ring.BootstrapPeers)
	assert.Equal(t, 4, cfg.Ring.SuccessorListSize)
	assert.Equal(t, "file", cfg.KeyStore.Type)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, "db.internal", cfg.Storage.Postgres.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// disable default applied even though omitted from YAML
	assert.Equal(t, "disable", cfg.Storage.Postgres.SSLMode)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	yamlPath := filepath.Join(tmpDir, "rings.yaml")
	jsonPath := filepath.Join(tmpDir, "rings.json")

	cfg := &Config{
		Environment: "local",
		Ring:        &RingConfig{SuccessorListSize: 3},
		Logging:     &LoggingConfig{Level: "info"},
	}

	require.NoError(t, SaveToFile(cfg, yamlPath))
	require.NoError(t, SaveToFile(cfg, jsonPath))

	fromYAML, err := LoadFromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "local", fromYAML.Environment)

	fromJSON, err := LoadFromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "local", fromJSON.Environment)
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{
		Ring:      &RingConfig{},
		KeyStore:  &KeyStoreConfig{},
		Storage:   &StorageConfig{},
		Logging:   &LoggingConfig{},
		Session:   &SessionConfig{},
		Handshake: &HandshakeConfig{},
	}
	setDefaults(cfg)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 3, cfg.Ring.SuccessorListSize)
	assert.Equal(t, "encrypted-file", cfg.KeyStore.Type)
	assert.Equal(t, ".rings/keys", cfg.KeyStore.Directory)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 10000, cfg.Session.MaxSessions)
	assert.Equal(t, 3, cfg.Handshake.MaxRetries)
}

func TestValidateConfiguration(t *testing.T) {
	cfg := &Config{
		Environment: "production",
		Ring: &RingConfig{
			BootstrapPeers: []string{"ws://seed:9000"},
			ICEServers:     []string{"stun:stun.l.google.com:19302"},
		},
		KeyStore: &KeyStoreConfig{Type: "file"},
		Storage:  &StorageConfig{Backend: "memory"},
	}

	errs := ValidateConfiguration(cfg)
	for _, e := range errs {
		assert.NotEqual(t, "error", e.Level, "%s: %s", e.Field, e.Message)
	}
}

func TestValidateConfigurationRejectsBadBackend(t *testing.T) {
	cfg := &Config{
		Environment: "development",
		Storage:     &StorageConfig{Backend: "sqlite"},
	}

	errs := ValidateConfiguration(cfg)
	var found bool
	for _, e := range errs {
		if e.Field == "Storage.Backend" && e.Level == "error" {
			found = true
		}
	}
	assert.True(t, found, "expected an error for unsupported storage backend")
}
