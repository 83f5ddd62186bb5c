package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, 10*time.Minute, cfg.Saga.LeaseTTL)
	require.Equal(t, 3, cfg.Saga.RetryAttempts)
	require.Equal(t, 4, cfg.Tracker.Workers)
	require.Equal(t, 50, cfg.Tracker.MaxResults)
	require.Equal(t, "crewdeck.triggers", cfg.Queue.Name)
	require.False(t, cfg.Queue.Enabled)
	require.Equal(t, 90, cfg.Maintenance.AuditRetentionDays)
	require.InDelta(t, 5.0, cfg.Integrations.Chat.RatePerSecond, 0.001)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	contents := `
server:
  port: 9100
saga:
  lease_ttl: 45s
integrations:
  chat:
    base_url: https://chat.example.com/api
    token: chat-token
    rate_per_second: 2.5
tracker:
  workers: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(contents), 0o600))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	require.Equal(t, 9100, cfg.Server.Port)
	require.Equal(t, 45*time.Second, cfg.Saga.LeaseTTL)
	require.Equal(t, "https://chat.example.com/api", cfg.Integrations.Chat.BaseURL)
	require.InDelta(t, 2.5, cfg.Integrations.Chat.RatePerSecond, 0.001)
	require.Equal(t, 8, cfg.Tracker.Workers)
	// Untouched sections keep their defaults.
	require.Equal(t, 50, cfg.Tracker.MaxResults)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("CREWDECK_SERVER_PORT", "9200")
	t.Setenv("CREWDECK_INTEGRATIONS_TRACKER_TOKEN", "env-token")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 9200, cfg.Server.Port)
	require.Equal(t, "env-token", cfg.Integrations.Tracker.Token)
}

func TestApplyRuntimeDefaultsGeneratesVaultKey(t *testing.T) {
	cfg := &Config{}
	generated, err := ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	require.True(t, generated["vault.encryption_key"])
	require.Len(t, cfg.Vault.EncryptionKey, vaultSecretBytes*2)

	// A configured key is left alone.
	cfg2 := &Config{}
	cfg2.Vault.EncryptionKey = "configured"
	generated, err = ApplyRuntimeDefaults(cfg2)
	require.NoError(t, err)
	require.Empty(t, generated)
	require.Equal(t, "configured", cfg2.Vault.EncryptionKey)
}
