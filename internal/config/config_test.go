package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "8083", cfg.Port)
	assert.Equal(t, "9083", cfg.GRPCPort)
	assert.Equal(t, StorePostgres, cfg.Store)
	assert.Equal(t, 90*time.Second, cfg.PresenceStaleAfter)
	assert.Equal(t, "audit.events", cfg.AuditExchange)
	assert.False(t, cfg.DebugRoutes)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load(viper.New(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collab.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: \"9000\"\nstore: memory\njwt_secret: from-file\npresence_stale_after: 30s\n"), 0o600))
	t.Setenv("PORT", "9100")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Port)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.PresenceStaleAfter)
}

func TestRejectsUnknownStore(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE", "mongo")

	_, err := Load(viper.New(), "")
	require.Error(t, err)
}
