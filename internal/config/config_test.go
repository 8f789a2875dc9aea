package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("should fall back to defaults when file is missing", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

		require.NoError(t, err)
		assert.Equal(t, "Asia/Ho_Chi_Minh", cfg.Timezone)
		assert.Equal(t, 24*time.Hour, cfg.Staging.MaxAge)
		assert.Equal(t, 300*time.Second, cfg.Access.TTL)
		assert.Equal(t, []string{"A10", "9", "11", "1"}, cfg.Contract.Protected)
		assert.Equal(t, 5, cfg.Contract.CanonicalLength)
	})

	t.Run("should overlay yaml file and environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "application.yaml")
		yaml := "area: north\nreplication:\n  url: ws://sync.local/ws\n  pinginterval: 10s\ncontract:\n  ignored: [ABC123, XYZ9]\n"
		require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
		t.Setenv("BUDGET_DB_HOST", "db.internal")
		t.Setenv("BUDGET_ADMINS", "11,22")

		cfg, err := Load(path)

		require.NoError(t, err)
		assert.Equal(t, "north", cfg.Area)
		assert.Equal(t, "ws://sync.local/ws", cfg.Replication.URL)
		assert.Equal(t, 10*time.Second, cfg.Replication.PingInterval)
		assert.Equal(t, []string{"ABC123", "XYZ9"}, cfg.Contract.Ignored)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, []int64{11, 22}, cfg.Admins)
	})

	t.Run("should reject an unknown timezone", func(t *testing.T) {
		t.Setenv("BUDGET_TIMEZONE", "Mars/Olympus")

		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

		assert.Error(t, err)
	})
}
