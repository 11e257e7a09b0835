package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "file::memory:")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("CHAT_TYPING_TIMEOUT", "2s")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "file::memory:", cfg.Database.DSN)
	assert.Equal(t, 2*time.Second, cfg.Chat.TypingTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Chat.GroupWindow)
	assert.Equal(t, 50, cfg.Chat.HistoryPageSize)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, "0 3 * * *", cfg.Retention.Cron)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	yaml := `
database:
  driver: sqlite
  dsn: chat.db
auth:
  jwt_secret: from-file
chat:
  max_body_length: 120
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "chat.db", cfg.Database.DSN)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, 120, cfg.Chat.MaxBodyLength)
}

func TestValidate(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "x")
		_, err := Load(t.TempDir())
		require.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		c := Config{Database: DatabaseConfig{Driver: "mysql", DSN: "x"}}
		require.Error(t, c.Validate())
	})
}
