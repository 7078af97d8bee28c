package config

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_TOKEN_1", "token-one")
	t.Setenv("DISCORD_TOKEN_2", "token-two")
	t.Setenv("DISCORD_GUILD_ID", "guild-1")
}

func TestDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := FromEnv(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.UpdateInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.RateLimitDelay)
	assert.Equal(t, time.Second, cfg.RateLimitFallback)
	assert.Equal(t, BackendSQLite, cfg.DirectoryBackend)
	assert.Equal(t, "user_leaderboard_complete", cfg.MongoCollection)
	assert.Equal(t, int64(200), cfg.MatchTolerance)
	assert.Equal(t, "hash", cfg.PartitionStrategy)
	assert.Equal(t, 1, cfg.PrimaryWorker)
}

func TestOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("UPDATE_INTERVAL_MINUTES", "5")
	t.Setenv("RATE_LIMIT_DELAY", "0.25")
	t.Setenv("PRIMARY_WORKER", "2")
	t.Setenv("DIRECTORY_BACKEND", "Mongo")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")

	cfg, err := FromEnv(zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.UpdateInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.RateLimitDelay)
	assert.Equal(t, BackendMongo, cfg.DirectoryBackend)

	workers := cfg.Workers()
	require.Len(t, workers, 2)
	assert.Equal(t, WorkerConfig{ID: 1, Token: "token-one", Primary: false}, workers[0])
	assert.Equal(t, WorkerConfig{ID: 2, Token: "token-two", Primary: true}, workers[1])
	assert.Equal(t, 2, cfg.Primary().ID)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing token", map[string]string{"DISCORD_TOKEN_2": ""}},
		{"missing guild", map[string]string{"DISCORD_GUILD_ID": ""}},
		{"bad primary", map[string]string{"PRIMARY_WORKER": "3"}},
		{"bad backend", map[string]string{"DIRECTORY_BACKEND": "postgres"}},
		{"mongo without uri", map[string]string{"DIRECTORY_BACKEND": "mongo"}},
		{"bad delay", map[string]string{"RATE_LIMIT_DELAY": "fast"}},
		{"zero interval", map[string]string{"UPDATE_INTERVAL_MINUTES": "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := FromEnv(zerolog.Nop())
			assert.Error(t, err)
		})
	}
}
