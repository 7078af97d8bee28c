package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"valorant-rolesync/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

type Config struct {
	Tokens        [2]string
	GuildID       string
	DiscordAPIURL string

	DirectoryBackend  string
	DBPath            string
	MongoURI          string
	MongoDatabase     string
	MongoCollection   string
	UpdateInterval    time.Duration
	RateLimitDelay    time.Duration
	RateLimitFallback time.Duration
	PrimaryWorker     int
	ManualRolePolicy  string
	PartitionStrategy string
	MatchTolerance    int64

	StatusPort string
	LogLevel   string
}

// WorkerConfig is the per-worker slice of the configuration.
type WorkerConfig struct {
	ID      int
	Token   string
	Primary bool
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}
	return FromEnv(logger)
}

// FromEnv reads the configuration from the process environment only.
func FromEnv(logger zerolog.Logger) (*Config, error) {
	cfg := &Config{
		Tokens:            [2]string{getEnv("DISCORD_TOKEN_1", ""), getEnv("DISCORD_TOKEN_2", "")},
		GuildID:           getEnv("DISCORD_GUILD_ID", ""),
		DiscordAPIURL:     getEnv("DISCORD_API_BASE", constants.DiscordAPIBase),
		DirectoryBackend:  strings.ToLower(getEnv("DIRECTORY_BACKEND", BackendSQLite)),
		DBPath:            getEnv("DB_PATH", "rolesync.db"),
		MongoURI:          getEnv("MONGODB_URI", ""),
		MongoDatabase:     getEnv("MONGODB_DATABASE", "live"),
		MongoCollection:   getEnv("MONGODB_COLLECTION", "user_leaderboard_complete"),
		ManualRolePolicy:  getEnv("MANUAL_ROLE_POLICY", "verify"),
		PartitionStrategy: getEnv("PARTITION_STRATEGY", "hash"),
		StatusPort:        getEnv("STATUS_PORT", "8080"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.UpdateInterval, err = getMinutes("UPDATE_INTERVAL_MINUTES", constants.DefaultUpdateInterval); err != nil {
		return nil, err
	}
	if cfg.RateLimitDelay, err = getSeconds("RATE_LIMIT_DELAY", constants.DefaultRateLimitDelay); err != nil {
		return nil, err
	}
	if cfg.RateLimitFallback, err = getSeconds("RATE_LIMIT_FALLBACK", constants.DefaultRateLimitFallback); err != nil {
		return nil, err
	}
	if cfg.PrimaryWorker, err = getInt("PRIMARY_WORKER", 1); err != nil {
		return nil, err
	}
	tolerance, err := getInt("MATCH_TOLERANCE", constants.DefaultMatchTolerance)
	if err != nil {
		return nil, err
	}
	cfg.MatchTolerance = int64(tolerance)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		logger.Warn().Str("log_level", cfg.LogLevel).Msg("unknown log level, keeping default")
	}

	logger.Info().
		Str("guild_id", cfg.GuildID).
		Str("directory_backend", cfg.DirectoryBackend).
		Str("db_path", cfg.DBPath).
		Str("mongodb_database", cfg.MongoDatabase).
		Str("mongodb_collection", cfg.MongoCollection).
		Dur("update_interval", cfg.UpdateInterval).
		Dur("rate_limit_delay", cfg.RateLimitDelay).
		Int("primary_worker", cfg.PrimaryWorker).
		Str("manual_role_policy", cfg.ManualRolePolicy).
		Str("partition_strategy", cfg.PartitionStrategy).
		Str("status_port", cfg.StatusPort).
		Str("log_level", cfg.LogLevel).
		Msg("configuration loaded")

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Tokens[0] == "" || c.Tokens[1] == "" {
		return fmt.Errorf("DISCORD_TOKEN_1 and DISCORD_TOKEN_2 are required")
	}
	if c.GuildID == "" {
		return fmt.Errorf("DISCORD_GUILD_ID is required")
	}
	if c.PrimaryWorker != 1 && c.PrimaryWorker != 2 {
		return fmt.Errorf("PRIMARY_WORKER must be 1 or 2, got %d", c.PrimaryWorker)
	}
	switch c.DirectoryBackend {
	case BackendSQLite:
	case BackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGODB_URI is required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown DIRECTORY_BACKEND %q", c.DirectoryBackend)
	}
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("UPDATE_INTERVAL_MINUTES must be positive")
	}
	return nil
}

// Workers returns the two worker configurations in id order.
func (c *Config) Workers() []WorkerConfig {
	return []WorkerConfig{
		{ID: 1, Token: c.Tokens[0], Primary: c.PrimaryWorker == 1},
		{ID: 2, Token: c.Tokens[1], Primary: c.PrimaryWorker == 2},
	}
}

func (c *Config) Primary() WorkerConfig {
	return c.Workers()[c.PrimaryWorker-1]
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getSeconds(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(f * float64(time.Second)), nil
}

func getMinutes(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(f * float64(time.Minute)), nil
}

var Module = fx.Provide(Load)
