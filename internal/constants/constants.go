package constants

import "time"

const (
	DefaultUpdateInterval    = 15 * time.Minute
	DefaultRateLimitDelay    = 500 * time.Millisecond
	DefaultRateLimitFallback = 1 * time.Second
	DefaultMatchTolerance    = 200
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
)

const (
	DiscordAPIBase         = "https://discord.com/api/v10"
	DiscordMemberPageLimit = 1000
	MaxNicknameLength      = 32
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
	// StopTimeout bounds how long the app waits for in-flight members to finish.
	StopTimeout = 30 * time.Second
)
