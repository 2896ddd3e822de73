package config

import "time"

// Database connection pool settings (postgres; sqlite is pinned to one connection)
const (
	DBMaxOpenConns    = 5
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts for the status API
const (
	ServerRequestTimeout  = 30 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 10 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Login retry policy for scheduled runs
const (
	LoginMaxAttempts      = 3
	TransientRetryBackoff = 10 * time.Second
)

// Registration retry policy
const (
	RegisterMaxAttempts    = 5
	RateLimitBackoffMin    = 30 * time.Second
	RateLimitBackoffJitter = 30 * time.Second
)

// Comment posting policy
const (
	MaxConsecutiveFailures = 3
	MaxFillUpAttempts      = 3
	CommentWindow          = 24 * time.Hour
)

// Reputation API client
const (
	APIRequestTimeout = 30 * time.Second
	APIMaxAttempts    = 3
	APIRetryBaseDelay = time.Second
)

// Steam web session
const SteamRequestTimeout = 30 * time.Second
