package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 120 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerWriteTimeout    = 130 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = time.Hour

// Invitation lifecycle
const (
	InvitationTTL   = 48 * time.Hour
	MaxCodeAttempts = 20
)

// Upstream calls
const (
	CompletionTimeout = 90 * time.Second
	BillingTimeout    = 30 * time.Second
)
