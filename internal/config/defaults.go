package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultAddr              = ":8080"
	DefaultReadTimeout       = 15 * time.Second
	DefaultWriteTimeout      = 15 * time.Second
	DefaultIdleTimeout       = 60 * time.Second
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultRealtimePath      = "/realtime"
	DefaultDBPort            = 5432
	DefaultDBSSLMode         = "prefer"
	DefaultMaxConns          = 10
	DefaultMinConns          = 2
	DefaultIssuer            = "infrawatch-api"
	DefaultAudience          = "infrawatch-dashboard"
	DefaultTokenTTL          = 24 * time.Hour
	DefaultRealtimeURL       = "http://localhost:8080"
	DefaultReconnectDelay    = 1 * time.Second
	DefaultReconnectMaxDelay = 5 * time.Second
	DefaultReconnectAttempts = 5
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultEventsTopic       = "infrawatch.changes"
	DefaultMetricsPath       = "/metrics"
)

// RealtimeURLEnv overrides realtime.url when set, mirroring the dashboard's
// build-time endpoint variable.
const RealtimeURLEnv = "INFRAWATCH_REALTIME_URL"

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	// Server defaults
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = DefaultReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = DefaultIdleTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.RealtimePath == "" {
		c.Server.RealtimePath = DefaultRealtimePath
	}

	applyDBDefaults(&c.Database.Postgres)

	// Auth defaults
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = DefaultIssuer
	}
	if c.Auth.Audience == "" {
		c.Auth.Audience = DefaultAudience
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}

	// Realtime defaults
	if c.Realtime.URL == "" {
		c.Realtime.URL = DefaultRealtimeURL
	}
	if c.Realtime.Path == "" {
		c.Realtime.Path = DefaultRealtimePath
	}
	if c.Realtime.ReconnectDelay == 0 {
		c.Realtime.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Realtime.ReconnectMaxDelay == 0 {
		c.Realtime.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Realtime.ReconnectAttempts == 0 {
		c.Realtime.ReconnectAttempts = DefaultReconnectAttempts
	}
	if c.Realtime.HeartbeatInterval == 0 {
		c.Realtime.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Realtime.HandshakeTimeout == 0 {
		c.Realtime.HandshakeTimeout = DefaultHandshakeTimeout
	}

	// Events defaults
	if c.Events.Topic == "" {
		c.Events.Topic = DefaultEventsTopic
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// ApplyEnvOverrides applies environment overrides that take precedence over the file.
func (c *Config) ApplyEnvOverrides(lookup func(string) (string, bool)) {
	if v, ok := lookup(RealtimeURLEnv); ok && v != "" {
		c.Realtime.URL = v
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
