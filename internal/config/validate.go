package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all fields required to serve the API are set and values are valid.
func (c *Config) Validate() error {
	return c.validate(true)
}

// ValidateWithoutDatabase is Validate for a server backed by the in-memory store.
func (c *Config) ValidateWithoutDatabase() error {
	return c.validate(false)
}

func (c *Config) validate(requireDB bool) error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if !strings.HasPrefix(c.Server.RealtimePath, "/") {
		return fmt.Errorf("server.realtime_path must start with /, got %q", c.Server.RealtimePath)
	}

	if requireDB {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	}

	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 bytes")
	}

	if err := c.Realtime.Validate(); err != nil {
		return err
	}

	if len(c.Events.Brokers) > 0 && c.Events.Topic == "" {
		return errors.New("events.topic is required when events.brokers is set")
	}

	return nil
}

// Validate checks the client-side realtime settings on their own, for CLI commands
// that never touch the database.
func (r *RealtimeConfig) Validate() error {
	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("realtime.url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("realtime.url scheme must be http, https, ws or wss, got %q", u.Scheme)
	}
	if r.ReconnectDelay <= 0 {
		return errors.New("realtime.reconnect_delay must be > 0")
	}
	if r.ReconnectMaxDelay < r.ReconnectDelay {
		return fmt.Errorf("realtime.reconnect_max_delay (%s) cannot be less than reconnect_delay (%s)",
			r.ReconnectMaxDelay, r.ReconnectDelay)
	}
	if r.ReconnectAttempts < 1 {
		return errors.New("realtime.reconnect_attempts must be >= 1")
	}
	if r.HeartbeatInterval <= 0 {
		return errors.New("realtime.heartbeat_interval must be > 0")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
