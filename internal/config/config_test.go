package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const validSecret = "0123456789abcdef0123456789abcdef"

func TestLoad(t *testing.T) {
	yaml := `
server:
  addr: ":9000"
database:
  postgres:
    host: localhost
    port: 5432
    name: infrawatch
    user: infrawatch
    password: testpass
auth:
  jwt_secret: 0123456789abcdef0123456789abcdef
realtime:
  url: https://api.infrawatch.dev
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":9000")
	}
	if cfg.Realtime.URL != "https://api.infrawatch.dev" {
		t.Errorf("Realtime.URL = %q, want %q", cfg.Realtime.URL, "https://api.infrawatch.dev")
	}
	if cfg.Database.Postgres.Host != "localhost" {
		t.Errorf("Database.Postgres.Host = %q, want %q", cfg.Database.Postgres.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")
	t.Setenv("TEST_JWT_SECRET", validSecret)

	yaml := `
database:
  postgres:
    host: localhost
    name: infrawatch
    user: infrawatch
    password: ${TEST_DB_PASSWORD}
auth:
  jwt_secret: ${TEST_JWT_SECRET}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Postgres.Password != "secret123" {
		t.Errorf("Database.Postgres.Password = %q, want %q", cfg.Database.Postgres.Password, "secret123")
	}
	if cfg.Auth.JWTSecret != validSecret {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, validSecret)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
database:
  postgres:
    host: localhost
    name: infrawatch
    user: infrawatch
    password: testpass
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Realtime.URL != DefaultRealtimeURL {
		t.Errorf("Realtime.URL = %q, want default %q", cfg.Realtime.URL, DefaultRealtimeURL)
	}
	if cfg.Realtime.URL != "http://localhost:8080" {
		t.Errorf("Realtime.URL = %q, want http://localhost:8080", cfg.Realtime.URL)
	}
	if cfg.Realtime.HeartbeatInterval != 30*time.Second {
		t.Errorf("Realtime.HeartbeatInterval = %v, want 30s", cfg.Realtime.HeartbeatInterval)
	}
	if cfg.Realtime.ReconnectAttempts != DefaultReconnectAttempts {
		t.Errorf("Realtime.ReconnectAttempts = %d, want default %d", cfg.Realtime.ReconnectAttempts, DefaultReconnectAttempts)
	}
	if cfg.Database.Postgres.Port != DefaultDBPort {
		t.Errorf("Database.Postgres.Port = %d, want default %d", cfg.Database.Postgres.Port, DefaultDBPort)
	}
	if cfg.Database.Postgres.MaxConns != DefaultMaxConns {
		t.Errorf("Database.Postgres.MaxConns = %d, want default %d", cfg.Database.Postgres.MaxConns, DefaultMaxConns)
	}
	if cfg.Server.RealtimePath != DefaultRealtimePath {
		t.Errorf("Server.RealtimePath = %q, want default %q", cfg.Server.RealtimePath, DefaultRealtimePath)
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want default %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
}

func TestLoadWithDefaults_EmptyPath(t *testing.T) {
	cfg, err := LoadWithDefaults("")
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}
	if cfg.Realtime.URL != DefaultRealtimeURL {
		t.Errorf("Realtime.URL = %q, want default %q", cfg.Realtime.URL, DefaultRealtimeURL)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	env := map[string]string{RealtimeURLEnv: "https://rt.example.com"}
	cfg.ApplyEnvOverrides(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	if cfg.Realtime.URL != "https://rt.example.com" {
		t.Errorf("Realtime.URL = %q, want override", cfg.Realtime.URL)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := Config{
			Database: DatabaseConfig{
				Postgres: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass"},
			},
			Auth: AuthConfig{JWTSecret: validSecret},
		}
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing postgres host",
			mutate:  func(c *Config) { c.Database.Postgres.Host = "" },
			wantErr: "database.postgres.host is required",
		},
		{
			name:    "missing postgres password",
			mutate:  func(c *Config) { c.Database.Postgres.Password = "" },
			wantErr: "database.postgres.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Database.Postgres.MaxConns = 5
				c.Database.Postgres.MinConns = 10
			},
			wantErr: "database.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Auth.JWTSecret = "" },
			wantErr: "auth.jwt_secret is required",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Auth.JWTSecret = "short" },
			wantErr: "auth.jwt_secret must be at least 32 bytes",
		},
		{
			name:    "bad realtime scheme",
			mutate:  func(c *Config) { c.Realtime.URL = "ftp://localhost" },
			wantErr: `realtime.url scheme must be http, https, ws or wss, got "ftp"`,
		},
		{
			name: "max delay below delay",
			mutate: func(c *Config) {
				c.Realtime.ReconnectDelay = 2 * time.Second
				c.Realtime.ReconnectMaxDelay = time.Second
			},
			wantErr: "realtime.reconnect_max_delay (1s) cannot be less than reconnect_delay (2s)",
		},
		{
			name:    "realtime path without slash",
			mutate:  func(c *Config) { c.Server.RealtimePath = "realtime" },
			wantErr: `server.realtime_path must start with /, got "realtime"`,
		},
		{
			name: "brokers without topic",
			mutate: func(c *Config) {
				c.Events.Brokers = []string{"localhost:9092"}
				c.Events.Topic = ""
			},
			wantErr: "events.topic is required when events.brokers is set",
		},
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestValidateWithoutDatabase(t *testing.T) {
	cfg := Config{Auth: AuthConfig{JWTSecret: validSecret}}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() expected database error, got nil")
	}
	if err := cfg.ValidateWithoutDatabase(); err != nil {
		t.Errorf("ValidateWithoutDatabase() unexpected error: %v", err)
	}

	cfg.Auth.JWTSecret = ""
	if err := cfg.ValidateWithoutDatabase(); err == nil || err.Error() != "auth.jwt_secret is required" {
		t.Errorf("ValidateWithoutDatabase() error = %v, want auth.jwt_secret is required", err)
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
