// Package credentials reads the bearer token used by the realtime client and
// the CLI. Storage is external; this package only reads.
package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// TokenKey is the key holding the bearer token in the credentials file.
	TokenKey = "auth_token"

	// EnvPrefix prefixes environment overrides; the token is read from
	// INFRAWATCH_AUTH_TOKEN.
	EnvPrefix = "INFRAWATCH"
)

// Store yields a bearer token. A missing token is a valid state.
type Store interface {
	Token() (string, bool)
}

// Static is a Store holding a fixed token.
type Static string

// Token returns the token and whether it is non-empty.
func (s Static) Token() (string, bool) {
	return string(s), s != ""
}

// ViperStore reads the token from the environment or a credentials file.
// The environment wins.
type ViperStore struct {
	v *viper.Viper
}

// Load builds a ViperStore. path may be empty or point to a file that does
// not exist; both leave only the environment as a source.
func Load(path string) (*ViperStore, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := v.BindEnv(TokenKey); err != nil {
		return nil, fmt.Errorf("bind %s: %w", TokenKey, err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read credentials %s: %w", path, err)
		}
	}

	return &ViperStore{v: v}, nil
}

// Token returns the stored token, trimmed.
func (s *ViperStore) Token() (string, bool) {
	tok := strings.TrimSpace(s.v.GetString(TokenKey))
	return tok, tok != ""
}

// DefaultPath returns the per-user credentials file location.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "infrawatch", "credentials.yaml")
}
