package realtime

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveURL turns a configured base URL into a websocket endpoint.
// http and https are rewritten to ws and wss; path is appended unless the
// URL already ends with it.
func ResolveURL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse realtime url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported realtime url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("realtime url %q has no host", base)
	}

	if path != "" && !strings.HasSuffix(u.Path, path) {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	return u.String(), nil
}
