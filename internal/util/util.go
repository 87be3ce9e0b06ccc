// Package util holds small helpers shared by the gateway: log level switching,
// secret masking for log output, and the proxied HTTP client.
package util

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/router-for-me/CopilotAPI/internal/config"
	log "github.com/sirupsen/logrus"
)

// SetLogLevel switches logrus between debug and info following cfg.Debug.
func SetLogLevel(cfg *config.Config) {
	want := log.InfoLevel
	if cfg.Debug {
		want = log.DebugLevel
	}
	if was := log.GetLevel(); was != want {
		log.SetLevel(want)
		log.Infof("log level %s -> %s", was, want)
	}
}

// WritablePath returns WRITABLE_PATH, cleaned, or "" when unset.
func WritablePath() string {
	for _, name := range [...]string{"WRITABLE_PATH", "writable_path"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return filepath.Clean(v)
		}
	}
	return ""
}

// HideAPIKey keeps only the edges of a secret so it can be logged.
func HideAPIKey(secret string) string {
	var edge int
	switch n := len(secret); {
	case n > 8:
		edge = 4
	case n > 4:
		edge = 2
	case n > 2:
		edge = 1
	default:
		return secret
	}
	return secret[:edge] + "..." + secret[len(secret)-edge:]
}

// MaskToken renders a credential for logs, honoring show-token.
func MaskToken(cfg *config.Config, token string) string {
	if cfg != nil && cfg.ShowToken {
		return token
	}
	return HideAPIKey(token)
}

// MaskSensitiveQuery hides the values of credential-like parameters in a raw
// query string. Parameter order and untouched pairs are kept byte for byte.
func MaskSensitiveQuery(raw string) string {
	if raw == "" {
		return ""
	}
	pairs := strings.Split(raw, "&")
	masked := false
	for i, pair := range pairs {
		name, value, _ := strings.Cut(pair, "=")
		if !isSecretParam(unescapeOr(name)) {
			continue
		}
		pairs[i] = name + "=" + url.QueryEscape(HideAPIKey(strings.TrimSpace(unescapeOr(value))))
		masked = true
	}
	if !masked {
		return raw
	}
	return strings.Join(pairs, "&")
}

func unescapeOr(s string) string {
	if decoded, err := url.QueryUnescape(s); err == nil {
		return decoded
	}
	return s
}

var secretParamHints = []string{"api-key", "apikey", "api_key", "token", "secret"}

func isSecretParam(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "key" {
		return true
	}
	for _, hint := range secretParamHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return false
}
