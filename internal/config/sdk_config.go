// Package config provides configuration management for the Copilot API gateway.
// It handles loading and parsing YAML configuration files, and provides structured
// access to application settings including server port, account tier, rate limiting,
// proxy configuration, and API keys.
package config

import "strings"

// SDKConfig holds the settings shared by the HTTP surface and the outbound client.
type SDKConfig struct {
	// ProxyURL is the URL of an optional proxy server to use for outbound requests.
	// Supported schemes are http, https and socks5.
	ProxyURL string `yaml:"proxy-url" json:"proxy-url"`

	// APIKeys is a list of keys for authenticating clients to this gateway.
	APIKeys []string `yaml:"api-keys" json:"api-keys"`

	// DisableAuth turns API key checks off even when keys are configured.
	DisableAuth bool `yaml:"disable-auth" json:"disable-auth"`

	// Streaming configures server-side streaming behavior.
	Streaming StreamingConfig `yaml:"streaming" json:"streaming"`
}

// StreamingConfig holds server streaming behavior configuration.
type StreamingConfig struct {
	// KeepAliveSeconds controls how often the server emits SSE heartbeats (": keep-alive\n\n").
	// <= 0 disables keep-alives. Default is 0.
	KeepAliveSeconds int `yaml:"keepalive-seconds,omitempty" json:"keepalive-seconds,omitempty"`
}

// AuthEnabled reports whether inbound requests must present an API key.
func (c *SDKConfig) AuthEnabled() bool {
	if c == nil || c.DisableAuth {
		return false
	}
	for _, key := range c.APIKeys {
		if strings.TrimSpace(key) != "" {
			return true
		}
	}
	return false
}
