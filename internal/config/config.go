package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort is the port the gateway listens on when none is configured.
	DefaultPort = 4141

	// AppDirName is the per-user directory name used under the XDG base directories.
	AppDirName = "copilot-api"
)

// Account tiers accepted by account-type.
const (
	AccountTypeIndividual = "individual"
	AccountTypeBusiness   = "business"
	AccountTypeEnterprise = "enterprise"
)

// Config represents the gateway configuration, loaded from a YAML file and then
// overlaid with environment variables and command-line flags.
type Config struct {
	SDKConfig `yaml:",inline"`

	// Host is the network interface to bind. Empty binds all interfaces.
	Host string `yaml:"host" json:"host"`

	// Port is the HTTP listen port.
	Port int `yaml:"port" json:"port"`

	// Debug enables debug-level logging.
	Debug bool `yaml:"debug" json:"debug"`

	// LoggingToFile writes logs to a rotating file instead of stdout.
	LoggingToFile bool `yaml:"logging-to-file" json:"logging-to-file"`

	// AccountType selects the Copilot tier (individual, business or enterprise).
	AccountType string `yaml:"account-type" json:"account-type"`

	// ManualApprove asks the operator to accept every request on the terminal.
	ManualApprove bool `yaml:"manual-approve" json:"manual-approve"`

	// RateLimitSeconds is the minimum spacing between admitted requests. 0 disables it.
	RateLimitSeconds int `yaml:"rate-limit-seconds" json:"rate-limit-seconds"`

	// RateLimitWait makes throttled requests wait instead of failing with 429.
	RateLimitWait bool `yaml:"rate-limit-wait" json:"rate-limit-wait"`

	// GitHubToken skips the device flow when set.
	GitHubToken string `yaml:"github-token" json:"-"`

	// GitHubTokenFile is where the device-flow token is persisted.
	GitHubTokenFile string `yaml:"github-token-file" json:"github-token-file"`

	// ShowToken logs GitHub and Copilot tokens in clear text.
	ShowToken bool `yaml:"show-token" json:"show-token"`

	// NoBrowser prevents opening the device verification page automatically.
	NoBrowser bool `yaml:"no-browser" json:"no-browser"`

	// CopilotBaseURL overrides the tier-derived Copilot API host.
	CopilotBaseURL string `yaml:"copilot-base-url" json:"copilot-base-url"`

	// GitHubBaseURL overrides https://github.com (device flow endpoints).
	GitHubBaseURL string `yaml:"github-base-url" json:"github-base-url"`

	// GitHubAPIBaseURL overrides https://api.github.com.
	GitHubAPIBaseURL string `yaml:"github-api-base-url" json:"github-api-base-url"`

	// VSCodeVersion pins the editor version sent upstream. Empty triggers a lookup.
	VSCodeVersion string `yaml:"vscode-version" json:"vscode-version"`
}

// Default returns a configuration populated with built-in defaults.
func Default() *Config {
	return &Config{
		Port:        DefaultPort,
		AccountType: AccountTypeIndividual,
	}
}

// LoadConfig reads the YAML configuration file at configFile.
// A missing file is not an error when optional is true; defaults are returned instead.
func LoadConfig(configFile string, optional bool) (*Config, error) {
	cfg := Default()
	if strings.TrimSpace(configFile) == "" {
		cfg.applyDefaults()
		return cfg, nil
	}
	data, err := os.ReadFile(configFile)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) > 0 {
		if err = yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	c.AccountType = strings.ToLower(strings.TrimSpace(c.AccountType))
	if c.AccountType == "" {
		c.AccountType = AccountTypeIndividual
	}
	if strings.TrimSpace(c.GitHubTokenFile) == "" {
		c.GitHubTokenFile = DefaultGitHubTokenFile()
	}
}

// ApplyEnv fills unset values from the process environment.
// lookup is usually os.LookupEnv; it is a parameter so tests can supply a map.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	first := func(keys ...string) string {
		for _, key := range keys {
			if value, ok := lookup(key); ok {
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					return trimmed
				}
			}
		}
		return ""
	}
	if c.GitHubToken == "" {
		c.GitHubToken = first("GH_TOKEN", "GITHUB_TOKEN")
	}
	if c.ProxyURL == "" {
		c.ProxyURL = first("SOCKS5_PROXY", "socks5_proxy", "HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy")
	}
}

// Validate reports configuration values the gateway cannot run with.
func (c *Config) Validate() error {
	switch c.AccountType {
	case AccountTypeIndividual, AccountTypeBusiness, AccountTypeEnterprise:
	default:
		return fmt.Errorf("invalid account-type %q: want individual, business or enterprise", c.AccountType)
	}
	if c.RateLimitSeconds < 0 {
		return fmt.Errorf("invalid rate-limit-seconds %d: must not be negative", c.RateLimitSeconds)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// Address returns the listen address for the HTTP server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DefaultGitHubTokenFile returns the XDG data path of the persisted GitHub token.
func DefaultGitHubTokenFile() string {
	return filepath.Join(xdg.DataHome, AppDirName, "github_token")
}

// DefaultLogDir returns the XDG state directory used for log files.
func DefaultLogDir() string {
	return filepath.Join(xdg.StateHome, AppDirName, "logs")
}
