// Package main provides the entry point for the Copilot API gateway.
// The gateway exposes GitHub Copilot through OpenAI Chat Completions and
// Anthropic Messages compatible endpoints.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/router-for-me/CopilotAPI/internal/buildinfo"
	"github.com/router-for-me/CopilotAPI/internal/cmd"
	"github.com/router-for-me/CopilotAPI/internal/config"
	"github.com/router-for-me/CopilotAPI/internal/logging"
	"github.com/router-for-me/CopilotAPI/internal/util"
	log "github.com/sirupsen/logrus"
)

var (
	Version           = "dev"
	Commit            = "none"
	BuildDate         = "unknown"
	DefaultConfigPath = "config.yaml"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
	buildinfo.Version = Version
	buildinfo.Commit = Commit
	buildinfo.BuildDate = BuildDate
}

// overrides holds the command-line values that win over the config file.
type overrides struct {
	port        int
	verbose     bool
	accountType string
	manual      bool
	rateLimit   int
	wait        bool
	githubToken string
	showToken   bool
	proxyURL    string
	apiKeys     string
	disableAuth bool
	noBrowser   bool

	// set records which flags were given explicitly.
	set map[string]bool
}

// apply copies every explicitly set flag into cfg.
func (o *overrides) apply(cfg *config.Config) {
	if o.set["port"] {
		cfg.Port = o.port
	}
	if o.set["verbose"] {
		cfg.Debug = o.verbose
	}
	if o.set["account-type"] {
		cfg.AccountType = strings.ToLower(strings.TrimSpace(o.accountType))
	}
	if o.set["manual"] {
		cfg.ManualApprove = o.manual
	}
	if o.set["rate-limit"] {
		cfg.RateLimitSeconds = o.rateLimit
	}
	if o.set["wait"] {
		cfg.RateLimitWait = o.wait
	}
	if o.set["github-token"] {
		cfg.GitHubToken = strings.TrimSpace(o.githubToken)
	}
	if o.set["show-token"] {
		cfg.ShowToken = o.showToken
	}
	if o.set["proxy-url"] {
		cfg.ProxyURL = strings.TrimSpace(o.proxyURL)
	}
	if o.set["api-keys"] {
		cfg.APIKeys = splitKeys(o.apiKeys)
	}
	if o.set["disable-auth"] {
		cfg.DisableAuth = o.disableAuth
	}
	if o.set["no-browser"] {
		cfg.NoBrowser = o.noBrowser
	}
}

func splitKeys(raw string) []string {
	var keys []string
	for _, part := range strings.Split(raw, ",") {
		if key := strings.TrimSpace(part); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// generateAPIKey returns "capi_" followed by 32 random bytes in hex.
func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "capi_" + hex.EncodeToString(b), nil
}

// main parses flags, loads .env and the config file, then either runs the
// GitHub login or starts the gateway.
func main() {
	fmt.Printf("CopilotAPI Version: %s, Commit: %s, BuiltAt: %s\n", buildinfo.Version, buildinfo.Commit, buildinfo.BuildDate)

	var login bool
	var generateKey bool
	var configPath string
	o := &overrides{}

	flag.StringVar(&configPath, "config", DefaultConfigPath, "Configure File Path")
	flag.BoolVar(&login, "login", false, "Run the GitHub device flow, save the token and exit")
	flag.BoolVar(&generateKey, "generate-key", false, "Print a new API key and exit")
	flag.IntVar(&o.port, "port", config.DefaultPort, "Port to listen on")
	flag.BoolVar(&o.verbose, "verbose", false, "Enable debug logging")
	flag.StringVar(&o.accountType, "account-type", config.AccountTypeIndividual, "Copilot account type: individual, business or enterprise")
	flag.BoolVar(&o.manual, "manual", false, "Approve every request on the terminal")
	flag.IntVar(&o.rateLimit, "rate-limit", 0, "Minimum seconds between requests")
	flag.BoolVar(&o.wait, "wait", false, "Wait out the rate limit instead of returning 429")
	flag.StringVar(&o.githubToken, "github-token", "", "GitHub token to use instead of the device flow")
	flag.BoolVar(&o.showToken, "show-token", false, "Log GitHub and Copilot tokens")
	flag.StringVar(&o.proxyURL, "proxy-url", "", "Outbound proxy URL (http, https or socks5)")
	flag.StringVar(&o.apiKeys, "api-keys", "", "Comma separated API keys required from clients")
	flag.BoolVar(&o.disableAuth, "disable-auth", false, "Accept requests without an API key")
	flag.BoolVar(&o.noBrowser, "no-browser", false, "Don't open the verification page automatically")
	flag.Parse()

	o.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { o.set[f.Name] = true })

	if generateKey {
		key, err := generateAPIKey()
		if err != nil {
			log.Fatalf("failed to generate api key: %v", err)
		}
		fmt.Println(key)
		return
	}

	wd, err := os.Getwd()
	if err != nil {
		log.Errorf("failed to get working directory: %v", err)
		return
	}
	if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
		if !errors.Is(errLoad, os.ErrNotExist) {
			log.WithError(errLoad).Warn("failed to load .env file")
		}
	}

	configExplicit := o.set["config"]
	cfg, err := config.LoadConfig(configPath, !configExplicit)
	if err != nil {
		log.Errorf("failed to load config: %v", err)
		return
	}
	cfg.ApplyEnv(nil)
	o.apply(cfg)
	if err = cfg.Validate(); err != nil {
		log.Errorf("invalid configuration: %v", err)
		return
	}

	if err = logging.ConfigureLogOutput(cfg); err != nil {
		log.Errorf("failed to configure log output: %v", err)
		return
	}
	util.SetLogLevel(cfg)
	if cfg.ShowToken {
		log.Warn("show-token is enabled, tokens will be logged in clear text")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if login {
		if err = cmd.DoCopilotLogin(ctx, cfg); err != nil {
			log.Errorf("login failed: %v", err)
			os.Exit(1)
		}
		return
	}

	if err = cmd.StartService(ctx, cfg, cmd.ServiceOptions{ConfigPath: configPath, Overlay: o.apply}); err != nil {
		log.Errorf("service stopped: %v", err)
		os.Exit(1)
	}
}
