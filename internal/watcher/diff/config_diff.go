// Package diff describes what changed between two configurations, for reload logs.
package diff

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/router-for-me/CopilotAPI/internal/config"
)

// BuildConfigChangeDetails lists human-readable changes between oldCfg and newCfg.
// Secrets are summarized, never printed.
func BuildConfigChangeDetails(oldCfg, newCfg *config.Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var changes []string
	add := func(name string, before, after any) {
		if !reflect.DeepEqual(before, after) {
			changes = append(changes, fmt.Sprintf("%s: %v -> %v", name, before, after))
		}
	}

	add("host", oldCfg.Host, newCfg.Host)
	add("port", oldCfg.Port, newCfg.Port)
	add("debug", oldCfg.Debug, newCfg.Debug)
	add("logging-to-file", oldCfg.LoggingToFile, newCfg.LoggingToFile)
	add("account-type", oldCfg.AccountType, newCfg.AccountType)
	add("manual-approve", oldCfg.ManualApprove, newCfg.ManualApprove)
	add("rate-limit-seconds", oldCfg.RateLimitSeconds, newCfg.RateLimitSeconds)
	add("rate-limit-wait", oldCfg.RateLimitWait, newCfg.RateLimitWait)
	add("show-token", oldCfg.ShowToken, newCfg.ShowToken)
	add("disable-auth", oldCfg.DisableAuth, newCfg.DisableAuth)
	add("streaming.keepalive-seconds", oldCfg.Streaming.KeepAliveSeconds, newCfg.Streaming.KeepAliveSeconds)
	add("copilot-base-url", oldCfg.CopilotBaseURL, newCfg.CopilotBaseURL)
	add("vscode-version", oldCfg.VSCodeVersion, newCfg.VSCodeVersion)

	if strings.TrimSpace(oldCfg.ProxyURL) != strings.TrimSpace(newCfg.ProxyURL) {
		changes = append(changes, fmt.Sprintf("proxy-url: %s -> %s", redactProxy(oldCfg.ProxyURL), redactProxy(newCfg.ProxyURL)))
	}
	if !reflect.DeepEqual(oldCfg.APIKeys, newCfg.APIKeys) {
		changes = append(changes, fmt.Sprintf("api-keys: %d -> %d", len(oldCfg.APIKeys), len(newCfg.APIKeys)))
	}
	if oldCfg.GitHubToken != newCfg.GitHubToken {
		changes = append(changes, "github-token: updated")
	}
	return changes
}

// redactProxy drops credentials embedded in a proxy URL.
func redactProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "<none>"
	}
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***@" + rest[at+1:]
	}
	return scheme + "://" + rest
}
