// Package access wires the configured authentication providers into the access manager.
package access

import (
	configaccess "github.com/router-for-me/CopilotAPI/internal/access/config_access"
	"github.com/router-for-me/CopilotAPI/internal/config"
	sdkaccess "github.com/router-for-me/CopilotAPI/sdk/access"
	log "github.com/sirupsen/logrus"
)

// ApplyAccessProviders rebuilds the manager's providers from cfg and reports whether
// authentication was switched on or off by the change.
func ApplyAccessProviders(manager *sdkaccess.Manager, cfg *config.Config) bool {
	if manager == nil || cfg == nil {
		return false
	}
	wasEnabled := manager.Enabled()

	var providers []sdkaccess.Provider
	if p := configaccess.New(&cfg.SDKConfig); p != nil {
		providers = append(providers, p)
	}
	manager.SetProviders(providers)

	enabled := len(providers) > 0
	if enabled != wasEnabled {
		log.Infof("api key authentication %s", map[bool]string{true: "enabled", false: "disabled"}[enabled])
		return true
	}
	log.Debug("auth providers refreshed")
	return false
}
