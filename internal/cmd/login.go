package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/router-for-me/CopilotAPI/internal/auth/copilot"
	"github.com/router-for-me/CopilotAPI/internal/config"
	"github.com/router-for-me/CopilotAPI/internal/misc"
	"github.com/router-for-me/CopilotAPI/internal/session"
	"github.com/router-for-me/CopilotAPI/internal/util"
	log "github.com/sirupsen/logrus"
)

// DoCopilotLogin runs the GitHub device flow unconditionally and saves the token
// to the configured token file. The user code is shown on the terminal, copied
// to the clipboard and, unless no-browser is set, the verification page is opened.
func DoCopilotLogin(ctx context.Context, cfg *config.Config) error {
	state, err := newSessionState(cfg)
	if err != nil {
		return err
	}
	httpClient := util.NewHTTPClient(&cfg.SDKConfig, 0)
	state.SetVSCodeVersion(resolveVSCodeVersion(ctx, cfg, httpClient))

	manager := newCredentialManager(cfg, state, httpClient)
	if err = manager.Login(ctx); err != nil {
		return err
	}
	fmt.Printf("GitHub token saved to %s\n", cfg.GitHubTokenFile)
	return nil
}

func newSessionState(cfg *config.Config) (*session.State, error) {
	tier, err := session.ParseAccountTier(cfg.AccountType)
	if err != nil {
		return nil, err
	}
	return session.New(tier), nil
}

func newCredentialManager(cfg *config.Config, state *session.State, httpClient *http.Client) *copilot.Manager {
	github := copilot.NewGitHubAuth(cfg, httpClient, state)
	return copilot.NewManager(cfg, state, github, copilot.NewFileTokenStore(cfg.GitHubTokenFile))
}

// resolveVSCodeVersion honors a pinned version and otherwise looks the current one up.
func resolveVSCodeVersion(ctx context.Context, cfg *config.Config, httpClient *http.Client) string {
	if pinned := strings.TrimSpace(cfg.VSCodeVersion); pinned != "" {
		return pinned
	}
	version := misc.LookupVSCodeVersion(ctx, httpClient, "")
	log.Infof("Using VSCode version: %s", version)
	return version
}
