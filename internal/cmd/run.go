// Package cmd implements the gateway's run modes: the one-shot GitHub login and
// the long-running service.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/router-for-me/CopilotAPI/internal/api"
	"github.com/router-for-me/CopilotAPI/internal/config"
	"github.com/router-for-me/CopilotAPI/internal/gate"
	"github.com/router-for-me/CopilotAPI/internal/logging"
	"github.com/router-for-me/CopilotAPI/internal/runtime/executor"
	"github.com/router-for-me/CopilotAPI/internal/util"
	"github.com/router-for-me/CopilotAPI/internal/watcher"
	sdkaccess "github.com/router-for-me/CopilotAPI/sdk/access"
	"github.com/router-for-me/CopilotAPI/sdk/api/handlers"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ServiceOptions tune StartService.
type ServiceOptions struct {
	// ConfigPath is watched for changes when the file exists.
	ConfigPath string

	// Overlay re-applies command-line overrides to every reloaded configuration.
	Overlay func(*config.Config)
}

// StartService authenticates, loads the model catalog and serves until ctx is
// cancelled. The HTTP server, the session token refresh loop and the config
// watcher run as one supervised group: the first failure stops the others.
func StartService(ctx context.Context, cfg *config.Config, opts ServiceOptions) error {
	state, err := newSessionState(cfg)
	if err != nil {
		return err
	}
	httpClient := util.NewHTTPClient(&cfg.SDKConfig, 0)
	state.SetVSCodeVersion(resolveVSCodeVersion(ctx, cfg, httpClient))

	credentials := newCredentialManager(cfg, state, httpClient)
	if _, err = credentials.AcquireGithubToken(ctx, false); err != nil {
		return fmt.Errorf("github authentication failed: %w", err)
	}
	refreshDelay, err := credentials.InitSessionToken(ctx)
	if err != nil {
		return fmt.Errorf("copilot token exchange failed: %w", err)
	}

	upstream := executor.NewCopilotExecutor(cfg, state, httpClient)
	limiter := gate.NewRateLimiter(state, rateWindow(cfg), cfg.RateLimitWait)
	requestGate := gate.New(limiter, gate.NewTerminalApprover(), cfg.ManualApprove)
	base := handlers.NewBaseAPIHandlers(&cfg.SDKConfig, state, upstream, requestGate)

	if models, errModels := base.Models(ctx); errModels != nil {
		log.Warnf("model catalog unavailable, it will be loaded on first use: %v", errModels)
	} else {
		ids := make([]string, 0, len(models))
		for _, m := range models {
			ids = append(ids, m.ID)
		}
		log.Infof("Available models: %s", strings.Join(ids, ", "))
	}

	github := credentials.GitHub()
	server := api.NewServer(cfg, state, base, sdkaccess.NewManager(), func(ctx context.Context) ([]byte, error) {
		return github.FetchUsage(ctx, state.GitHubToken())
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return server.Run(groupCtx) })
	group.Go(func() error { return credentials.RunRefresh(groupCtx, refreshDelay) })

	if configWatcher := newConfigWatcher(cfg, opts, func(newCfg *config.Config) {
		applyReload(newCfg, limiter, requestGate, server)
	}); configWatcher != nil {
		group.Go(func() error { return configWatcher.Run(groupCtx) })
	}

	log.Infof("Server ready at http://localhost:%d", cfg.Port)
	return group.Wait()
}

func rateWindow(cfg *config.Config) time.Duration {
	return time.Duration(cfg.RateLimitSeconds) * time.Second
}

func newConfigWatcher(cfg *config.Config, opts ServiceOptions, apply func(*config.Config)) *watcher.Watcher {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		log.Debugf("config file %s not found, hot reload disabled", path)
		return nil
	}
	w, err := watcher.NewWatcher(path, func(newCfg *config.Config) {
		newCfg.ApplyEnv(nil)
		if opts.Overlay != nil {
			opts.Overlay(newCfg)
		}
		apply(newCfg)
	})
	if err != nil {
		log.Warnf("config hot reload disabled: %v", err)
		return nil
	}
	w.SetConfig(cfg)
	return w
}

// applyReload pushes the hot-reloadable settings of newCfg into the running
// components. Listen address, account tier and proxy need a restart.
func applyReload(newCfg *config.Config, limiter *gate.RateLimiter, requestGate *gate.Gate, server *api.Server) {
	util.SetLogLevel(newCfg)
	if err := logging.ConfigureLogOutput(newCfg); err != nil {
		log.Errorf("failed to apply log output: %v", err)
	}
	limiter.Update(rateWindow(newCfg), newCfg.RateLimitWait)
	requestGate.SetManual(newCfg.ManualApprove)
	server.UpdateClients(newCfg)
}
