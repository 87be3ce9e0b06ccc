package cmd

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CopilotAPI/internal/api"
	"github.com/router-for-me/CopilotAPI/internal/config"
	"github.com/router-for-me/CopilotAPI/internal/gate"
	"github.com/router-for-me/CopilotAPI/internal/interfaces"
	"github.com/router-for-me/CopilotAPI/internal/session"
	sdkaccess "github.com/router-for-me/CopilotAPI/sdk/access"
	"github.com/router-for-me/CopilotAPI/sdk/api/handlers"
)

func TestApplyReload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Default()
	state := session.New(session.TierIndividual)
	state.SetModels([]session.ModelDescriptor{{ID: "gpt-4o"}})
	limiter := gate.NewRateLimiter(state, 0, false)
	requestGate := gate.New(limiter, nil, false)
	base := handlers.NewBaseAPIHandlers(&cfg.SDKConfig, state, nil, requestGate)
	server := api.NewServer(cfg, state, base, sdkaccess.NewManager(), nil)

	if err := requestGate.Admit(context.Background(), "a"); err != nil {
		t.Fatalf("Admit before reload: %v", err)
	}
	if err := requestGate.Admit(context.Background(), "b"); err != nil {
		t.Fatalf("limiter must be off before reload: %v", err)
	}

	newCfg := config.Default()
	newCfg.RateLimitSeconds = 60
	newCfg.APIKeys = []string{"k"}
	applyReload(newCfg, limiter, requestGate, server)

	if err := requestGate.Admit(context.Background(), "c"); err != nil {
		t.Fatalf("first request after reload: %v", err)
	}
	err := requestGate.Admit(context.Background(), "d")
	gwErr, ok := interfaces.AsGatewayError(err)
	if !ok || gwErr.Kind != interfaces.KindRateLimited {
		t.Fatalf("expected rate limited, got %v", err)
	}

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/models", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("api keys not applied, status = %d", recorder.Code)
	}
}

func TestNewConfigWatcherDisabled(t *testing.T) {
	cfg := config.Default()
	if w := newConfigWatcher(cfg, ServiceOptions{}, func(*config.Config) {}); w != nil {
		t.Fatal("empty path must disable the watcher")
	}
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	if w := newConfigWatcher(cfg, ServiceOptions{ConfigPath: missing}, func(*config.Config) {}); w != nil {
		t.Fatal("missing file must disable the watcher")
	}
}

func TestResolveVSCodeVersionPinned(t *testing.T) {
	cfg := config.Default()
	cfg.VSCodeVersion = " 1.99.0 "
	if got := resolveVSCodeVersion(context.Background(), cfg, nil); got != "1.99.0" {
		t.Fatalf("version = %q", got)
	}
}

func TestRateWindow(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimitSeconds = 30
	if got := rateWindow(cfg); got != 30*time.Second {
		t.Fatalf("window = %v", got)
	}
}

func TestNewSessionStateRejectsUnknownTier(t *testing.T) {
	cfg := config.Default()
	cfg.AccountType = "team"
	if _, err := newSessionState(cfg); err == nil {
		t.Fatal("expected error for unknown tier")
	}
	cfg.AccountType = config.AccountTypeEnterprise
	state, err := newSessionState(cfg)
	if err != nil || state.Tier() != session.TierEnterprise {
		t.Fatalf("state = %v, err = %v", state, err)
	}
}
