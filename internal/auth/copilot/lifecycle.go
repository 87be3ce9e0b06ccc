package copilot

import (
	"context"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/router-for-me/CopilotAPI/internal/auth"
	"github.com/router-for-me/CopilotAPI/internal/browser"
	"github.com/router-for-me/CopilotAPI/internal/config"
	"github.com/router-for-me/CopilotAPI/internal/session"
	"github.com/router-for-me/CopilotAPI/internal/util"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// refreshLead is how long before the reported refresh point the session token is re-exchanged.
const refreshLead = 60 * time.Second

// Manager drives the credential state machine:
// unauthenticated, awaiting device approval, authenticated, refreshing.
type Manager struct {
	cfg    *config.Config
	state  *session.State
	github *GitHubAuth
	store  auth.TokenStore

	// PresentDeviceCode shows the user code to the operator. Defaults to logging
	// it, copying it to the clipboard and opening the verification page.
	PresentDeviceCode func(*oauth2.DeviceAuthResponse)

	after func(time.Duration) <-chan time.Time
}

// NewManager wires a credential manager around the shared session state.
func NewManager(cfg *config.Config, state *session.State, github *GitHubAuth, store auth.TokenStore) *Manager {
	m := &Manager{
		cfg:    cfg,
		state:  state,
		github: github,
		store:  store,
		after:  time.After,
	}
	m.PresentDeviceCode = m.presentDeviceCode
	return m
}

// GitHub exposes the GitHub client, used by the usage endpoint.
func (m *Manager) GitHub() *GitHubAuth {
	return m.github
}

// AcquireGithubToken returns a validated GitHub token. A configured or stored token
// is checked against /user first; when it is missing, rejected, or force is set,
// the device flow runs and the new token is persisted.
func (m *Manager) AcquireGithubToken(ctx context.Context, force bool) (string, error) {
	if !force {
		token, err := m.cachedGithubToken()
		if err != nil {
			return "", err
		}
		if token != "" {
			login, errUser := m.github.FetchUser(ctx, token)
			switch {
			case errUser == nil:
				m.state.SetGitHubToken(token)
				log.Infof("Logged in as %s", login)
				return token, nil
			case isUnauthorized(errUser):
				log.Warn("Stored GitHub token was rejected, starting device flow")
			default:
				return "", errUser
			}
		}
	}

	da, err := m.github.RequestDeviceCode(ctx)
	if err != nil {
		return "", err
	}
	if m.PresentDeviceCode != nil {
		m.PresentDeviceCode(da)
	}
	token, err := m.github.PollForToken(ctx, da)
	if err != nil {
		return "", err
	}
	if m.store != nil {
		if errSave := m.store.Save(token); errSave != nil {
			log.Errorf("failed to persist github token: %v", errSave)
		}
	}
	m.state.SetGitHubToken(token)
	if login, errUser := m.github.FetchUser(ctx, token); errUser == nil {
		log.Infof("Logged in as %s", login)
	}
	log.Debugf("GitHub token: %s", util.MaskToken(m.cfg, token))
	return token, nil
}

func (m *Manager) cachedGithubToken() (string, error) {
	if m.cfg != nil && m.cfg.GitHubToken != "" {
		return m.cfg.GitHubToken, nil
	}
	if m.store == nil {
		return "", nil
	}
	return m.store.Load()
}

func (m *Manager) presentDeviceCode(da *oauth2.DeviceAuthResponse) {
	log.Infof("Please enter the code %q in %s", da.UserCode, da.VerificationURI)
	if err := clipboard.WriteAll(da.UserCode); err != nil {
		log.Debugf("could not copy device code to clipboard: %v", err)
	} else {
		log.Info("The code has been copied to your clipboard")
	}
	if m.cfg != nil && m.cfg.NoBrowser {
		return
	}
	if err := browser.OpenURL(da.VerificationURI); err != nil {
		log.Warnf("could not open browser: %v", err)
	}
}

// InitSessionToken exchanges the GitHub token for a Copilot session token, stores it
// and returns the delay until the next refresh.
func (m *Manager) InitSessionToken(ctx context.Context) (time.Duration, error) {
	tok, err := m.github.FetchCopilotToken(ctx, m.state.GitHubToken())
	if err != nil {
		return 0, err
	}
	m.state.SetSessionToken(tok.Token, time.Unix(tok.ExpiresAt, 0))
	log.Debugf("Copilot token: %s", util.MaskToken(m.cfg, tok.Token))
	return refreshDelay(tok.RefreshIn), nil
}

// RunRefresh re-exchanges the session token until ctx is cancelled. A failed refresh
// keeps the stale token and retries after the same delay. It never returns an error
// so a supervising errgroup is not torn down by transient GitHub failures.
func (m *Manager) RunRefresh(ctx context.Context, delay time.Duration) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.after(delay):
		}
		log.Debug("Refreshing Copilot token")
		next, err := m.InitSessionToken(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Errorf("Failed to refresh Copilot token: %v", err)
			continue
		}
		delay = next
		log.Info("Copilot token refreshed")
	}
}

// refreshDelay schedules the refresh 60s before the reported refresh point.
func refreshDelay(refreshIn int64) time.Duration {
	d := time.Duration(refreshIn)*time.Second - refreshLead
	if d > 0 {
		return d
	}
	d = time.Duration(refreshIn) * time.Second / 2
	if d < time.Second {
		d = time.Second
	}
	return d
}

// Login runs the device flow unconditionally and persists the token.
func (m *Manager) Login(ctx context.Context) error {
	if _, err := m.AcquireGithubToken(ctx, true); err != nil {
		return fmt.Errorf("copilot: login failed: %w", err)
	}
	return nil
}
