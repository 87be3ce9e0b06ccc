// Package copilot manages the credentials the gateway needs to call GitHub Copilot:
// the GitHub OAuth token obtained with the device authorization grant, and the
// short-lived Copilot session token exchanged from it and refreshed in the background.
package copilot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/router-for-me/CopilotAPI/internal/config"
	"github.com/router-for-me/CopilotAPI/internal/interfaces"
	"github.com/router-for-me/CopilotAPI/internal/misc"
	"github.com/router-for-me/CopilotAPI/internal/session"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	// githubClientID is the OAuth app used by the Copilot Chat extension.
	githubClientID = "01ab8ac9400c4e429b23"

	defaultGitHubBaseURL    = "https://github.com"
	defaultGitHubAPIBaseURL = "https://api.github.com"
)

var githubScopes = []string{"read:org", "read:user", "repo", "user:email", "workflow"}

// CopilotToken is the response of the Copilot token exchange.
type CopilotToken struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	RefreshIn int64  `json:"refresh_in"`
}

// GitHubAuth talks to github.com and api.github.com on behalf of the gateway.
type GitHubAuth struct {
	httpClient *http.Client
	oauth      *oauth2.Config
	apiBaseURL string
	state      *session.State
}

// NewGitHubAuth builds a client from the configured base URLs. httpClient should
// already carry the proxy settings.
func NewGitHubAuth(cfg *config.Config, httpClient *http.Client, state *session.State) *GitHubAuth {
	baseURL := defaultGitHubBaseURL
	apiBaseURL := defaultGitHubAPIBaseURL
	if cfg != nil {
		if v := strings.TrimRight(strings.TrimSpace(cfg.GitHubBaseURL), "/"); v != "" {
			baseURL = v
		}
		if v := strings.TrimRight(strings.TrimSpace(cfg.GitHubAPIBaseURL), "/"); v != "" {
			apiBaseURL = v
		}
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GitHubAuth{
		httpClient: httpClient,
		oauth: &oauth2.Config{
			ClientID: githubClientID,
			Scopes:   githubScopes,
			Endpoint: oauth2.Endpoint{
				DeviceAuthURL: baseURL + "/login/device/code",
				TokenURL:      baseURL + "/login/oauth/access_token",
				AuthStyle:     oauth2.AuthStyleInParams,
			},
		},
		apiBaseURL: apiBaseURL,
		state:      state,
	}
}

func (g *GitHubAuth) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}

// RequestDeviceCode starts the device authorization grant.
func (g *GitHubAuth) RequestDeviceCode(ctx context.Context) (*oauth2.DeviceAuthResponse, error) {
	da, err := g.oauth.DeviceAuth(g.oauthContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("copilot: device code request failed: %w", err)
	}
	return da, nil
}

// PollForToken waits for the user to approve the device code. It polls one second
// slower than GitHub asks for and gives up when the code expires.
func (g *GitHubAuth) PollForToken(ctx context.Context, da *oauth2.DeviceAuthResponse) (string, error) {
	if da == nil {
		return "", fmt.Errorf("copilot: device code is nil")
	}
	polled := *da
	polled.Interval++

	tok, err := g.oauth.DeviceAccessToken(g.oauthContext(ctx), &polled)
	if err != nil {
		var rErr *oauth2.RetrieveError
		switch {
		case errors.As(err, &rErr) && rErr.ErrorCode == "expired_token":
			return "", interfaces.NewAuthError("device code expired before approval", err)
		case errors.As(err, &rErr) && rErr.ErrorCode == "access_denied":
			return "", interfaces.NewAuthError("device authorization was denied", err)
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			return "", interfaces.NewAuthError("device code expired before approval", err)
		}
		return "", fmt.Errorf("copilot: device token polling failed: %w", err)
	}
	return tok.AccessToken, nil
}

// FetchUser validates githubToken and returns the account login.
func (g *GitHubAuth) FetchUser(ctx context.Context, githubToken string) (string, error) {
	body, err := g.getJSON(ctx, "/user", githubToken)
	if err != nil {
		return "", err
	}
	var user struct {
		Login string `json:"login"`
	}
	if err = json.Unmarshal(body, &user); err != nil {
		return "", fmt.Errorf("copilot: failed to parse github user: %w", err)
	}
	return user.Login, nil
}

// FetchCopilotToken exchanges githubToken for a Copilot session token.
func (g *GitHubAuth) FetchCopilotToken(ctx context.Context, githubToken string) (*CopilotToken, error) {
	body, err := g.getJSON(ctx, "/copilot_internal/v2/token", githubToken)
	if err != nil {
		return nil, err
	}
	var tok CopilotToken
	if err = json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("copilot: failed to parse copilot token: %w", err)
	}
	if tok.Token == "" {
		return nil, interfaces.NewAuthError("copilot token response carried no token", nil)
	}
	return &tok, nil
}

// FetchUsage returns the raw Copilot quota document for the account.
func (g *GitHubAuth) FetchUsage(ctx context.Context, githubToken string) ([]byte, error) {
	return g.getJSON(ctx, "/copilot_internal/user", githubToken)
}

func (g *GitHubAuth) getJSON(ctx context.Context, path, githubToken string) ([]byte, error) {
	if githubToken == "" {
		return nil, interfaces.NewAuthError("github token is not available", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBaseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("copilot: failed to create request: %w", err)
	}
	version := misc.FallbackVSCodeVersion
	if g.state != nil && g.state.VSCodeVersion() != "" {
		version = g.state.VSCodeVersion()
	}
	misc.ApplyGitHubHeaders(req.Header, githubToken, version)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("copilot: request %s failed: %w", path, err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("copilot %s: close body error: %v", path, errClose)
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("copilot: failed to read %s response: %w", path, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		authErr := interfaces.NewAuthError(fmt.Sprintf("github rejected the token on %s (status %d)", path, resp.StatusCode), nil)
		authErr.StatusCode = resp.StatusCode
		authErr.Body = body
		return nil, authErr
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, interfaces.NewUpstreamError(resp.StatusCode, body)
	}
	return body, nil
}

// isUnauthorized reports whether err is GitHub rejecting the token itself.
func isUnauthorized(err error) bool {
	gwErr, ok := interfaces.AsGatewayError(err)
	return ok && gwErr.Kind == interfaces.KindAuth && gwErr.StatusCode == http.StatusUnauthorized
}
