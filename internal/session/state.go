// Package session holds the process-wide gateway state: the GitHub token, the
// current Copilot session token, the account tier and the model catalog.
// One State is built at startup and handed to every component that needs it.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// AccountTier selects the Copilot API host.
type AccountTier string

const (
	TierIndividual AccountTier = "individual"
	TierBusiness   AccountTier = "business"
	TierEnterprise AccountTier = "enterprise"
)

// ParseAccountTier converts a configuration value into an AccountTier.
func ParseAccountTier(value string) (AccountTier, error) {
	switch AccountTier(strings.ToLower(strings.TrimSpace(value))) {
	case "", TierIndividual:
		return TierIndividual, nil
	case TierBusiness:
		return TierBusiness, nil
	case TierEnterprise:
		return TierEnterprise, nil
	default:
		return "", fmt.Errorf("session: unknown account tier %q", value)
	}
}

// ModelDescriptor is one entry of the Copilot model catalog.
type ModelDescriptor struct {
	ID              string
	Vendor          string
	Name            string
	ContextWindow   int64
	MaxOutputTokens int64
}

// State is safe for concurrent use. Only the credential manager writes tokens.
type State struct {
	mu sync.RWMutex

	githubToken    string
	sessionToken   string
	tokenExpiresAt time.Time
	tier           AccountTier
	vsCodeVersion  string
	models         []ModelDescriptor
	lastRequestAt  time.Time
}

// New returns a State for the given tier.
func New(tier AccountTier) *State {
	if tier == "" {
		tier = TierIndividual
	}
	return &State{tier: tier}
}

func (s *State) Tier() AccountTier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tier
}

func (s *State) GitHubToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.githubToken
}

func (s *State) SetGitHubToken(token string) {
	s.mu.Lock()
	s.githubToken = token
	s.mu.Unlock()
}

// SessionToken returns the current Copilot bearer token and its expiry.
// An empty token means the session has not been initialized.
func (s *State) SessionToken() (string, time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionToken, s.tokenExpiresAt
}

// SetSessionToken replaces the session token atomically.
func (s *State) SetSessionToken(token string, expiresAt time.Time) {
	s.mu.Lock()
	s.sessionToken = token
	s.tokenExpiresAt = expiresAt
	s.mu.Unlock()
}

func (s *State) VSCodeVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vsCodeVersion
}

func (s *State) SetVSCodeVersion(version string) {
	s.mu.Lock()
	s.vsCodeVersion = version
	s.mu.Unlock()
}

// Models returns a copy of the cached catalog.
func (s *State) Models() []ModelDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.models) == 0 {
		return nil
	}
	out := make([]ModelDescriptor, len(s.models))
	copy(out, s.models)
	return out
}

func (s *State) SetModels(models []ModelDescriptor) {
	cloned := make([]ModelDescriptor, len(models))
	copy(cloned, models)
	s.mu.Lock()
	s.models = cloned
	s.mu.Unlock()
}

// LookupModel finds a catalog entry by id.
func (s *State) LookupModel(id string) (ModelDescriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelDescriptor{}, false
}

// LastRequestAt reports when the last request was admitted by the rate gate.
func (s *State) LastRequestAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRequestAt
}

// MarkRequest records an admitted request.
func (s *State) MarkRequest(at time.Time) {
	s.mu.Lock()
	s.lastRequestAt = at
	s.mu.Unlock()
}
