// Package configaccess authenticates requests against the api-keys listed in the
// configuration. Keys are kept only as SHA-256 digests.
package configaccess

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/router-for-me/CopilotAPI/internal/config"
	sdkaccess "github.com/router-for-me/CopilotAPI/sdk/access"
)

type provider struct {
	name    string
	digests [][sha256.Size]byte
}

// New builds the provider for cfg. It returns nil when authentication is disabled
// or no keys are configured.
func New(cfg *config.SDKConfig) sdkaccess.Provider {
	if !cfg.AuthEnabled() {
		return nil
	}
	keys := uniqueKeys(cfg.APIKeys)
	digests := make([][sha256.Size]byte, 0, len(keys))
	for _, key := range keys {
		digests = append(digests, sha256.Sum256([]byte(key)))
	}
	return &provider{name: sdkaccess.DefaultAccessProviderName, digests: digests}
}

func (p *provider) Identifier() string {
	return p.name
}

// Authenticate accepts "Authorization: Bearer <key>" or "X-API-Key: <key>".
// Either header may carry the valid key.
func (p *provider) Authenticate(_ context.Context, r *http.Request) (*sdkaccess.Result, *sdkaccess.AuthError) {
	if len(p.digests) == 0 {
		return nil, sdkaccess.NewNotHandledError()
	}
	bearer := bearerToken(r.Header.Get("Authorization"))
	apiKey := strings.TrimSpace(r.Header.Get("X-Api-Key"))
	if bearer == "" && apiKey == "" {
		return nil, sdkaccess.NewNoCredentialsError()
	}
	for _, c := range [...]struct{ source, key string }{{"authorization", bearer}, {"x-api-key", apiKey}} {
		if c.key != "" && p.matches(c.key) {
			return &sdkaccess.Result{
				Provider:  p.name,
				Principal: c.key,
				Metadata:  map[string]string{"source": c.source},
			}, nil
		}
	}
	return nil, sdkaccess.NewInvalidCredentialError()
}

// matches compares against every digest so timing does not reveal which key matched.
func (p *provider) matches(key string) bool {
	sum := sha256.Sum256([]byte(key))
	hit := 0
	for _, digest := range p.digests {
		hit |= subtle.ConstantTimeCompare(sum[:], digest[:])
	}
	return hit == 1
}

func bearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// uniqueKeys trims keys and drops blanks and duplicates, keeping first-seen order.
func uniqueKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}
