// Package auth defines the persistence contract for the gateway's long-lived
// GitHub credential. Provider-specific flows live in subpackages.
package auth

// TokenStore persists the GitHub OAuth token between runs.
type TokenStore interface {
	// Load returns the stored token, or "" with a nil error when none is stored.
	Load() (string, error)

	// Save replaces the stored token.
	Save(token string) error
}
