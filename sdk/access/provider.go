// Package access authenticates inbound gateway requests. A Manager holds the
// active providers; the server builds one at startup and swaps its providers
// on configuration reload.
package access

import (
	"context"
	"net/http"
)

// DefaultAccessProviderName names the provider built from the configured api-keys.
const DefaultAccessProviderName = "config-api-key"

// Provider validates credentials for incoming requests.
type Provider interface {
	Identifier() string
	Authenticate(ctx context.Context, r *http.Request) (*Result, *AuthError)
}

// Result conveys authentication outcome.
type Result struct {
	Provider  string
	Principal string
	Metadata  map[string]string
}
