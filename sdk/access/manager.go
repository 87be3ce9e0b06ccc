package access

import (
	"context"
	"net/http"
	"sync/atomic"
)

// Manager runs the active providers in order. Providers are swapped as a whole
// on reload, so a request always sees one consistent list.
type Manager struct {
	providers atomic.Pointer[[]Provider]
}

func NewManager() *Manager {
	return &Manager{}
}

// SetProviders installs a copy of providers, dropping nil entries.
func (m *Manager) SetProviders(providers []Provider) {
	if m == nil {
		return
	}
	list := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			list = append(list, p)
		}
	}
	m.providers.Store(&list)
}

func (m *Manager) current() []Provider {
	if m == nil {
		return nil
	}
	if list := m.providers.Load(); list != nil {
		return *list
	}
	return nil
}

// Enabled reports whether requests must authenticate at all.
func (m *Manager) Enabled() bool {
	return len(m.current()) > 0
}

// Authenticate returns the first successful provider result. With no providers
// it returns (nil, nil) and the request is let through. When every provider
// fails, an invalid credential outranks a missing one.
func (m *Manager) Authenticate(ctx context.Context, r *http.Request) (*Result, *AuthError) {
	providers := m.current()
	if len(providers) == 0 {
		return nil, nil
	}

	sawInvalid := false
	for _, p := range providers {
		res, authErr := p.Authenticate(ctx, r)
		switch {
		case authErr == nil:
			return res, nil
		case authErr.Code == AuthErrorCodeInvalidCredential:
			sawInvalid = true
		case authErr.Code == AuthErrorCodeNoCredentials, authErr.Code == AuthErrorCodeNotHandled:
		default:
			return nil, authErr
		}
	}
	if sawInvalid {
		return nil, NewInvalidCredentialError()
	}
	return nil, NewNoCredentialsError()
}
