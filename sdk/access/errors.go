package access

import "net/http"

// AuthErrorCode classifies why a provider rejected or skipped a request.
type AuthErrorCode string

const (
	AuthErrorCodeNoCredentials     AuthErrorCode = "no_credentials"
	AuthErrorCodeInvalidCredential AuthErrorCode = "invalid_credential"
	AuthErrorCodeNotHandled        AuthErrorCode = "not_handled"
)

// Client-facing 401 messages.
const (
	MessageNoCredentials     = "API key required. Provide it via 'Authorization: Bearer <key>' or 'X-API-Key: <key>' header."
	MessageInvalidCredential = "Invalid API key"
)

// AuthError is returned by providers and the Manager. StatusCode is what the
// middleware answers with.
type AuthError struct {
	Code       AuthErrorCode
	Message    string
	StatusCode int
}

func (e *AuthError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return e.Message
}

// HTTPStatusCode falls back to 500 when no status was set.
func (e *AuthError) HTTPStatusCode() int {
	if e == nil || e.StatusCode == 0 {
		return http.StatusInternalServerError
	}
	return e.StatusCode
}

func NewNoCredentialsError() *AuthError {
	return &AuthError{Code: AuthErrorCodeNoCredentials, Message: MessageNoCredentials, StatusCode: http.StatusUnauthorized}
}

func NewInvalidCredentialError() *AuthError {
	return &AuthError{Code: AuthErrorCodeInvalidCredential, Message: MessageInvalidCredential, StatusCode: http.StatusUnauthorized}
}

// NewNotHandledError lets a provider pass the request to the next one.
func NewNotHandledError() *AuthError {
	return &AuthError{Code: AuthErrorCodeNotHandled}
}
