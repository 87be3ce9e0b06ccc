// Package handlers provides the shared plumbing of the gateway's HTTP handlers:
// upstream access, admission, error envelopes and SSE forwarding. The protocol
// surfaces live in the claude and openai subpackages.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CopilotAPI/internal/config"
	"github.com/router-for-me/CopilotAPI/internal/interfaces"
	"github.com/router-for-me/CopilotAPI/internal/logging"
	"github.com/router-for-me/CopilotAPI/internal/runtime/executor"
	"github.com/router-for-me/CopilotAPI/internal/session"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/singleflight"
)

// ErrorResponse represents a standard error response format for the API.
// It contains a single ErrorDetail field.
type ErrorResponse struct {
	// Error contains detailed information about the error that occurred.
	Error ErrorDetail `json:"error"`
}

// ErrorDetail provides specific information about an error that occurred.
type ErrorDetail struct {
	// Message is a human-readable message providing more details about the error.
	Message string `json:"message"`

	// Type is the category of error that occurred.
	Type string `json:"type"`
}

// modelFetchTimeout bounds the shared catalog fetch, which outlives any single caller.
const modelFetchTimeout = 30 * time.Second

// Upstream is the Copilot client used by the handlers.
type Upstream interface {
	ChatCompletions(ctx context.Context, body []byte) (*executor.Response, error)
	ChatCompletionsStream(ctx context.Context, body []byte) (*executor.StreamResult, error)
	FetchModels(ctx context.Context) ([]session.ModelDescriptor, error)
	Embeddings(ctx context.Context, body []byte) (*executor.Response, error)
}

// Admitter decides whether a request may proceed (rate limit, manual approval).
type Admitter interface {
	Admit(ctx context.Context, summary string) error
}

// BaseAPIHandler contains what every protocol surface needs to serve a request.
type BaseAPIHandler struct {
	cfg atomic.Pointer[config.SDKConfig]

	// State is the shared session state (tokens, model catalog).
	State *session.State

	// Upstream performs the Copilot calls.
	Upstream Upstream

	// Gate admits requests. Nil admits everything.
	Gate Admitter

	models singleflight.Group
}

// NewBaseAPIHandlers creates a new API handlers instance.
func NewBaseAPIHandlers(cfg *config.SDKConfig, state *session.State, upstream Upstream, gate Admitter) *BaseAPIHandler {
	h := &BaseAPIHandler{State: state, Upstream: upstream, Gate: gate}
	h.cfg.Store(cfg)
	return h
}

// UpdateClients swaps the configuration after a reload. Requests already in
// flight keep the configuration they started with.
func (h *BaseAPIHandler) UpdateClients(cfg *config.SDKConfig) { h.cfg.Store(cfg) }

// Config returns the configuration currently in effect.
func (h *BaseAPIHandler) Config() *config.SDKConfig { return h.cfg.Load() }

// GetContextWithCancel derives a cancellable context from the request, carrying
// the request id used in log lines.
func (h *BaseAPIHandler) GetContextWithCancel(c *gin.Context) (context.Context, context.CancelFunc) {
	ctx := c.Request.Context()
	if logging.GetRequestID(ctx) == "" {
		if requestID := logging.GetGinRequestID(c); requestID != "" {
			ctx = logging.WithRequestID(ctx, requestID)
		}
	}
	return context.WithCancel(ctx)
}

// Admit runs the request through the gate.
func (h *BaseAPIHandler) Admit(ctx context.Context, summary string) error {
	if h.Gate == nil {
		return nil
	}
	return h.Gate.Admit(ctx, summary)
}

// Models returns the cached catalog, fetching it once when it is still empty.
// Concurrent callers share a single upstream call.
func (h *BaseAPIHandler) Models(ctx context.Context) ([]session.ModelDescriptor, error) {
	if models := h.State.Models(); len(models) > 0 {
		return models, nil
	}
	v, err, _ := h.models.Do("models", func() (any, error) {
		if models := h.State.Models(); len(models) > 0 {
			return models, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), modelFetchTimeout)
		defer cancel()
		models, err := h.Upstream.FetchModels(fetchCtx)
		if err != nil {
			return nil, err
		}
		h.State.SetModels(models)
		log.Debugf("model catalog loaded (%d models)", len(models))
		return models, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]session.ModelDescriptor), nil
}

// BackfillMaxTokens sets max_tokens from the catalog when the OpenAI payload omits it.
func (h *BaseAPIHandler) BackfillMaxTokens(ctx context.Context, body []byte) []byte {
	if gjson.GetBytes(body, "max_tokens").Exists() {
		return body
	}
	model := gjson.GetBytes(body, "model").String()
	if _, err := h.Models(ctx); err != nil {
		log.Debugf("max_tokens backfill skipped, catalog unavailable: %v", err)
		return body
	}
	descriptor, ok := h.State.LookupModel(model)
	if !ok || descriptor.MaxOutputTokens <= 0 {
		return body
	}
	out, err := sjson.SetBytes(body, "max_tokens", descriptor.MaxOutputTokens)
	if err != nil {
		return body
	}
	return out
}

// RequestSummary describes a request for logs and the approval prompt.
func RequestSummary(c *gin.Context, rawJSON []byte) string {
	model := gjson.GetBytes(rawJSON, "model").String()
	stream := gjson.GetBytes(rawJSON, "stream").Bool()
	return fmt.Sprintf("%s %s model=%s stream=%t", c.Request.Method, c.Request.URL.Path, model, stream)
}

// StreamingKeepAliveInterval returns the SSE keep-alive interval for this server.
// Returning 0 disables keep-alives (default when unset).
func StreamingKeepAliveInterval(cfg *config.SDKConfig) time.Duration {
	if cfg == nil || cfg.Streaming.KeepAliveSeconds <= 0 {
		return 0
	}
	return time.Duration(cfg.Streaming.KeepAliveSeconds) * time.Second
}

// ErrorType derives the envelope "type" for a status when no kind is known.
func ErrorType(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return "authentication_error"
	case status == http.StatusForbidden:
		return "permission_error"
	case status == http.StatusNotFound:
		return "not_found_error"
	case status == http.StatusTooManyRequests:
		return "rate_limit_error"
	case status >= http.StatusInternalServerError:
		return "api_error"
	default:
		return "invalid_request_error"
	}
}

// BuildErrorResponseBody renders {"error":{"message":...,"type":...}}. An empty
// kind falls back to a type derived from status.
func BuildErrorResponseBody(status int, kind interfaces.ErrorKind, message string) []byte {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	if strings.TrimSpace(message) == "" {
		message = http.StatusText(status)
	}
	errType := string(kind)
	if errType == "" {
		errType = ErrorType(status)
	}
	payload, err := json.Marshal(ErrorResponse{Error: ErrorDetail{Message: message, Type: errType}})
	if err != nil {
		return []byte(fmt.Sprintf(`{"error":{"message":%q,"type":"api_error"}}`, message))
	}
	return payload
}

// ErrorParts extracts the status, kind and client-facing message of msg.
func ErrorParts(msg *interfaces.ErrorMessage) (int, interfaces.ErrorKind, string) {
	status := http.StatusInternalServerError
	if msg == nil {
		return status, "", http.StatusText(status)
	}
	if msg.StatusCode > 0 {
		status = msg.StatusCode
	}
	if gwErr, ok := interfaces.AsGatewayError(msg.Error); ok {
		message := gwErr.Message
		if message == "" {
			message = gwErr.Error()
		}
		return status, gwErr.Kind, strings.TrimSpace(message)
	}
	if msg.Error != nil {
		return status, "", msg.Error.Error()
	}
	return status, "", http.StatusText(status)
}

// WriteErrorResponse writes an error message to the response writer using the HTTP status embedded in the message.
func (h *BaseAPIHandler) WriteErrorResponse(c *gin.Context, msg *interfaces.ErrorMessage) {
	status, kind, message := ErrorParts(msg)
	if msg != nil {
		for key, values := range msg.Addon {
			c.Writer.Header().Del(key)
			for _, value := range values {
				c.Writer.Header().Add(key, value)
			}
		}
	}
	entry := log.WithField("status", status)
	if kind != "" {
		entry = entry.WithField("kind", kind)
	}
	if requestID := logging.GetGinRequestID(c); requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}
	if status >= http.StatusInternalServerError {
		entry.Errorf("request failed: %s", message)
	} else {
		entry.Warnf("request failed: %s", message)
	}

	c.Writer.Header().Set("Content-Type", "application/json")
	c.Status(status)
	_, _ = c.Writer.Write(BuildErrorResponseBody(status, kind, message))
}

// WriteError maps err and writes it.
func (h *BaseAPIHandler) WriteError(c *gin.Context, err error) {
	h.WriteErrorResponse(c, interfaces.ToErrorMessage(err))
}

// ReadJSONObject reads the request body and requires a JSON object.
func ReadJSONObject(c *gin.Context) ([]byte, error) {
	rawJSON, err := c.GetRawData()
	if err != nil {
		return nil, interfaces.NewTranslationError("failed to read request body", true, err)
	}
	if !gjson.ValidBytes(rawJSON) || !gjson.ParseBytes(rawJSON).IsObject() {
		return nil, interfaces.NewTranslationError("request body must be a JSON object", true, nil)
	}
	return rawJSON, nil
}

// SetSSEHeaders commits the event-stream response headers.
func SetSSEHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
}
