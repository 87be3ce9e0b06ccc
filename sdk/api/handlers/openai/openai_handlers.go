// Package openai provides the OpenAI-compatible surface of the gateway. Chat
// completions and embeddings are forwarded to Copilot as-is; the model list is
// served from the cached catalog.
package openai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CopilotAPI/internal/interfaces"
	"github.com/router-for-me/CopilotAPI/internal/session"
	"github.com/router-for-me/CopilotAPI/sdk/api/handlers"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// OpenAIAPIHandler contains the handlers for OpenAI API endpoints.
type OpenAIAPIHandler struct {
	*handlers.BaseAPIHandler
}

// NewOpenAIAPIHandler creates a new OpenAI API handlers instance.
func NewOpenAIAPIHandler(apiHandlers *handlers.BaseAPIHandler) *OpenAIAPIHandler {
	return &OpenAIAPIHandler{BaseAPIHandler: apiHandlers}
}

// OpenAIModels handles GET /models and /v1/models.
func (h *OpenAIAPIHandler) OpenAIModels(c *gin.Context) {
	models, err := h.Models(c.Request.Context())
	if err != nil {
		h.WriteError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", buildModelList(models))
}

func buildModelList(models []session.ModelDescriptor) []byte {
	out := []byte(`{"object":"list","data":[],"has_more":false}`)
	for _, m := range models {
		entry := []byte(`{"object":"model","type":"model","created":0,"created_at":"1970-01-01T00:00:00Z"}`)
		entry, _ = sjson.SetBytes(entry, "id", m.ID)
		entry, _ = sjson.SetBytes(entry, "owned_by", m.Vendor)
		entry, _ = sjson.SetBytes(entry, "display_name", m.Name)
		out, _ = sjson.SetRawBytes(out, "data.-1", entry)
	}
	return out
}

// ChatCompletions handles POST /chat/completions and /v1/chat/completions.
func (h *OpenAIAPIHandler) ChatCompletions(c *gin.Context) {
	rawJSON, err := handlers.ReadJSONObject(c)
	if err != nil {
		h.WriteError(c, err)
		return
	}
	if err = validateChatRequest(rawJSON); err != nil {
		h.WriteError(c, err)
		return
	}

	cliCtx, cliCancel := h.GetContextWithCancel(c)
	if err = h.Admit(cliCtx, handlers.RequestSummary(c, rawJSON)); err != nil {
		cliCancel()
		h.WriteError(c, err)
		return
	}
	rawJSON = h.BackfillMaxTokens(cliCtx, rawJSON)

	if gjson.GetBytes(rawJSON, "stream").Bool() {
		h.handleStreamingResponse(c, cliCtx, cliCancel, rawJSON)
		return
	}
	defer cliCancel()

	resp, err := h.Upstream.ChatCompletions(cliCtx, rawJSON)
	if err != nil {
		h.WriteError(c, err)
		return
	}
	c.Writer.Header().Set("Content-Type", "application/json")
	handlers.WriteUpstreamHeaders(c.Writer.Header(), handlers.FilterUpstreamHeaders(resp.Headers))
	c.Status(http.StatusOK)
	_, _ = c.Writer.Write(resp.Payload)
}

// handleStreamingResponse forwards upstream chunks verbatim and ends with [DONE].
func (h *OpenAIAPIHandler) handleStreamingResponse(c *gin.Context, cliCtx context.Context, cliCancel context.CancelFunc, rawJSON []byte) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		cliCancel()
		h.WriteErrorResponse(c, &interfaces.ErrorMessage{
			StatusCode: http.StatusInternalServerError,
			Error:      fmt.Errorf("streaming not supported"),
		})
		return
	}

	result, err := h.Upstream.ChatCompletionsStream(cliCtx, rawJSON)
	if err != nil {
		cliCancel()
		h.WriteError(c, err)
		return
	}

	handlers.SetSSEHeaders(c)
	h.ForwardStream(c, flusher, cliCancel, result.Chunks, handlers.StreamForwardOptions{
		WriteChunk: func(payload []byte) error {
			_, _ = fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
			return nil
		},
		WriteDone: func() {
			_, _ = fmt.Fprint(c.Writer, "data: [DONE]\n\n")
		},
		WriteTerminalError: func(errMsg *interfaces.ErrorMessage) {
			status, kind, message := handlers.ErrorParts(errMsg)
			_, _ = fmt.Fprintf(c.Writer, "data: %s\n\n", handlers.BuildErrorResponseBody(status, kind, message))
		},
	})
}

// Embeddings handles POST /embeddings and /v1/embeddings.
func (h *OpenAIAPIHandler) Embeddings(c *gin.Context) {
	rawJSON, err := handlers.ReadJSONObject(c)
	if err != nil {
		h.WriteError(c, err)
		return
	}
	cliCtx, cliCancel := h.GetContextWithCancel(c)
	defer cliCancel()

	resp, err := h.Upstream.Embeddings(cliCtx, rawJSON)
	if err != nil {
		h.WriteError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", resp.Payload)
}

// validateChatRequest checks the fields Copilot needs before the request is admitted.
func validateChatRequest(rawJSON []byte) error {
	root := gjson.ParseBytes(rawJSON)
	if model := root.Get("model"); model.Type != gjson.String || model.String() == "" {
		return interfaces.NewTranslationError("model is required", true, nil)
	}
	if messages := root.Get("messages"); !messages.IsArray() || len(messages.Array()) == 0 {
		return interfaces.NewTranslationError("messages must be a non-empty array", true, nil)
	}
	return nil
}
