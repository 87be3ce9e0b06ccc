// Package claude provides the Anthropic Messages surface of the gateway. Requests
// are translated to OpenAI Chat Completions, sent to Copilot, and the answers
// (whole or streamed) are translated back.
package claude

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CopilotAPI/internal/interfaces"
	"github.com/router-for-me/CopilotAPI/internal/runtime/executor"
	translator "github.com/router-for-me/CopilotAPI/internal/translator/openai/claude"
	"github.com/router-for-me/CopilotAPI/sdk/api/handlers"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// ClaudeAPIHandler contains the handlers for Anthropic API endpoints.
type ClaudeAPIHandler struct {
	*handlers.BaseAPIHandler
}

// NewClaudeAPIHandler creates a new Anthropic API handlers instance.
func NewClaudeAPIHandler(apiHandlers *handlers.BaseAPIHandler) *ClaudeAPIHandler {
	return &ClaudeAPIHandler{BaseAPIHandler: apiHandlers}
}

// ClaudeMessages handles POST /v1/messages.
func (h *ClaudeAPIHandler) ClaudeMessages(c *gin.Context) {
	rawJSON, err := handlers.ReadJSONObject(c)
	if err != nil {
		h.WriteError(c, err)
		return
	}

	// Malformed bodies are rejected before they can take a rate-limit slot or
	// reach the approval prompt.
	openAIRequest, err := translator.ConvertClaudeRequestToOpenAI(rawJSON)
	if err != nil {
		h.WriteError(c, err)
		return
	}

	cliCtx, cliCancel := h.GetContextWithCancel(c)
	if err = h.Admit(cliCtx, handlers.RequestSummary(c, rawJSON)); err != nil {
		cliCancel()
		h.WriteError(c, err)
		return
	}
	openAIRequest = h.BackfillMaxTokens(cliCtx, openAIRequest)

	if gjson.GetBytes(openAIRequest, "stream").Bool() {
		h.handleStreamingResponse(c, cliCtx, cliCancel, openAIRequest)
		return
	}
	defer cliCancel()

	resp, err := h.Upstream.ChatCompletions(cliCtx, openAIRequest)
	if err != nil {
		h.WriteError(c, err)
		return
	}
	out, err := translator.ConvertOpenAIResponseToClaudeNonStream(resp.Payload)
	if err != nil {
		h.WriteError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", out)
}

// handleStreamingResponse relays the upstream chunk stream as Anthropic events. Errors
// before the first byte get a normal JSON error; later ones become an error event.
func (h *ClaudeAPIHandler) handleStreamingResponse(c *gin.Context, cliCtx context.Context, cliCancel context.CancelFunc, openAIRequest []byte) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		cliCancel()
		h.WriteErrorResponse(c, &interfaces.ErrorMessage{
			StatusCode: http.StatusInternalServerError,
			Error:      fmt.Errorf("streaming not supported"),
		})
		return
	}

	model := gjson.GetBytes(openAIRequest, "model").String()
	state := translator.NewStreamState(executor.CountChatTokens(model, openAIRequest))

	result, err := h.Upstream.ChatCompletionsStream(cliCtx, openAIRequest)
	if err != nil {
		cliCancel()
		h.WriteError(c, err)
		return
	}

	handlers.SetSSEHeaders(c)
	h.ForwardStream(c, flusher, cliCancel, result.Chunks, handlers.StreamForwardOptions{
		WriteChunk: func(payload []byte) error {
			events, errTranslate := state.Translate(payload)
			if errTranslate != nil {
				return errTranslate
			}
			return writeEvents(c, events)
		},
		WriteDone: func() {
			_ = writeEvents(c, state.Finish())
		},
		WriteTerminalError: func(errMsg *interfaces.ErrorMessage) {
			_, _, message := handlers.ErrorParts(errMsg)
			_ = writeEvents(c, append(state.Abort(), translator.ErrorEvent{Message: message}))
		},
	})
}

// ClaudeCountTokens handles POST /v1/messages/count_tokens with a local estimate.
func (h *ClaudeAPIHandler) ClaudeCountTokens(c *gin.Context) {
	rawJSON, err := handlers.ReadJSONObject(c)
	if err != nil {
		h.WriteError(c, err)
		return
	}
	openAIRequest, err := translator.ConvertClaudeRequestToOpenAI(rawJSON)
	if err != nil {
		h.WriteError(c, err)
		return
	}
	count := executor.CountChatTokens(gjson.GetBytes(openAIRequest, "model").String(), openAIRequest)
	c.Data(http.StatusOK, "application/json", translator.ClaudeTokenCount(count))
}

// writeEvents encodes events as SSE frames.
func writeEvents(c *gin.Context, events []translator.StreamEvent) error {
	for _, event := range events {
		frame, err := translator.EncodeEvent(event)
		if err != nil {
			return interfaces.NewTranslationError("failed to encode stream event", false, err)
		}
		if _, err = c.Writer.Write(frame); err != nil {
			log.Debugf("write stream event: %v", err)
			return nil
		}
	}
	return nil
}
