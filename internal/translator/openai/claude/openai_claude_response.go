package claude

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/router-for-me/CopilotAPI/internal/interfaces"
	"github.com/tidwall/gjson"
)

// Usage is the Anthropic token accounting block.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Response is a non-streaming Anthropic Messages response.
type Response struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   *string        `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        Usage          `json:"usage"`
}

// stopReasons maps OpenAI finish reasons to Anthropic stop reasons.
var stopReasons = map[string]string{
	"stop":           "end_turn",
	"length":         "max_tokens",
	"tool_calls":     "tool_use",
	"content_filter": "end_turn",
	"function_call":  "tool_use",
}

// MapStopReason translates an OpenAI finish_reason. An empty reason (null upstream)
// maps to nil; unknown reasons map to end_turn.
func MapStopReason(finishReason string) *string {
	if finishReason == "" {
		return nil
	}
	reason, ok := stopReasons[finishReason]
	if !ok {
		reason = "end_turn"
	}
	return &reason
}

// ConvertOpenAIResponseToClaudeNonStream converts a whole OpenAI response into an
// Anthropic response. Text blocks from every choice come first, then tool_use blocks.
func ConvertOpenAIResponseToClaudeNonStream(rawJSON []byte) ([]byte, error) {
	if !gjson.ValidBytes(rawJSON) {
		return nil, interfaces.NewTranslationError("upstream response is not valid JSON", false, nil)
	}
	root := gjson.ParseBytes(rawJSON)
	choices := root.Get("choices")
	if !choices.IsArray() {
		return nil, interfaces.NewTranslationError("upstream response has no choices", false, nil)
	}

	var textBlocks, toolBlocks []ContentBlock
	finishReason := ""
	for _, choice := range choices.Array() {
		textBlocks = append(textBlocks, textBlocksFromContent(choice.Get("message.content"))...)

		for _, call := range choice.Get("message.tool_calls").Array() {
			args := call.Get("function.arguments").String()
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			if !gjson.Valid(args) || !gjson.Parse(args).IsObject() {
				return nil, interfaces.NewTranslationError(
					fmt.Sprintf("tool call %s returned malformed arguments", call.Get("id").String()), false, nil)
			}
			toolBlocks = append(toolBlocks, ToolUseBlock{
				ID:    call.Get("id").String(),
				Name:  call.Get("function.name").String(),
				Input: json.RawMessage(args),
			})
		}

		// tool_calls on any choice wins over a plain stop from another.
		switch reason := choice.Get("finish_reason").String(); {
		case reason == "":
		case finishReason == "", finishReason == "stop", reason == "tool_calls":
			finishReason = reason
		}
	}

	id := root.Get("id").String()
	if id == "" {
		id = newMessageID()
	}
	resp := Response{
		ID:         id,
		Type:       "message",
		Role:       "assistant",
		Model:      root.Get("model").String(),
		Content:    append(textBlocks, toolBlocks...),
		StopReason: MapStopReason(finishReason),
		Usage: Usage{
			InputTokens:  root.Get("usage.prompt_tokens").Int(),
			OutputTokens: root.Get("usage.completion_tokens").Int(),
		},
	}
	if resp.Content == nil {
		resp.Content = []ContentBlock{}
	}
	return json.Marshal(resp)
}

// textBlocksFromContent reads message.content as a string or a list of text parts.
func textBlocksFromContent(content gjson.Result) []ContentBlock {
	if content.Type == gjson.String {
		if content.String() == "" {
			return nil
		}
		return []ContentBlock{TextBlock{Text: content.String()}}
	}
	var blocks []ContentBlock
	content.ForEach(func(_, part gjson.Result) bool {
		if part.Get("type").String() == "text" && part.Get("text").String() != "" {
			blocks = append(blocks, TextBlock{Text: part.Get("text").String()})
		}
		return true
	})
	return blocks
}

func newMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ClaudeTokenCount renders a count_tokens response body.
func ClaudeTokenCount(count int64) []byte {
	return []byte(fmt.Sprintf(`{"input_tokens":%d}`, count))
}
