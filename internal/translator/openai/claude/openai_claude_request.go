// Package claude translates between the Anthropic Messages wire format and the
// OpenAI Chat Completions format spoken by the Copilot backend: requests in one
// direction, whole and streamed responses in the other.
package claude

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/router-for-me/CopilotAPI/internal/interfaces"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ValidateClaudeRequest checks the minimal shape of an Anthropic request body.
func ValidateClaudeRequest(rawJSON []byte) error {
	if !gjson.ValidBytes(rawJSON) {
		return interfaces.NewTranslationError("request body must be valid JSON", true, nil)
	}
	root := gjson.ParseBytes(rawJSON)
	if !root.IsObject() {
		return interfaces.NewTranslationError("request body must be a JSON object", true, nil)
	}
	if model := root.Get("model"); model.Type != gjson.String || strings.TrimSpace(model.String()) == "" {
		return interfaces.NewTranslationError("model is required", true, nil)
	}
	messages := root.Get("messages")
	if !messages.IsArray() || len(messages.Array()) == 0 {
		return interfaces.NewTranslationError("messages must be a non-empty array", true, nil)
	}
	for i, message := range messages.Array() {
		switch message.Get("role").String() {
		case "user", "assistant":
		default:
			return interfaces.NewTranslationError(fmt.Sprintf("messages.%d.role must be user or assistant", i), true, nil)
		}
		content := message.Get("content")
		if content.Type != gjson.String && !content.IsArray() {
			return interfaces.NewTranslationError(fmt.Sprintf("messages.%d.content must be a string or an array", i), true, nil)
		}
		if content.IsArray() && len(content.Array()) == 0 {
			return interfaces.NewTranslationError(fmt.Sprintf("messages.%d.content must not be empty", i), true, nil)
		}
	}
	return nil
}

// ConvertClaudeRequestToOpenAI parses and transforms an Anthropic API request into OpenAI
// Chat Completions format. Optional fields are carried over only when present, so an
// absent stream flag stays absent.
func ConvertClaudeRequestToOpenAI(rawJSON []byte) ([]byte, error) {
	if err := ValidateClaudeRequest(rawJSON); err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(rawJSON)

	out := []byte(`{"model":"","messages":[]}`)
	out, _ = sjson.SetBytes(out, "model", NormalizeModelName(root.Get("model").String()))

	messages := []byte(`[]`)
	if system := systemPrompt(root.Get("system")); system != "" {
		msg, _ := sjson.SetBytes([]byte(`{"role":"system"}`), "content", system)
		messages, _ = sjson.SetRawBytes(messages, "-1", msg)
	}
	turns := 0
	for _, message := range root.Get("messages").Array() {
		var converted [][]byte
		var err error
		if message.Get("role").String() == "assistant" {
			converted, err = convertAssistantMessage(message.Get("content"))
		} else {
			converted = convertUserMessage(message.Get("content"))
		}
		if err != nil {
			return nil, err
		}
		for _, msg := range converted {
			messages, _ = sjson.SetRawBytes(messages, "-1", msg)
		}
		turns += len(converted)
	}
	if turns == 0 {
		return nil, interfaces.NewTranslationError("messages contain no supported content blocks", true, nil)
	}
	out, _ = sjson.SetRawBytes(out, "messages", messages)

	if maxTokens := root.Get("max_tokens"); maxTokens.Exists() {
		out, _ = sjson.SetBytes(out, "max_tokens", maxTokens.Int())
	}
	if stop := root.Get("stop_sequences"); stop.IsArray() {
		out, _ = sjson.SetRawBytes(out, "stop", []byte(stop.Raw))
	}
	if stream := root.Get("stream"); stream.Exists() {
		out, _ = sjson.SetBytes(out, "stream", stream.Bool())
	}
	if temp := root.Get("temperature"); temp.Exists() {
		out, _ = sjson.SetBytes(out, "temperature", temp.Float())
	}
	if topP := root.Get("top_p"); topP.Exists() {
		out, _ = sjson.SetBytes(out, "top_p", topP.Float())
	}
	if user := root.Get("metadata.user_id"); user.Exists() {
		out, _ = sjson.SetBytes(out, "user", user.String())
	}

	if tools := root.Get("tools"); tools.IsArray() {
		toolsJSON := []byte(`[]`)
		tools.ForEach(func(_, tool gjson.Result) bool {
			openAITool := []byte(`{"type":"function","function":{"name":""}}`)
			openAITool, _ = sjson.SetBytes(openAITool, "function.name", tool.Get("name").String())
			if desc := tool.Get("description"); desc.Exists() {
				openAITool, _ = sjson.SetBytes(openAITool, "function.description", desc.String())
			}
			if schema := tool.Get("input_schema"); schema.Exists() {
				openAITool, _ = sjson.SetRawBytes(openAITool, "function.parameters", []byte(schema.Raw))
			}
			toolsJSON, _ = sjson.SetRawBytes(toolsJSON, "-1", openAITool)
			return true
		})
		out, _ = sjson.SetRawBytes(out, "tools", toolsJSON)
	}

	if toolChoice := root.Get("tool_choice"); toolChoice.Exists() {
		switch toolChoice.Get("type").String() {
		case "auto":
			out, _ = sjson.SetBytes(out, "tool_choice", "auto")
		case "any":
			out, _ = sjson.SetBytes(out, "tool_choice", "required")
		case "none":
			out, _ = sjson.SetBytes(out, "tool_choice", "none")
		case "tool":
			if name := toolChoice.Get("name").String(); name != "" {
				choice, _ := sjson.SetBytes([]byte(`{"type":"function","function":{"name":""}}`), "function.name", name)
				out, _ = sjson.SetRawBytes(out, "tool_choice", choice)
			}
		}
	}

	return out, nil
}

// systemPrompt flattens a string or a list of text blocks into one prompt.
func systemPrompt(system gjson.Result) string {
	if system.Type == gjson.String {
		return system.String()
	}
	if !system.IsArray() {
		return ""
	}
	var parts []string
	system.ForEach(func(_, block gjson.Result) bool {
		if text := block.Get("text"); text.Exists() {
			parts = append(parts, text.String())
		}
		return true
	})
	return strings.Join(parts, "\n\n")
}

// convertUserMessage splits tool results out of a user turn. The tool messages come
// first so each one directly follows the assistant turn that requested it.
func convertUserMessage(content gjson.Result) [][]byte {
	if content.Type == gjson.String {
		msg, _ := sjson.SetBytes([]byte(`{"role":"user"}`), "content", content.String())
		return [][]byte{msg}
	}

	var out [][]byte
	var others []ContentBlock
	for _, block := range parseContentBlocks(content) {
		switch b := block.(type) {
		case ToolResultBlock:
			msg := []byte(`{"role":"tool","tool_call_id":"","content":""}`)
			msg, _ = sjson.SetBytes(msg, "tool_call_id", b.ToolUseID)
			msg, _ = sjson.SetBytes(msg, "content", b.Content)
			out = append(out, msg)
		case TextBlock, ImageBlock, ThinkingBlock:
			others = append(others, b)
		case ToolUseBlock:
			// tool_use is only meaningful on assistant turns.
		}
	}
	if len(others) > 0 {
		msg, _ := sjson.SetRawBytes([]byte(`{"role":"user"}`), "content", mapContent(others))
		out = append(out, msg)
	}
	return out
}

// convertAssistantMessage folds text and thinking into content and carries tool_use
// blocks as tool_calls on the same message.
func convertAssistantMessage(content gjson.Result) ([][]byte, error) {
	if content.Type == gjson.String {
		msg, _ := sjson.SetBytes([]byte(`{"role":"assistant"}`), "content", content.String())
		return [][]byte{msg}, nil
	}

	blocks := parseContentBlocks(content)
	var texts []string
	var toolCalls [][]byte
	for _, block := range blocks {
		switch b := block.(type) {
		case TextBlock:
			texts = append(texts, b.Text)
		case ThinkingBlock:
			texts = append(texts, b.Thinking)
		case ToolUseBlock:
			args, err := compactArguments(b.Input)
			if err != nil {
				return nil, interfaces.NewTranslationError(fmt.Sprintf("tool_use %s has invalid input", b.ID), true, err)
			}
			call := []byte(`{"id":"","type":"function","function":{"name":"","arguments":""}}`)
			call, _ = sjson.SetBytes(call, "id", b.ID)
			call, _ = sjson.SetBytes(call, "function.name", b.Name)
			call, _ = sjson.SetBytes(call, "function.arguments", args)
			toolCalls = append(toolCalls, call)
		case ImageBlock, ToolResultBlock:
			// Assistant turns carry neither; dropped.
		}
	}

	msg := []byte(`{"role":"assistant"}`)
	if len(toolCalls) == 0 {
		msg, _ = sjson.SetRawBytes(msg, "content", mapContent(blocks))
		return [][]byte{msg}, nil
	}
	if joined := strings.Join(texts, "\n\n"); joined != "" {
		msg, _ = sjson.SetBytes(msg, "content", joined)
	} else {
		msg, _ = sjson.SetRawBytes(msg, "content", []byte("null"))
	}
	calls := []byte(`[]`)
	for _, call := range toolCalls {
		calls, _ = sjson.SetRawBytes(calls, "-1", call)
	}
	msg, _ = sjson.SetRawBytes(msg, "tool_calls", calls)
	return [][]byte{msg}, nil
}

// mapContent renders blocks as OpenAI content: a single string when the blocks are
// all textual, a content-part list when an image is present.
func mapContent(blocks []ContentBlock) []byte {
	hasImage := false
	for _, block := range blocks {
		if _, ok := block.(ImageBlock); ok {
			hasImage = true
			break
		}
	}

	if !hasImage {
		var texts []string
		for _, block := range blocks {
			switch b := block.(type) {
			case TextBlock:
				texts = append(texts, b.Text)
			case ThinkingBlock:
				texts = append(texts, b.Thinking)
			}
		}
		out, _ := json.Marshal(strings.Join(texts, "\n\n"))
		return out
	}

	parts := []byte(`[]`)
	for _, block := range blocks {
		var part []byte
		switch b := block.(type) {
		case TextBlock:
			part, _ = sjson.SetBytes([]byte(`{"type":"text"}`), "text", b.Text)
		case ThinkingBlock:
			part, _ = sjson.SetBytes([]byte(`{"type":"text"}`), "text", b.Thinking)
		case ImageBlock:
			url := b.URL
			if url == "" {
				url = "data:" + b.MediaType + ";base64," + b.Data
			}
			part, _ = sjson.SetBytes([]byte(`{"type":"image_url","image_url":{"url":""}}`), "image_url.url", url)
		default:
			continue
		}
		parts, _ = sjson.SetRawBytes(parts, "-1", part)
	}
	return parts
}

// compactArguments renders a tool_use input as the compact JSON string OpenAI expects.
func compactArguments(input json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(input)) == 0 {
		return "{}", nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, input); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// toolResultContentToString flattens tool_result content, which may be a string,
// a list of text blocks, or an arbitrary JSON value.
func toolResultContentToString(content gjson.Result) string {
	if !content.Exists() {
		return ""
	}
	if content.Type == gjson.String {
		return content.String()
	}
	if content.IsArray() {
		var parts []string
		content.ForEach(func(_, item gjson.Result) bool {
			switch {
			case item.Type == gjson.String:
				parts = append(parts, item.String())
			case item.IsObject() && item.Get("text").Type == gjson.String:
				parts = append(parts, item.Get("text").String())
			default:
				parts = append(parts, item.Raw)
			}
			return true
		})
		joined := strings.Join(parts, "\n\n")
		if strings.TrimSpace(joined) != "" {
			return joined
		}
		return content.Raw
	}
	if content.IsObject() {
		if text := content.Get("text"); text.Type == gjson.String {
			return text.String()
		}
	}
	return content.Raw
}
