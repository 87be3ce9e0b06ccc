package claude

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// ContentBlock is one Anthropic content block. The set of implementations is closed:
// TextBlock, ImageBlock, ToolUseBlock, ToolResultBlock and ThinkingBlock.
type ContentBlock interface {
	isContentBlock()
}

// TextBlock is plain text.
type TextBlock struct {
	Text string
}

// ImageBlock is an inline image. URL is set for url sources, MediaType and Data for base64 ones.
type ImageBlock struct {
	MediaType string
	Data      string
	URL       string
}

// ToolUseBlock is a tool invocation by the assistant. Input is a JSON object.
type ToolUseBlock struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResultBlock carries a tool's output back to the model.
type ToolResultBlock struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// ThinkingBlock is free-form reasoning text.
type ThinkingBlock struct {
	Thinking string
}

func (TextBlock) isContentBlock()       {}
func (ImageBlock) isContentBlock()      {}
func (ToolUseBlock) isContentBlock()    {}
func (ToolResultBlock) isContentBlock() {}
func (ThinkingBlock) isContentBlock()   {}

func (b TextBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}{Type: "text", Text: b.Text})
}

func (b ImageBlock) MarshalJSON() ([]byte, error) {
	type source struct {
		Type      string `json:"type"`
		MediaType string `json:"media_type,omitempty"`
		Data      string `json:"data,omitempty"`
		URL       string `json:"url,omitempty"`
	}
	src := source{Type: "base64", MediaType: b.MediaType, Data: b.Data}
	if b.URL != "" {
		src = source{Type: "url", URL: b.URL}
	}
	return json.Marshal(struct {
		Type   string `json:"type"`
		Source source `json:"source"`
	}{Type: "image", Source: src})
}

func (b ToolUseBlock) MarshalJSON() ([]byte, error) {
	input := b.Input
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	return json.Marshal(struct {
		Type  string          `json:"type"`
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Input json.RawMessage `json:"input"`
	}{Type: "tool_use", ID: b.ID, Name: b.Name, Input: input})
}

func (b ToolResultBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string `json:"type"`
		ToolUseID string `json:"tool_use_id"`
		Content   string `json:"content"`
		IsError   bool   `json:"is_error,omitempty"`
	}{Type: "tool_result", ToolUseID: b.ToolUseID, Content: b.Content, IsError: b.IsError})
}

func (b ThinkingBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string `json:"type"`
		Thinking string `json:"thinking"`
	}{Type: "thinking", Thinking: b.Thinking})
}

// parseContentBlock decodes one block of an Anthropic content array.
// Unknown block types (redacted_thinking, documents, ...) are reported as not ok.
func parseContentBlock(part gjson.Result) (ContentBlock, bool) {
	switch part.Get("type").String() {
	case "text":
		return TextBlock{Text: part.Get("text").String()}, true
	case "image":
		source := part.Get("source")
		if source.Get("type").String() == "url" {
			return ImageBlock{URL: source.Get("url").String()}, true
		}
		mediaType := source.Get("media_type").String()
		if mediaType == "" {
			mediaType = "application/octet-stream"
		}
		return ImageBlock{MediaType: mediaType, Data: source.Get("data").String()}, true
	case "tool_use":
		var input json.RawMessage
		if raw := part.Get("input"); raw.Exists() {
			input = json.RawMessage(raw.Raw)
		}
		return ToolUseBlock{ID: part.Get("id").String(), Name: part.Get("name").String(), Input: input}, true
	case "tool_result":
		return ToolResultBlock{
			ToolUseID: part.Get("tool_use_id").String(),
			Content:   toolResultContentToString(part.Get("content")),
			IsError:   part.Get("is_error").Bool(),
		}, true
	case "thinking":
		return ThinkingBlock{Thinking: part.Get("thinking").String()}, true
	default:
		return nil, false
	}
}

// parseContentBlocks decodes a content value that is either a string or an array of blocks.
func parseContentBlocks(content gjson.Result) []ContentBlock {
	if content.Type == gjson.String {
		return []ContentBlock{TextBlock{Text: content.String()}}
	}
	var blocks []ContentBlock
	content.ForEach(func(_, part gjson.Result) bool {
		if block, ok := parseContentBlock(part); ok {
			blocks = append(blocks, block)
		}
		return true
	})
	return blocks
}
