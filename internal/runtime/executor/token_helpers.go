package executor

import (
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tiktoken-go/tokenizer"
)

// perMessageOverhead approximates the role and separator tokens OpenAI adds per message.
const perMessageOverhead = 3

var codecCache sync.Map // encoding name -> tokenizer.Codec

// tokenizerForModel picks the encoding for a Copilot model id. Claude and Gemini
// models have no public tokenizer; o200k is used as the closest estimate.
func tokenizerForModel(model string) (tokenizer.Codec, error) {
	encoding := tokenizer.O200kBase
	switch sanitized := strings.ToLower(strings.TrimSpace(model)); {
	case strings.HasPrefix(sanitized, "gpt-3.5"),
		strings.HasPrefix(sanitized, "gpt-4") && !strings.HasPrefix(sanitized, "gpt-4o") && !strings.HasPrefix(sanitized, "gpt-4.1"),
		strings.HasPrefix(sanitized, "text-embedding"):
		encoding = tokenizer.Cl100kBase
	}
	if cached, ok := codecCache.Load(encoding); ok {
		return cached.(tokenizer.Codec), nil
	}
	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, err
	}
	codecCache.Store(encoding, codec)
	return codec, nil
}

// CountChatTokens estimates the prompt tokens of an OpenAI chat payload: message
// text, tool call arguments and tool definitions. Image parts are not counted.
// It returns at least 1 so callers always have a usable placeholder.
func CountChatTokens(model string, payload []byte) int64 {
	codec, err := tokenizerForModel(model)
	if err != nil {
		log.Debugf("token count: no tokenizer for %s: %v", model, err)
		return 1
	}
	root := gjson.ParseBytes(payload)

	var segments []string
	messages := root.Get("messages").Array()
	for _, message := range messages {
		collectMessage(message, &segments)
	}
	root.Get("tools").ForEach(func(_, tool gjson.Result) bool {
		addIfNotEmpty(&segments, tool.Get("function.name").String())
		addIfNotEmpty(&segments, tool.Get("function.description").String())
		if params := tool.Get("function.parameters"); params.Exists() {
			addIfNotEmpty(&segments, params.Raw)
		}
		return true
	})

	joined := strings.Join(segments, "\n")
	if joined == "" {
		return 1
	}
	count, err := codec.Count(joined)
	if err != nil {
		log.Debugf("token count failed for %s: %v", model, err)
		return 1
	}
	total := int64(count) + int64(len(messages)*perMessageOverhead)
	if total < 1 {
		total = 1
	}
	return total
}

func collectMessage(message gjson.Result, segments *[]string) {
	addIfNotEmpty(segments, message.Get("role").String())
	content := message.Get("content")
	switch {
	case content.Type == gjson.String:
		addIfNotEmpty(segments, content.String())
	case content.IsArray():
		content.ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "text" {
				addIfNotEmpty(segments, part.Get("text").String())
			}
			return true
		})
	}
	message.Get("tool_calls").ForEach(func(_, call gjson.Result) bool {
		addIfNotEmpty(segments, call.Get("function.name").String())
		addIfNotEmpty(segments, call.Get("function.arguments").String())
		return true
	})
}

func addIfNotEmpty(segments *[]string, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		*segments = append(*segments, trimmed)
	}
}
