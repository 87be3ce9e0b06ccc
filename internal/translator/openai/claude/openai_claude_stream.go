package claude

import (
	"encoding/json"
	"fmt"

	"github.com/router-for-me/CopilotAPI/internal/interfaces"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// StreamEvent is one Anthropic SSE event. Implementations: MessageStartEvent,
// ContentBlockStartEvent, ContentBlockDeltaEvent, ContentBlockStopEvent,
// MessageDeltaEvent, MessageStopEvent and ErrorEvent.
type StreamEvent interface {
	EventType() string
}

// MessageStartEvent opens the message envelope.
type MessageStartEvent struct {
	ID          string
	Model       string
	InputTokens int64
}

// ContentBlockStartEvent opens block Index. Block is a TextBlock or a ToolUseBlock.
type ContentBlockStartEvent struct {
	Index int
	Block ContentBlock
}

// ContentBlockDeltaEvent appends to block Index. Exactly one of Text or PartialJSON is used,
// chosen by the block kind.
type ContentBlockDeltaEvent struct {
	Index       int
	Text        string
	PartialJSON string
	inputJSON   bool
}

// ContentBlockStopEvent closes block Index.
type ContentBlockStopEvent struct {
	Index int
}

// MessageDeltaEvent carries the stop reason and final usage.
type MessageDeltaEvent struct {
	StopReason string
	Usage      Usage
}

// MessageStopEvent terminates the stream.
type MessageStopEvent struct{}

// ErrorEvent reports a failure after the stream has started.
type ErrorEvent struct {
	ErrorType string
	Message   string
}

func (MessageStartEvent) EventType() string      { return "message_start" }
func (ContentBlockStartEvent) EventType() string { return "content_block_start" }
func (ContentBlockDeltaEvent) EventType() string { return "content_block_delta" }
func (ContentBlockStopEvent) EventType() string  { return "content_block_stop" }
func (MessageDeltaEvent) EventType() string      { return "message_delta" }
func (MessageStopEvent) EventType() string       { return "message_stop" }
func (ErrorEvent) EventType() string             { return "error" }

func (e MessageStartEvent) MarshalJSON() ([]byte, error) {
	type message struct {
		ID           string         `json:"id"`
		Type         string         `json:"type"`
		Role         string         `json:"role"`
		Model        string         `json:"model"`
		Content      []ContentBlock `json:"content"`
		StopReason   *string        `json:"stop_reason"`
		StopSequence *string        `json:"stop_sequence"`
		Usage        Usage          `json:"usage"`
	}
	return json.Marshal(struct {
		Type    string  `json:"type"`
		Message message `json:"message"`
	}{
		Type: e.EventType(),
		Message: message{
			ID:      e.ID,
			Type:    "message",
			Role:    "assistant",
			Model:   e.Model,
			Content: []ContentBlock{},
			Usage:   Usage{InputTokens: e.InputTokens, OutputTokens: 1},
		},
	})
}

func (e ContentBlockStartEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type         string       `json:"type"`
		Index        int          `json:"index"`
		ContentBlock ContentBlock `json:"content_block"`
	}{Type: e.EventType(), Index: e.Index, ContentBlock: e.Block})
}

func (e ContentBlockDeltaEvent) MarshalJSON() ([]byte, error) {
	type textDelta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	type inputJSONDelta struct {
		Type        string `json:"type"`
		PartialJSON string `json:"partial_json"`
	}
	var delta any = textDelta{Type: "text_delta", Text: e.Text}
	if e.inputJSON {
		delta = inputJSONDelta{Type: "input_json_delta", PartialJSON: e.PartialJSON}
	}
	return json.Marshal(struct {
		Type  string `json:"type"`
		Index int    `json:"index"`
		Delta any    `json:"delta"`
	}{Type: e.EventType(), Index: e.Index, Delta: delta})
}

func (e ContentBlockStopEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type  string `json:"type"`
		Index int    `json:"index"`
	}{Type: e.EventType(), Index: e.Index})
}

func (e MessageDeltaEvent) MarshalJSON() ([]byte, error) {
	type delta struct {
		StopReason   string  `json:"stop_reason"`
		StopSequence *string `json:"stop_sequence"`
	}
	return json.Marshal(struct {
		Type  string `json:"type"`
		Delta delta  `json:"delta"`
		Usage Usage  `json:"usage"`
	}{Type: e.EventType(), Delta: delta{StopReason: e.StopReason}, Usage: e.Usage})
}

func (e MessageStopEvent) MarshalJSON() ([]byte, error) {
	return []byte(`{"type":"message_stop"}`), nil
}

func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	type detail struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	errType := e.ErrorType
	if errType == "" {
		errType = "api_error"
	}
	return json.Marshal(struct {
		Type  string `json:"type"`
		Error detail `json:"error"`
	}{Type: e.EventType(), Error: detail{Type: errType, Message: e.Message}})
}

// EncodeEvent renders an event as an SSE frame: "event: <type>\ndata: <json>\n\n".
func EncodeEvent(event StreamEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.EventType(), data)), nil
}

// ToolCallSlot records where an upstream tool-call slot landed in the Anthropic stream.
type ToolCallSlot struct {
	ID         string
	Name       string
	BlockIndex int
	closed     bool
}

type blockKind int

const (
	blockText blockKind = iota + 1
	blockTool
)

// StreamState translates one OpenAI chunk stream into Anthropic events. It is owned
// by a single response and is not safe for concurrent use.
//
// At most one block is open at a time, ContentBlockIndex never decreases and every
// opened block is closed before message_delta.
type StreamState struct {
	MessageStartSent  bool
	ContentBlockIndex int
	ContentBlockOpen  bool
	ToolCalls         map[int]*ToolCallSlot

	openKind    blockKind
	openSlot    int
	finished    bool
	inputTokens int64
	usage       Usage
	hasUsage    bool
	messageID   string
	model       string
}

// NewStreamState starts a stream. inputTokens is the prompt estimate reported in message_start.
func NewStreamState(inputTokens int64) *StreamState {
	return &StreamState{
		ToolCalls:   make(map[int]*ToolCallSlot),
		inputTokens: inputTokens,
	}
}

// Done reports whether message_stop has been produced.
func (s *StreamState) Done() bool {
	return s.finished
}

// Translate consumes one upstream chunk (the JSON after "data: ") and returns the
// events it produces. Chunks after the terminal one are ignored.
func (s *StreamState) Translate(chunk []byte) ([]StreamEvent, error) {
	if s.finished {
		return nil, nil
	}
	if !gjson.ValidBytes(chunk) {
		return nil, interfaces.NewTranslationError("upstream stream chunk is not valid JSON", false, nil)
	}
	root := gjson.ParseBytes(chunk)
	if s.messageID == "" {
		s.messageID = root.Get("id").String()
	}
	if s.model == "" {
		s.model = root.Get("model").String()
	}
	if usage := root.Get("usage"); usage.IsObject() {
		s.usage = Usage{
			InputTokens:  usage.Get("prompt_tokens").Int(),
			OutputTokens: usage.Get("completion_tokens").Int(),
		}
		s.hasUsage = true
	}

	choice := root.Get("choices.0")
	if !choice.Exists() {
		return nil, nil
	}
	delta := choice.Get("delta")

	var events []StreamEvent
	if delta.Get("role").String() == "assistant" {
		events = s.ensureStarted(events)
	}

	if content := delta.Get("content"); content.Type == gjson.String && content.String() != "" {
		events = s.ensureStarted(events)
		if s.ContentBlockOpen && s.openKind != blockText {
			events = s.closeBlock(events)
		}
		if !s.ContentBlockOpen {
			events = append(events, ContentBlockStartEvent{Index: s.ContentBlockIndex, Block: TextBlock{}})
			s.ContentBlockOpen, s.openKind = true, blockText
		}
		events = append(events, ContentBlockDeltaEvent{Index: s.ContentBlockIndex, Text: content.String()})
	}

	for _, call := range delta.Get("tool_calls").Array() {
		slot := int(call.Get("index").Int())
		id := call.Get("id").String()
		name := call.Get("function.name").String()
		if id != "" && name != "" {
			events = s.ensureStarted(events)
			if s.ContentBlockOpen {
				events = s.closeBlock(events)
			}
			s.ToolCalls[slot] = &ToolCallSlot{ID: id, Name: name, BlockIndex: s.ContentBlockIndex}
			events = append(events, ContentBlockStartEvent{
				Index: s.ContentBlockIndex,
				Block: ToolUseBlock{ID: id, Name: name},
			})
			s.ContentBlockOpen, s.openKind, s.openSlot = true, blockTool, slot
		}
		if args := call.Get("function.arguments").String(); args != "" {
			info, ok := s.ToolCalls[slot]
			if !ok || info.closed {
				log.Debugf("dropping arguments for tool call slot %d without an open block", slot)
				continue
			}
			events = append(events, ContentBlockDeltaEvent{Index: info.BlockIndex, PartialJSON: args, inputJSON: true})
		}
	}

	if reason := choice.Get("finish_reason").String(); reason != "" {
		events = s.terminate(events, *MapStopReason(reason))
	}
	return events, nil
}

// Finish closes a stream that ended without a finish_reason: open blocks are closed
// and the message ends with end_turn. It returns nil once the stream is terminated.
func (s *StreamState) Finish() []StreamEvent {
	if s.finished {
		return nil
	}
	return s.terminate(nil, "end_turn")
}

// Abort ends a stream that failed mid-way. It closes the open block so the caller
// can follow with an error event; no message_delta or message_stop is produced.
func (s *StreamState) Abort() []StreamEvent {
	if s.finished {
		return nil
	}
	s.finished = true
	return s.closeBlock(nil)
}

func (s *StreamState) ensureStarted(events []StreamEvent) []StreamEvent {
	if s.MessageStartSent {
		return events
	}
	s.MessageStartSent = true
	if s.messageID == "" {
		s.messageID = newMessageID()
	}
	return append(events, MessageStartEvent{ID: s.messageID, Model: s.model, InputTokens: s.inputTokens})
}

func (s *StreamState) closeBlock(events []StreamEvent) []StreamEvent {
	if !s.ContentBlockOpen {
		return events
	}
	events = append(events, ContentBlockStopEvent{Index: s.ContentBlockIndex})
	if s.openKind == blockTool {
		if info, ok := s.ToolCalls[s.openSlot]; ok {
			info.closed = true
		}
	}
	s.ContentBlockIndex++
	s.ContentBlockOpen = false
	s.openKind = 0
	return events
}

func (s *StreamState) terminate(events []StreamEvent, stopReason string) []StreamEvent {
	events = s.ensureStarted(events)
	events = s.closeBlock(events)
	usage := Usage{InputTokens: s.inputTokens}
	if s.hasUsage {
		usage = s.usage
	}
	events = append(events, MessageDeltaEvent{StopReason: stopReason, Usage: usage}, MessageStopEvent{})
	s.finished = true
	return events
}
