package claude

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func translateAll(t *testing.T, state *StreamState, chunks ...string) []StreamEvent {
	t.Helper()
	var events []StreamEvent
	for _, chunk := range chunks {
		out, err := state.Translate([]byte(chunk))
		if err != nil {
			t.Fatalf("Translate(%s): %v", chunk, err)
		}
		events = append(events, out...)
	}
	return events
}

func eventTypes(events []StreamEvent) []string {
	types := make([]string, 0, len(events))
	for _, event := range events {
		types = append(types, event.EventType())
	}
	return types
}

func TestStreamState_ToolCallAcrossChunks(t *testing.T) {
	state := NewStreamState(10)
	events := translateAll(t, state,
		`{"id":"chatcmpl-1","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather","arguments":""}}]}}]}`,
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"loc"}}]}}]}`,
		`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ation\":\"Boston\"}"}}]}}]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`,
	)

	want := []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}
	if got := eventTypes(events); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("event sequence = %v, want %v", got, want)
	}

	start := events[1].(ContentBlockStartEvent)
	if tool, ok := start.Block.(ToolUseBlock); !ok || tool.ID != "call_1" || tool.Name != "get_weather" {
		t.Fatalf("unexpected block start: %+v", start)
	}
	fragments := []string{`{"loc`, `ation":"Boston"}`}
	for i, fragment := range fragments {
		delta := events[2+i].(ContentBlockDeltaEvent)
		raw, err := EncodeEvent(delta)
		if err != nil {
			t.Fatalf("encode delta: %v", err)
		}
		data := gjson.Get(strings.TrimSpace(strings.SplitN(string(raw), "data: ", 2)[1]), "delta")
		if data.Get("type").String() != "input_json_delta" || data.Get("partial_json").String() != fragment {
			t.Errorf("delta %d = %s, want input_json_delta %q", i, data.Raw, fragment)
		}
	}

	msgDelta := events[5].(MessageDeltaEvent)
	if msgDelta.StopReason != "tool_use" {
		t.Errorf("stop_reason = %q, want tool_use", msgDelta.StopReason)
	}
	if msgDelta.Usage.OutputTokens != 5 {
		t.Errorf("output_tokens = %d, want 5", msgDelta.Usage.OutputTokens)
	}
	if !state.Done() {
		t.Error("state must be done after finish_reason")
	}
}

func TestStreamState_TextThenToolKeepsIndicesMonotonic(t *testing.T) {
	state := NewStreamState(0)
	events := translateAll(t, state,
		`{"choices":[{"delta":{"role":"assistant","content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"a","function":{"name":"one","arguments":"{}"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":1,"id":"b","function":{"name":"two","arguments":"{}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	)

	open := -1
	lastIndex := -1
	starts := 0
	for _, event := range events {
		switch e := event.(type) {
		case ContentBlockStartEvent:
			if open != -1 {
				t.Fatalf("block %d opened while %d still open", e.Index, open)
			}
			if e.Index <= lastIndex {
				t.Fatalf("block index %d not after %d", e.Index, lastIndex)
			}
			open, lastIndex = e.Index, e.Index
			starts++
		case ContentBlockDeltaEvent:
			if e.Index != open {
				t.Fatalf("delta for block %d while %d open", e.Index, open)
			}
		case ContentBlockStopEvent:
			if e.Index != open {
				t.Fatalf("stop for block %d while %d open", e.Index, open)
			}
			open = -1
		case MessageDeltaEvent:
			if open != -1 {
				t.Fatalf("message_delta with block %d still open", open)
			}
		}
	}
	if starts != 3 {
		t.Errorf("expected 3 blocks, got %d", starts)
	}
	if state.ContentBlockIndex != 3 {
		t.Errorf("ContentBlockIndex = %d, want 3", state.ContentBlockIndex)
	}
}

func TestStreamState_TruncatedStreamIsClosed(t *testing.T) {
	state := NewStreamState(3)
	translateAll(t, state,
		`{"choices":[{"delta":{"role":"assistant","content":"partial"}}]}`,
	)
	if state.Done() {
		t.Fatal("state must not be done before finish")
	}

	events := state.Finish()
	want := []string{"content_block_stop", "message_delta", "message_stop"}
	if got := eventTypes(events); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("finish sequence = %v, want %v", got, want)
	}
	if reason := events[1].(MessageDeltaEvent).StopReason; reason != "end_turn" {
		t.Errorf("stop_reason = %q, want end_turn", reason)
	}
	if more := state.Finish(); more != nil {
		t.Errorf("second Finish must be a no-op, got %v", eventTypes(more))
	}
}

func TestStreamState_AbortClosesOpenBlock(t *testing.T) {
	state := NewStreamState(3)
	translateAll(t, state,
		`{"choices":[{"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_1","function":{"name":"lookup","arguments":"{\"q\""}}]}}]}`,
	)

	events := state.Abort()
	if got := eventTypes(events); strings.Join(got, ",") != "content_block_stop" {
		t.Fatalf("abort sequence = %v, want [content_block_stop]", got)
	}
	if events[0].(ContentBlockStopEvent).Index != 0 {
		t.Errorf("closed index = %d, want 0", events[0].(ContentBlockStopEvent).Index)
	}
	if !state.Done() {
		t.Error("state must be done after abort")
	}
	if more := state.Finish(); more != nil {
		t.Errorf("Finish after Abort must be a no-op, got %v", eventTypes(more))
	}
	if more := state.Abort(); more != nil {
		t.Errorf("second Abort must be a no-op, got %v", eventTypes(more))
	}
}

func TestStreamState_EmptyStreamStillTerminates(t *testing.T) {
	state := NewStreamState(0)
	events := state.Finish()
	want := []string{"message_start", "message_delta", "message_stop"}
	if got := eventTypes(events); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("finish sequence = %v, want %v", got, want)
	}
}

func TestStreamState_IgnoresChunksAfterFinish(t *testing.T) {
	state := NewStreamState(0)
	translateAll(t, state, `{"choices":[{"delta":{"content":"x"},"finish_reason":"stop"}]}`)
	events := translateAll(t, state, `{"choices":[{"delta":{"content":"late"}}]}`)
	if len(events) != 0 {
		t.Errorf("expected no events after finish, got %v", eventTypes(events))
	}
}

func TestStreamState_OrphanArgumentsDropped(t *testing.T) {
	state := NewStreamState(0)
	events := translateAll(t, state,
		`{"choices":[{"delta":{"tool_calls":[{"index":3,"function":{"arguments":"{}"}}]}}]}`,
	)
	if len(events) != 0 {
		t.Errorf("expected orphan fragment to be dropped, got %v", eventTypes(events))
	}
}

func TestStreamState_InvalidChunk(t *testing.T) {
	state := NewStreamState(0)
	if _, err := state.Translate([]byte(`{"choices":`)); err == nil {
		t.Fatal("expected error for invalid chunk")
	}
}

func TestEncodeEvent(t *testing.T) {
	tests := []struct {
		name  string
		event StreamEvent
		path  string
		want  string
	}{
		{name: "message start", event: MessageStartEvent{ID: "msg_1", Model: "gpt-4o", InputTokens: 9}, path: "message.usage.input_tokens", want: "9"},
		{name: "text block", event: ContentBlockStartEvent{Index: 0, Block: TextBlock{}}, path: "content_block.type", want: "text"},
		{name: "text delta", event: ContentBlockDeltaEvent{Index: 0, Text: "hi"}, path: "delta.type", want: "text_delta"},
		{name: "stop", event: ContentBlockStopEvent{Index: 2}, path: "index", want: "2"},
		{name: "message delta", event: MessageDeltaEvent{StopReason: "end_turn"}, path: "delta.stop_reason", want: "end_turn"},
		{name: "message stop", event: MessageStopEvent{}, path: "type", want: "message_stop"},
		{name: "error", event: ErrorEvent{Message: "boom"}, path: "error.type", want: "api_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := EncodeEvent(tt.event)
			if err != nil {
				t.Fatalf("EncodeEvent: %v", err)
			}
			frame := string(raw)
			prefix := "event: " + tt.event.EventType() + "\ndata: "
			if !strings.HasPrefix(frame, prefix) || !strings.HasSuffix(frame, "\n\n") {
				t.Fatalf("malformed frame %q", frame)
			}
			data := strings.TrimSuffix(strings.TrimPrefix(frame, prefix), "\n\n")
			if got := gjson.Get(data, tt.path).String(); got != tt.want {
				t.Errorf("%s = %q, want %q (%s)", tt.path, got, tt.want, data)
			}
		})
	}
}
