package claude

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CopilotAPI/internal/config"
	"github.com/router-for-me/CopilotAPI/internal/interfaces"
	"github.com/router-for-me/CopilotAPI/internal/runtime/executor"
	"github.com/router-for-me/CopilotAPI/internal/session"
	"github.com/router-for-me/CopilotAPI/sdk/api/handlers"
	"github.com/tidwall/gjson"
)

type fakeUpstream struct {
	response   []byte
	chunks     []executor.StreamChunk
	err        error
	lastBody   []byte
	chatCalled bool
}

func (f *fakeUpstream) ChatCompletions(_ context.Context, body []byte) (*executor.Response, error) {
	f.chatCalled = true
	f.lastBody = body
	if f.err != nil {
		return nil, f.err
	}
	return &executor.Response{Payload: f.response}, nil
}

func (f *fakeUpstream) ChatCompletionsStream(_ context.Context, body []byte) (*executor.StreamResult, error) {
	f.chatCalled = true
	f.lastBody = body
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan executor.StreamChunk, len(f.chunks))
	for _, chunk := range f.chunks {
		ch <- chunk
	}
	close(ch)
	return &executor.StreamResult{Chunks: ch}, nil
}

func (f *fakeUpstream) FetchModels(context.Context) ([]session.ModelDescriptor, error) {
	return []session.ModelDescriptor{{ID: "gpt-4o", Vendor: "Azure OpenAI", MaxOutputTokens: 4096}}, nil
}

func (f *fakeUpstream) Embeddings(context.Context, []byte) (*executor.Response, error) {
	return nil, errors.New("not implemented")
}

type denyGate struct{ err error }

func (g denyGate) Admit(context.Context, string) error { return g.err }

func newRouter(upstream handlers.Upstream, gate handlers.Admitter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	base := handlers.NewBaseAPIHandlers(&config.SDKConfig{}, session.New(session.TierIndividual), upstream, gate)
	h := NewClaudeAPIHandler(base)
	router := gin.New()
	router.POST("/v1/messages", h.ClaudeMessages)
	router.POST("/v1/messages/count_tokens", h.ClaudeCountTokens)
	return router
}

func post(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func eventNames(body string) []string {
	var names []string
	for _, line := range strings.Split(body, "\n") {
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			names = append(names, name)
		}
	}
	return names
}

func eventData(body, name string) []string {
	var out []string
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if line == "event: "+name && i+1 < len(lines) {
			out = append(out, strings.TrimPrefix(lines[i+1], "data: "))
		}
	}
	return out
}

func TestClaudeMessagesNonStream(t *testing.T) {
	upstream := &fakeUpstream{response: []byte(`{"id":"chatcmpl-1","model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"Hi there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":9,"completion_tokens":3}}`)}
	router := newRouter(upstream, nil)

	recorder := post(router, "/v1/messages", `{"model":"claude-sonnet-4-20250514","max_tokens":100,"messages":[{"role":"user","content":"Hello"}]}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	body := recorder.Body.Bytes()
	checks := []struct {
		path string
		want string
	}{
		{"type", "message"},
		{"role", "assistant"},
		{"content.0.type", "text"},
		{"content.0.text", "Hi there"},
		{"stop_reason", "end_turn"},
		{"usage.input_tokens", "9"},
		{"usage.output_tokens", "3"},
	}
	for _, check := range checks {
		if got := gjson.GetBytes(body, check.path).String(); got != check.want {
			t.Errorf("%s = %q, want %q", check.path, got, check.want)
		}
	}
	if got := gjson.GetBytes(upstream.lastBody, "model").String(); got != "claude-sonnet-4" {
		t.Errorf("upstream model = %q", got)
	}
}

func TestClaudeMessagesStreamToolCall(t *testing.T) {
	upstream := &fakeUpstream{chunks: []executor.StreamChunk{
		{Payload: []byte(`{"id":"chatcmpl-2","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant"}}]}`)},
		{Payload: []byte(`{"id":"chatcmpl-2","model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"get_weather","arguments":""}}]}}]}`)},
		{Payload: []byte(`{"id":"chatcmpl-2","model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"city\":"}}]}}]}`)},
		{Payload: []byte(`{"id":"chatcmpl-2","model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"Paris\"}"}}]}}]}`)},
		{Payload: []byte(`{"id":"chatcmpl-2","model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`)},
	}}
	router := newRouter(upstream, nil)

	recorder := post(router, "/v1/messages", `{"model":"gpt-4o","max_tokens":100,"stream":true,"messages":[{"role":"user","content":"Weather?"}]}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := recorder.Body.String()
	want := []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}
	if got := eventNames(body); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("events = %v, want %v", got, want)
	}
	start := eventData(body, "content_block_start")[0]
	if gjson.Get(start, "content_block.type").String() != "tool_use" || gjson.Get(start, "content_block.id").String() != "call_1" {
		t.Errorf("unexpected block start %s", start)
	}
	delta := eventData(body, "message_delta")[0]
	if got := gjson.Get(delta, "delta.stop_reason").String(); got != "tool_use" {
		t.Errorf("stop_reason = %q", got)
	}
	if !gjson.GetBytes(upstream.lastBody, "stream").Bool() {
		t.Error("upstream request must stream")
	}
}

func TestClaudeMessagesStreamMidStreamError(t *testing.T) {
	tests := []struct {
		name  string
		first string
		err   error
	}{
		{
			name:  "text block open",
			first: `{"id":"chatcmpl-3","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"Hel"}}]}`,
			err:   io.ErrUnexpectedEOF,
		},
		{
			name:  "tool block open",
			first: `{"id":"chatcmpl-3","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"lookup","arguments":"{\"q\":"}}]}}]}`,
			err:   errors.New("connection reset"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := &fakeUpstream{chunks: []executor.StreamChunk{
				{Payload: []byte(tt.first)},
				{Err: tt.err},
			}}
			router := newRouter(upstream, nil)

			recorder := post(router, "/v1/messages", `{"model":"gpt-4o","max_tokens":100,"stream":true,"messages":[{"role":"user","content":"Hi"}]}`)
			if recorder.Code != http.StatusOK {
				t.Fatalf("status = %d", recorder.Code)
			}
			body := recorder.Body.String()
			names := eventNames(body)
			want := "message_start,content_block_start,content_block_delta,content_block_stop,error"
			if strings.Join(names, ",") != want {
				t.Fatalf("events = %v, want %s", names, want)
			}
			data := eventData(body, "error")[0]
			if gjson.Get(data, "error.type").String() != "api_error" || !strings.Contains(gjson.Get(data, "error.message").String(), tt.err.Error()) {
				t.Errorf("unexpected error event %s", data)
			}
		})
	}
}

func TestClaudeMessagesStreamTruncated(t *testing.T) {
	upstream := &fakeUpstream{chunks: []executor.StreamChunk{
		{Payload: []byte(`{"id":"chatcmpl-4","model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"partial"}}]}`)},
	}}
	router := newRouter(upstream, nil)

	recorder := post(router, "/v1/messages", `{"model":"gpt-4o","max_tokens":100,"stream":true,"messages":[{"role":"user","content":"Hi"}]}`)
	names := eventNames(recorder.Body.String())
	want := "message_start,content_block_start,content_block_delta,content_block_stop,message_delta,message_stop"
	if strings.Join(names, ",") != want {
		t.Fatalf("events = %v", names)
	}
	if got := gjson.Get(eventData(recorder.Body.String(), "message_delta")[0], "delta.stop_reason").String(); got != "end_turn" {
		t.Errorf("stop_reason = %q, want end_turn", got)
	}
}

func TestClaudeMessagesErrors(t *testing.T) {
	tests := []struct {
		name       string
		upstream   *fakeUpstream
		gate       handlers.Admitter
		body       string
		wantStatus int
		wantType   string
		wantCalled bool
	}{
		{
			name:       "invalid json",
			upstream:   &fakeUpstream{},
			body:       `{"model":`,
			wantStatus: http.StatusBadRequest,
			wantType:   "translation_error",
		},
		{
			name:       "missing messages",
			upstream:   &fakeUpstream{},
			body:       `{"model":"gpt-4o","max_tokens":10}`,
			wantStatus: http.StatusBadRequest,
			wantType:   "translation_error",
		},
		{
			name:       "rate limited",
			upstream:   &fakeUpstream{},
			gate:       denyGate{err: interfaces.NewRateLimited(5 * time.Second)},
			body:       `{"model":"gpt-4o","max_tokens":10,"messages":[{"role":"user","content":"x"}]}`,
			wantStatus: http.StatusTooManyRequests,
			wantType:   "rate_limited",
		},
		{
			name:       "rejected",
			upstream:   &fakeUpstream{},
			gate:       denyGate{err: interfaces.NewRejected("")},
			body:       `{"model":"gpt-4o","max_tokens":10,"messages":[{"role":"user","content":"x"}]}`,
			wantStatus: http.StatusForbidden,
			wantType:   "rejected",
		},
		{
			name:       "upstream status kept",
			upstream:   &fakeUpstream{err: interfaces.NewUpstreamError(http.StatusBadRequest, []byte("bad model"))},
			body:       `{"model":"gpt-4o","max_tokens":10,"messages":[{"role":"user","content":"x"}]}`,
			wantStatus: http.StatusBadRequest,
			wantType:   "upstream_error",
			wantCalled: true,
		},
		{
			name:       "upstream error before stream",
			upstream:   &fakeUpstream{err: interfaces.NewAuthError("Copilot token not initialized", nil)},
			body:       `{"model":"gpt-4o","max_tokens":10,"stream":true,"messages":[{"role":"user","content":"x"}]}`,
			wantStatus: http.StatusUnauthorized,
			wantType:   "auth_error",
			wantCalled: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(tt.upstream, tt.gate)
			recorder := post(router, "/v1/messages", tt.body)
			if recorder.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", recorder.Code, tt.wantStatus, recorder.Body.String())
			}
			if got := gjson.Get(recorder.Body.String(), "error.type").String(); got != tt.wantType {
				t.Errorf("error.type = %q, want %q", got, tt.wantType)
			}
			if tt.upstream.chatCalled != tt.wantCalled {
				t.Errorf("upstream called = %t, want %t", tt.upstream.chatCalled, tt.wantCalled)
			}
		})
	}
}

type countingGate struct{ calls int }

func (g *countingGate) Admit(context.Context, string) error {
	g.calls++
	return nil
}

func TestClaudeMessagesValidatesBeforeAdmission(t *testing.T) {
	bodies := []string{
		`{"model":`,
		`{"model":"gpt-4o","max_tokens":10}`,
		`{"model":"gpt-4o","max_tokens":5,"messages":[{"role":"user","content":[]}]}`,
	}
	for _, body := range bodies {
		gate := &countingGate{}
		upstream := &fakeUpstream{}
		recorder := post(newRouter(upstream, gate), "/v1/messages", body)
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", body, recorder.Code)
		}
		if gate.calls != 0 {
			t.Errorf("%s: gate consulted %d times for a malformed body", body, gate.calls)
		}
	}

	gate := &countingGate{}
	upstream := &fakeUpstream{response: []byte(`{"id":"c","model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`)}
	recorder := post(newRouter(upstream, gate), "/v1/messages", `{"model":"gpt-4o","max_tokens":10,"messages":[{"role":"user","content":"x"}]}`)
	if recorder.Code != http.StatusOK || gate.calls != 1 {
		t.Fatalf("valid request: status = %d, gate calls = %d", recorder.Code, gate.calls)
	}
}

func TestClaudeMessagesBackfillsMaxTokensFromCatalog(t *testing.T) {
	upstream := &fakeUpstream{response: []byte(`{"id":"c","model":"gpt-4o","choices":[{"index":0,"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`)}
	router := newRouter(upstream, nil)

	recorder := post(router, "/v1/messages", `{"model":"gpt-4o","messages":[{"role":"user","content":"x"}]}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	if got := gjson.GetBytes(upstream.lastBody, "max_tokens").Int(); got != 4096 {
		t.Errorf("max_tokens = %d, want 4096", got)
	}
}

func TestClaudeCountTokens(t *testing.T) {
	upstream := &fakeUpstream{}
	router := newRouter(upstream, denyGate{err: interfaces.NewRateLimited(time.Second)})

	recorder := post(router, "/v1/messages/count_tokens", `{"model":"gpt-4o","messages":[{"role":"user","content":"How many tokens is this?"}]}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", recorder.Code, recorder.Body.String())
	}
	if got := gjson.Get(recorder.Body.String(), "input_tokens").Int(); got <= 0 {
		t.Errorf("input_tokens = %d, want > 0", got)
	}
	if upstream.chatCalled {
		t.Error("count_tokens must not call upstream")
	}
}
