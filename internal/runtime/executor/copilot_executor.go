package executor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/router-for-me/CopilotAPI/internal/config"
	"github.com/router-for-me/CopilotAPI/internal/interfaces"
	"github.com/router-for-me/CopilotAPI/internal/logging"
	"github.com/router-for-me/CopilotAPI/internal/misc"
	"github.com/router-for-me/CopilotAPI/internal/session"
	"github.com/router-for-me/CopilotAPI/internal/util"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	copilotIndividualBaseURL = "https://api.githubcopilot.com"
	maxStreamLineSize        = 1_048_576 // 1MB
)

// Response is a whole upstream response.
type Response struct {
	Payload []byte
	Headers http.Header
}

// StreamChunk is one upstream SSE data payload, or the error that ended the stream.
type StreamChunk struct {
	Payload []byte
	Err     error
}

// StreamResult carries the upstream headers and the chunk channel. The channel is
// closed after the [DONE] marker, on EOF, on error or when the context ends.
type StreamResult struct {
	Headers http.Header
	Chunks  <-chan StreamChunk
}

// CopilotExecutor performs calls against the Copilot API using the session token
// held in the shared state.
type CopilotExecutor struct {
	cfg        *config.Config
	state      *session.State
	httpClient *http.Client
}

// NewCopilotExecutor builds an executor. A nil client gets a proxy-aware one without
// a timeout, since streams can run for minutes.
func NewCopilotExecutor(cfg *config.Config, state *session.State, httpClient *http.Client) *CopilotExecutor {
	if httpClient == nil {
		httpClient = util.NewHTTPClient(&cfg.SDKConfig, 0)
	}
	return &CopilotExecutor{cfg: cfg, state: state, httpClient: httpClient}
}

// Identifier returns the executor identifier.
func (e *CopilotExecutor) Identifier() string { return "copilot" }

// BaseURL returns the Copilot API host for the configured tier.
func (e *CopilotExecutor) BaseURL() string {
	if override := strings.TrimRight(strings.TrimSpace(e.cfg.CopilotBaseURL), "/"); override != "" {
		return override
	}
	return BaseURLForTier(e.state.Tier())
}

// BaseURLForTier maps an account tier to its Copilot API host.
func BaseURLForTier(tier session.AccountTier) string {
	switch tier {
	case session.TierBusiness, session.TierEnterprise:
		return fmt.Sprintf("https://api.%s.githubcopilot.com", tier)
	default:
		return copilotIndividualBaseURL
	}
}

// ChatCompletions performs a non-streaming chat completion. body is an OpenAI request.
func (e *CopilotExecutor) ChatCompletions(ctx context.Context, body []byte) (*Response, error) {
	httpReq, err := e.newChatRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	httpResp, err := e.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	defer closeBody(httpResp)
	data, err := readBody(httpResp)
	if err != nil {
		return nil, fmt.Errorf("copilot executor: read response: %w", err)
	}
	return &Response{Payload: data, Headers: httpResp.Header.Clone()}, nil
}

// ChatCompletionsStream performs a streaming chat completion. Each chunk carries the
// JSON after "data: "; the [DONE] marker ends the channel and is not forwarded.
func (e *CopilotExecutor) ChatCompletionsStream(ctx context.Context, body []byte) (*StreamResult, error) {
	httpReq, err := e.newChatRequest(ctx, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpResp, err := e.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	reader, err := decodedBody(httpResp)
	if err != nil {
		closeBody(httpResp)
		return nil, fmt.Errorf("copilot executor: decode stream: %w", err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer closeBody(httpResp)
		defer func() {
			if errClose := reader.Close(); errClose != nil {
				log.Debugf("copilot executor: close stream decoder error: %v", errClose)
			}
		}()

		send := func(chunk StreamChunk) bool {
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(reader)
		scanner.Buffer(nil, maxStreamLineSize)
		for scanner.Scan() {
			payload, ok := ssePayload(scanner.Bytes())
			if !ok {
				continue
			}
			if bytes.Equal(payload, []byte("[DONE]")) {
				return
			}
			if !send(StreamChunk{Payload: bytes.Clone(payload)}) {
				return
			}
		}
		if errScan := scanner.Err(); errScan != nil && ctx.Err() == nil {
			logWithRequestID(ctx).Warnf("copilot executor: stream read error: %v", errScan)
			send(StreamChunk{Err: errScan})
		}
	}()
	return &StreamResult{Headers: httpResp.Header.Clone(), Chunks: out}, nil
}

// FetchModels lists the models available to the account.
func (e *CopilotExecutor) FetchModels(ctx context.Context) ([]session.ModelDescriptor, error) {
	httpReq, err := e.newRequest(ctx, http.MethodGet, "/models", nil, false)
	if err != nil {
		return nil, err
	}
	httpResp, err := e.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	defer closeBody(httpResp)
	data, err := readBody(httpResp)
	if err != nil {
		return nil, fmt.Errorf("copilot executor: read models: %w", err)
	}
	return parseModelCatalog(data), nil
}

// Embeddings forwards an OpenAI embeddings request unchanged.
func (e *CopilotExecutor) Embeddings(ctx context.Context, body []byte) (*Response, error) {
	httpReq, err := e.newRequest(ctx, http.MethodPost, "/embeddings", body, false)
	if err != nil {
		return nil, err
	}
	httpResp, err := e.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	defer closeBody(httpResp)
	data, err := readBody(httpResp)
	if err != nil {
		return nil, fmt.Errorf("copilot executor: read embeddings: %w", err)
	}
	return &Response{Payload: data, Headers: httpResp.Header.Clone()}, nil
}

func (e *CopilotExecutor) newChatRequest(ctx context.Context, body []byte) (*http.Request, error) {
	httpReq, err := e.newRequest(ctx, http.MethodPost, "/chat/completions", body, hasVisionContent(body))
	if err != nil {
		return nil, err
	}
	initiator := "user"
	if isAgentCall(body) {
		initiator = "agent"
	}
	httpReq.Header.Set("X-Initiator", initiator)
	return httpReq, nil
}

func (e *CopilotExecutor) newRequest(ctx context.Context, method, path string, body []byte, vision bool) (*http.Request, error) {
	token, _ := e.state.SessionToken()
	if token == "" {
		return nil, interfaces.NewAuthError("Copilot token not initialized", nil)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, e.BaseURL()+path, reader)
	if err != nil {
		return nil, err
	}
	version := e.state.VSCodeVersion()
	if version == "" {
		version = misc.FallbackVSCodeVersion
	}
	misc.ApplyCopilotHeaders(httpReq.Header, token, version, vision)
	httpReq.Header.Set("Accept-Encoding", acceptEncoding)
	return httpReq, nil
}

// do sends the request and converts non-2xx responses into UpstreamErrors.
func (e *CopilotExecutor) do(ctx context.Context, httpReq *http.Request) (*http.Response, error) {
	logWithRequestID(ctx).Debugf("copilot executor: %s %s", httpReq.Method, httpReq.URL.Path)
	httpResp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("copilot executor: %w", err)
	}
	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return httpResp, nil
	}
	defer closeBody(httpResp)
	b, errRead := readBody(httpResp)
	if errRead != nil {
		b = []byte(errRead.Error())
	}
	logWithRequestID(ctx).WithField("status", httpResp.StatusCode).Debugf("request error, error message: %s", summarizeErrorBody(httpResp.Header.Get("Content-Type"), b))
	return nil, interfaces.NewUpstreamError(httpResp.StatusCode, b)
}

// ssePayload extracts the data of an SSE "data:" line. Comments, event names and
// blank separators are reported as not ok.
func ssePayload(line []byte) ([]byte, bool) {
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasPrefix(line, []byte("data:")) {
		return nil, false
	}
	payload := bytes.TrimSpace(line[len("data:"):])
	if len(payload) == 0 {
		return nil, false
	}
	return payload, true
}

// parseModelCatalog reads the Copilot /models response.
func parseModelCatalog(data []byte) []session.ModelDescriptor {
	var models []session.ModelDescriptor
	gjson.GetBytes(data, "data").ForEach(func(_, m gjson.Result) bool {
		id := m.Get("id").String()
		if id == "" {
			return true
		}
		limits := m.Get("capabilities.limits")
		models = append(models, session.ModelDescriptor{
			ID:              id,
			Vendor:          m.Get("vendor").String(),
			Name:            m.Get("name").String(),
			ContextWindow:   limits.Get("max_context_window_tokens").Int(),
			MaxOutputTokens: limits.Get("max_output_tokens").Int(),
		})
		return true
	})
	return models
}

// summarizeErrorBody keeps error logs to one line for HTML error pages.
func summarizeErrorBody(contentType string, body []byte) string {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return fmt.Sprintf("[html body omitted, %d bytes]", len(body))
	}
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

func closeBody(resp *http.Response) {
	if errClose := resp.Body.Close(); errClose != nil {
		log.Errorf("copilot executor: close response body error: %v", errClose)
	}
}

func logWithRequestID(ctx context.Context) *log.Entry {
	if id := logging.GetRequestID(ctx); id != "" {
		return log.WithField("request_id", id)
	}
	return log.NewEntry(log.StandardLogger())
}
