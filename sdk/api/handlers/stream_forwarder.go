package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CopilotAPI/internal/interfaces"
	"github.com/router-for-me/CopilotAPI/internal/runtime/executor"
	log "github.com/sirupsen/logrus"
)

var sseHeartbeat = []byte(": keep-alive\n\n")

// StreamForwardOptions adapts ForwardStream to one client dialect. None of the
// callbacks flush; ForwardStream flushes after each of them.
type StreamForwardOptions struct {
	// KeepAliveInterval overrides the configured heartbeat interval. <= 0 disables heartbeats.
	KeepAliveInterval *time.Duration

	// WriteChunk renders one upstream payload. An error ends the stream via WriteTerminalError.
	WriteChunk func(payload []byte) error

	// WriteTerminalError reports a failure after the 200 status has been committed.
	WriteTerminalError func(errMsg *interfaces.ErrorMessage)

	// WriteDone runs when upstream finished cleanly, e.g. to emit `data: [DONE]`.
	WriteDone func()

	// WriteKeepAlive replaces the default SSE comment heartbeat.
	WriteKeepAlive func()
}

func (o *StreamForwardOptions) heartbeatInterval(cfgDefault time.Duration) time.Duration {
	if o.KeepAliveInterval != nil {
		return *o.KeepAliveInterval
	}
	return cfgDefault
}

// ForwardStream copies upstream chunks to the client until upstream ends, fails
// or the client goes away. cancel is always called on return, which stops the
// upstream request when the client disconnected early.
func (h *BaseAPIHandler) ForwardStream(c *gin.Context, flusher http.Flusher, cancel func(), chunks <-chan executor.StreamChunk, opts StreamForwardOptions) {
	defer cancel()

	emit := func(write func()) {
		if write != nil {
			write()
		}
		flusher.Flush()
	}
	abort := func(err error) {
		emit(func() {
			if opts.WriteTerminalError != nil {
				opts.WriteTerminalError(interfaces.ToErrorMessage(err))
			}
		})
	}
	heartbeat := opts.WriteKeepAlive
	if heartbeat == nil {
		heartbeat = func() { _, _ = c.Writer.Write(sseHeartbeat) }
	}

	var tick <-chan time.Time
	if every := opts.heartbeatInterval(StreamingKeepAliveInterval(h.Config())); every > 0 {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		tick = ticker.C
	}

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			log.Debugf("stream: client went away: %v", c.Request.Context().Err())
			return
		case <-tick:
			emit(heartbeat)
		case chunk, open := <-chunks:
			if !open {
				emit(opts.WriteDone)
				return
			}
			if chunk.Err != nil {
				abort(chunk.Err)
				return
			}
			if opts.WriteChunk != nil {
				if err := opts.WriteChunk(chunk.Payload); err != nil {
					abort(err)
					return
				}
			}
			flusher.Flush()
		}
	}
}
