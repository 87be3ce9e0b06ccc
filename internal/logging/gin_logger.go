// Package logging wires logrus into the gateway: the shared formatter, file rotation,
// request IDs and the Gin logging and recovery middleware.
package logging

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CopilotAPI/internal/util"
	log "github.com/sirupsen/logrus"
)

// upstreamRoutes reach Copilot; only these requests are tagged with a request ID.
var upstreamRoutes = []string{
	"/chat/completions",
	"/embeddings",
	"/messages",
}

const skipLogField = "copilot.skip_access_log"

// GinLogrusLogger writes one access-log line per request once the handler chain
// returns. The line level follows the status class (5xx error, 4xx warn, else info).
func GinLogrusLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()

		requestID := ""
		if routesUpstream(c.Request.URL.Path) {
			requestID = GenerateRequestID()
			SetGinRequestID(c, requestID)
			c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), requestID))
		}

		c.Next()

		if skipped, _ := c.Get(skipLogField); skipped == true {
			return
		}

		line := accessLine(c, roundLatency(time.Since(began)))
		entry := log.WithField("request_id", requestID)
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error(line)
		case status >= http.StatusBadRequest:
			entry.Warn(line)
		default:
			entry.Info(line)
		}
	}
}

func accessLine(c *gin.Context, latency time.Duration) string {
	target := c.Request.URL.Path
	if query := util.MaskSensitiveQuery(c.Request.URL.RawQuery); query != "" {
		target += "?" + query
	}
	line := fmt.Sprintf("%3d | %13v | %15s | %-7s \"%s\"", c.Writer.Status(), latency, c.ClientIP(), c.Request.Method, target)
	if private := c.Errors.ByType(gin.ErrorTypePrivate).String(); private != "" {
		line += " | " + private
	}
	return line
}

func roundLatency(d time.Duration) time.Duration {
	if d > time.Minute {
		return d.Truncate(time.Second)
	}
	return d.Truncate(time.Millisecond)
}

// routesUpstream matches both the bare and the /v1 form of each upstream route.
func routesUpstream(path string) bool {
	path = strings.TrimPrefix(path, "/v1")
	for _, route := range upstreamRoutes {
		if strings.HasPrefix(path, route) {
			return true
		}
	}
	return false
}

// GinLogrusRecovery turns a handler panic into a logged stack trace and a 500
// error envelope. http.ErrAbortHandler is re-raised so net/http drops the connection.
func GinLogrusRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		if err, ok := recovered.(error); ok && errors.Is(err, http.ErrAbortHandler) {
			panic(http.ErrAbortHandler)
		}

		log.WithFields(log.Fields{
			"panic": recovered,
			"path":  c.Request.URL.Path,
			"stack": string(debug.Stack()),
		}).Error("handler panic recovered")

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"type": "api_error", "message": "internal server error"},
		})
	})
}

// SkipGinRequestLogging suppresses the access-log line for c. Used by /health.
func SkipGinRequestLogging(c *gin.Context) {
	if c != nil {
		c.Set(skipLogField, true)
	}
}
