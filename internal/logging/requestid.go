package logging

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestIDLen is the number of hex characters kept from a generated id.
const requestIDLen = 8

type ctxRequestID struct{}

const ginRequestIDField = "copilot.request_id"

// GenerateRequestID returns a short hex id that tags every log line of one request.
func GenerateRequestID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:requestIDLen]
}

// WithRequestID attaches id to ctx so executors can log under the same tag.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID{}, id)
}

// GetRequestID returns the id stored by WithRequestID, or "".
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxRequestID{}).(string)
	return id
}

// SetGinRequestID records id on the gin context.
func SetGinRequestID(c *gin.Context, id string) {
	if c == nil {
		return
	}
	c.Set(ginRequestIDField, id)
}

// GetGinRequestID returns the id recorded by SetGinRequestID, or "".
func GetGinRequestID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(ginRequestIDField)
}
