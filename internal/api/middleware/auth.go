// Package middleware provides the gin middleware of the gateway's HTTP surface:
// API key authentication and cross-origin headers.
package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CopilotAPI/internal/logging"
	sdkaccess "github.com/router-for-me/CopilotAPI/sdk/access"
	"github.com/router-for-me/CopilotAPI/sdk/api/handlers"
	log "github.com/sirupsen/logrus"
)

// AuthEnabledHeader reports on every response whether API keys are enforced.
const AuthEnabledHeader = "X-Auth-Enabled"

// AuthInfo stamps the X-Auth-Enabled header from the manager's current providers.
func AuthInfo(manager *sdkaccess.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header(AuthEnabledHeader, strconv.FormatBool(manager.Enabled()))
		c.Next()
	}
}

// Auth rejects requests the access manager does not authenticate. Preflight
// requests pass so browsers can discover the CORS policy.
func Auth(manager *sdkaccess.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		result, authErr := manager.Authenticate(c.Request.Context(), c.Request)
		if authErr == nil {
			if result != nil {
				c.Set("accessProvider", result.Provider)
				c.Set("accessPrincipal", result.Principal)
			}
			c.Next()
			return
		}

		status := authErr.HTTPStatusCode()
		entry := log.WithFields(log.Fields{"status": status, "path": c.Request.URL.Path})
		if requestID := logging.GetGinRequestID(c); requestID != "" {
			entry = entry.WithField("request_id", requestID)
		}
		if status >= http.StatusInternalServerError {
			entry.Errorf("authentication failed: %v", authErr)
		} else {
			entry.Debugf("authentication failed: %s", authErr.Code)
		}
		c.Data(status, "application/json", handlers.BuildErrorResponseBody(status, "", authErr.Message))
		c.Abort()
	}
}
