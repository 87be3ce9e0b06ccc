// Package api provides the HTTP server of the gateway. It builds the gin engine,
// installs logging, recovery, CORS and API key middleware, and mounts the OpenAI
// and Anthropic surfaces plus the diagnostic routes.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/CopilotAPI/internal/access"
	"github.com/router-for-me/CopilotAPI/internal/api/middleware"
	"github.com/router-for-me/CopilotAPI/internal/config"
	"github.com/router-for-me/CopilotAPI/internal/interfaces"
	"github.com/router-for-me/CopilotAPI/internal/logging"
	"github.com/router-for-me/CopilotAPI/internal/session"
	"github.com/router-for-me/CopilotAPI/internal/util"
	sdkaccess "github.com/router-for-me/CopilotAPI/sdk/access"
	"github.com/router-for-me/CopilotAPI/sdk/api/handlers"
	"github.com/router-for-me/CopilotAPI/sdk/api/handlers/claude"
	"github.com/router-for-me/CopilotAPI/sdk/api/handlers/openai"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// UsageFunc returns the raw Copilot quota document.
type UsageFunc func(ctx context.Context) ([]byte, error)

// Server is the gateway's HTTP server.
type Server struct {
	engine        *gin.Engine
	server        *http.Server
	handlers      *handlers.BaseAPIHandler
	accessManager *sdkaccess.Manager
	state         *session.State
	usage         UsageFunc
	cfg           atomic.Pointer[config.Config]
}

// NewServer builds the engine and registers every route. accessManager receives
// the providers derived from cfg.
func NewServer(cfg *config.Config, state *session.State, base *handlers.BaseAPIHandler, accessManager *sdkaccess.Manager, usage UsageFunc) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if accessManager == nil {
		accessManager = sdkaccess.NewManager()
	}
	access.ApplyAccessProviders(accessManager, cfg)

	engine := gin.New()
	engine.Use(logging.GinLogrusLogger(), logging.GinLogrusRecovery(), middleware.CORS(), middleware.AuthInfo(accessManager))

	s := &Server{
		engine:        engine,
		handlers:      base,
		accessManager: accessManager,
		state:         state,
		usage:         usage,
	}
	s.cfg.Store(cfg)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Address(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	openaiHandlers := openai.NewOpenAIAPIHandler(s.handlers)
	claudeHandlers := claude.NewClaudeAPIHandler(s.handlers)
	auth := middleware.Auth(s.accessManager)

	s.engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Server running")
	})
	s.engine.GET("/health", func(c *gin.Context) {
		logging.SkipGinRequestLogging(c)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
	})

	for _, prefix := range []string{"", "/v1"} {
		group := s.engine.Group(prefix, auth)
		group.GET("/models", openaiHandlers.OpenAIModels)
		group.POST("/chat/completions", openaiHandlers.ChatCompletions)
		group.POST("/embeddings", openaiHandlers.Embeddings)
		group.POST("/messages", claudeHandlers.ClaudeMessages)
		group.POST("/messages/count_tokens", claudeHandlers.ClaudeCountTokens)
	}

	s.engine.GET("/token", auth, s.token)
	s.engine.GET("/usage", auth, s.copilotUsage)

	s.engine.NoRoute(func(c *gin.Context) {
		c.Data(http.StatusNotFound, "application/json",
			handlers.BuildErrorResponseBody(http.StatusNotFound, "", fmt.Sprintf("route %s %s not found", c.Request.Method, c.Request.URL.Path)))
	})
}

// token reports the current Copilot session token. It is null before the first exchange.
func (s *Server) token(c *gin.Context) {
	token, expiresAt := s.state.SessionToken()
	if token == "" {
		c.JSON(http.StatusOK, gin.H{"token": nil})
		return
	}
	log.Debugf("session token requested: %s", util.MaskToken(s.cfg.Load(), token))
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": expiresAt.Unix()})
}

func (s *Server) copilotUsage(c *gin.Context) {
	if s.usage == nil {
		s.handlers.WriteErrorResponse(c, &interfaces.ErrorMessage{
			StatusCode: http.StatusServiceUnavailable,
			Error:      errors.New("usage lookup is not configured"),
		})
		return
	}
	body, err := s.usage(c.Request.Context())
	if err != nil {
		s.handlers.WriteError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}

// Handler exposes the engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api: serve %s: %w", s.server.Addr, err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	log.Info("server stopped")
	return <-errCh
}

// UpdateClients applies a reloaded configuration to the server and its handlers.
func (s *Server) UpdateClients(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.cfg.Store(cfg)
	access.ApplyAccessProviders(s.accessManager, cfg)
	s.handlers.UpdateClients(&cfg.SDKConfig)
}
