// Package mockgateway is a fake Prism gateway for tests, benchmarks and
// local development. It speaks the real wire protocol and picks canned
// behaviours from the requested model name.
package mockgateway

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nulzo/prism-go/pkg/api"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

type Config struct {
	// Env "production" switches gin to release mode
	Env string
	// APIKey, when set, must be presented as a bearer token
	APIKey string
	// ChunkDelay is slept between streamed events
	ChunkDelay time.Duration
	// Tracing enables the otelgin middleware
	Tracing     bool
	ServiceName string
}

type Server struct {
	router *gin.Engine
	config Config
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Server {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "prism-mockgateway"
	}

	engine := gin.New()

	engine.Use(ginzap.RecoveryWithZap(logger, true))
	engine.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	if cfg.Tracing {
		engine.Use(otelgin.Middleware(cfg.ServiceName))
	}
	engine.Use(requestID())

	s := &Server{
		router: engine,
		config: cfg,
		logger: logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mock gateway listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down mock gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.router.Group("/v1")
	v1.Use(s.auth())
	v1.POST("/chat/completions", s.createCompletion)
}

// requestID stamps every response with a correlation id.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(api.HeaderRequestID)
		if id == "" {
			id = "req-" + uuid.NewString()
		}
		c.Header(api.HeaderRequestID, id)
		c.Set("request_id", id)
		c.Next()
	}
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.config.APIKey == "" {
			c.Next()
			return
		}

		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token != s.config.APIKey {
			writeError(c, http.StatusUnauthorized, gin.H{
				"message": "invalid or missing API key",
				"type":    "authentication_error",
			})
			return
		}

		c.Next()
	}
}

func writeError(c *gin.Context, status int, body gin.H) {
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}
