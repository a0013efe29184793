// Package api serves the bundle workflow over REST with gin.
package api

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hpungsan/bundler/internal/config"
	"github.com/hpungsan/bundler/internal/ops"
	"github.com/hpungsan/bundler/internal/prompt"
)

// Deps holds what the handlers need.
type Deps struct {
	DB      *sql.DB
	Config  *config.Config
	Prompts *prompt.Library
	Queue   ops.Enqueuer // optional
	Logger  *slog.Logger
	APIKey  string // empty disables authentication
	Version string
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Config == nil {
		d.Config = config.DefaultConfig()
	}
	h := &Handlers{
		db:      d.DB,
		cfg:     d.Config,
		lib:     d.Prompts,
		queue:   d.Queue,
		logger:  d.Logger,
		version: d.Version,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(d.Logger))
	r.Use(securityHeaders())

	r.GET("/health", h.Health)

	api := r.Group("/")
	if d.APIKey != "" {
		api.Use(authMiddleware(d.APIKey))
	}

	api.GET("/bundles", h.ListBundles)
	api.POST("/bundles", h.CreateBundle)
	api.GET("/bundles/:id", h.GetBundle)
	api.PUT("/bundles/:id", h.UpdateBundle)
	api.DELETE("/bundles/:id", h.DeleteBundle)
	api.POST("/bundles/:id/process", h.ProcessBundle)
	api.POST("/bundles/:id/preview", h.PreviewBundle)
	api.GET("/bundles/:id/attempts", h.ListAttempts)
	api.GET("/bundles/attempts/:id1/diff/:id2", h.DiffAttempts)

	api.GET("/attempts/:id", h.GetAttempt)

	api.GET("/content", h.ListContent)
	api.GET("/content/:id", h.GetContent)
	api.POST("/content/ingest", h.IngestContent)

	api.GET("/prompts", h.SystemPrompts)

	api.GET("/drafts/:slot", h.LoadDraft)
	api.PUT("/drafts/:slot", h.SaveDraft)

	api.GET("/jobs/:id", h.GetJob)
	api.GET("/jobs/:id/result", h.JobResult)

	return r
}

// NewHTTPServer wraps handler in an http.Server listening on bind:port.
func NewHTTPServer(handler http.Handler, bind string, port int) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("bundler API listening", "addr", "http://"+srv.Addr)
	if strings.HasPrefix(srv.Addr, "0.0.0.0") || strings.HasPrefix(srv.Addr, "[::]") || strings.HasPrefix(srv.Addr, ":") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Next()
	}
}

// authMiddleware accepts the key in X-API-Key or as an Authorization bearer token.
func authMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader("X-API-Key")
		if provided == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				provided = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "provide a valid API key in X-API-Key or Authorization: Bearer <key>",
				"status":  http.StatusUnauthorized,
			}})
			return
		}
		c.Next()
	}
}
