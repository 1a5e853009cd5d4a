// Package httpapi serves cached images and bot stats over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"telegram-image-reply-bot/imgcache"
	"telegram-image-reply-bot/stats"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

type ImageSource interface {
	GetImage(ctx context.Context) ([]byte, error)
}

type CacheStats interface {
	Stats() imgcache.Stats
}

type Server struct {
	addr      string
	source    ImageSource
	cache     CacheStats
	stats     *stats.Stats
	startTime time.Time
	router    *gin.Engine
}

func New(addr string, source ImageSource, cache CacheStats, st *stats.Stats) *Server {
	s := &Server{
		addr:      addr,
		source:    source,
		cache:     cache,
		stats:     st,
		startTime: time.Now(),
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	s.initializeRoutes(router)
	s.router = router

	return s
}

func (s *Server) initializeRoutes(router *gin.Engine) {
	router.GET("/", s.infoHandler)
	router.GET("/stats", s.statsHandler)
	router.GET("/image", s.imageHandler)

	router.NoRoute(notFoundHandler)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("httpapi: Listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("httpapi: Server failed", "error", err)
		sentry.CaptureException(err)

		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("httpapi: Graceful shutdown failed", "error", err)
		sentry.CaptureException(err)

		return err
	}

	slog.Info("httpapi: Server stopped")

	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		slog.Debug("httpapi: Request served",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
