package httpapi

import (
	"log/slog"
	"math"
	"net/http"
	"runtime"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/cpu"
)

func (s *Server) imageHandler(c *gin.Context) {
	img, err := s.source.GetImage(c.Request.Context())
	if err != nil {
		slog.Error("httpapi: Cannot get an image", "error", err)
		sentry.CaptureException(err)
		s.stats.ImageFailure()

		c.JSON(http.StatusServiceUnavailable, gin.H{"status": http.StatusServiceUnavailable, "error": "No image available."})
		return
	}

	s.stats.ImageSent()

	contentType := mimetype.Detect(img).String()

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, contentType, img)
}

func (s *Server) statsHandler(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.JSON(http.StatusOK, gin.H{"status": http.StatusOK, "data": gin.H{
		"bot":   s.stats.Snapshot(),
		"cache": s.cache.Stats(),
		"process": gin.H{
			"cpu_usage":       cpuUsage(),
			"ram_usage_bytes": m.Alloc,
			"go_routines":     runtime.NumGoroutine(),
			"uptime":          time.Since(s.startTime).Round(time.Second).String(),
		},
	}})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": http.StatusOK, "data": "Image service is running."})
}

func notFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"status": http.StatusNotFound, "error": "Route not found."})
}

func cpuUsage() float64 {
	percent, err := cpu.Percent(0, false)
	if err != nil || len(percent) == 0 {
		return 0
	}

	return math.Round(percent[0]*100) / 100
}
