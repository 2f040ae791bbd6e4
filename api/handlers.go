package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"cctv-replay/archive"
	"cctv-replay/database"
	"cctv-replay/metrics"
	"cctv-replay/monitoring"

	"github.com/gin-gonic/gin"
)

// segmentView is one resolved segment as returned to the client: the cache
// URL it will be served from plus its absolute timestamp.
type segmentView struct {
	URL       string `json:"url"`
	Filename  string `json:"filename"`
	Timestamp int64  `json:"timestamp"`
}

// getVideos resolves the segments recorded around a target timestamp for one
// camera. The response carries everything the client playlist builder needs;
// nothing is downloaded here, segments stream through the cache on demand.
func (s *Server) getVideos(c *gin.Context) {
	targetStr := c.Query("target")
	cameraStr := c.Query("camera")
	if targetStr == "" || cameraStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing target timestamp or camera parameter"})
		return
	}
	target, err := strconv.ParseInt(targetStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid target timestamp"})
		return
	}
	cameraID, err := strconv.Atoi(cameraStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid camera ID"})
		return
	}

	m := metrics.NewReplayMetrics(requestID(c))
	m.StartResolve()
	set, err := s.resolver.Resolve(c.Request.Context(), cameraID, time.Unix(target, 0))
	m.EndResolve()
	s.counters.AddResolution()
	if err != nil {
		if errors.Is(err, archive.ErrInvalidCamera) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid camera ID"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	segments := make([]segmentView, 0, len(set.Segments))
	for _, seg := range set.Segments {
		key := s.cache.Register(seg)
		segments = append(segments, segmentView{
			URL:       "/static/cache/videos/" + key,
			Filename:  seg.Filename,
			Timestamp: seg.Timestamp,
		})
	}

	offsetSeconds := int64(0)
	if len(set.Segments) > 0 {
		offsetSeconds = set.Segments[set.ClosestIndex].Timestamp - target
	}

	m.Finish()
	c.JSON(http.StatusOK, gin.H{
		"segments":        segments,
		"closestIndex":    set.ClosestIndex,
		"offsetSeconds":   offsetSeconds,
		"cameraId":        cameraID,
		"cameraAvailable": set.CameraAvailable,
		"cameraError":     set.CameraError,
	})
}

// getItems is the read-only inventory passthrough feeding the timeline UI.
func (s *Server) getItems(c *gin.Context) {
	items, err := s.db.ListItems()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if items == nil {
		items = []database.Item{}
	}
	c.JSON(http.StatusOK, items)
}

// handleHealthCheck reports service, database, and cache health.
func (s *Server) handleHealthCheck(c *gin.Context) {
	healthResponse := gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(serverStart).Round(time.Second).String(),
	}

	if _, err := s.db.ListItems(); err != nil {
		healthResponse["status"] = "unhealthy"
		healthResponse["database"] = gin.H{"status": "failed", "error": err.Error()}
		c.JSON(http.StatusServiceUnavailable, healthResponse)
		return
	}
	healthResponse["database"] = gin.H{"status": "connected"}

	stats := s.cache.CurrentStats()
	healthResponse["cache"] = gin.H{
		"size_mb":  stats.SizeBytes / (1024 * 1024),
		"files":    stats.Files,
		"limit_mb": stats.MaxSizeBytes / (1024 * 1024),
	}

	c.JSON(http.StatusOK, healthResponse)
}

// getSystemHealth reports process and storage resource usage.
func (s *Server) getSystemHealth(c *gin.Context) {
	usage, err := monitoring.GetCurrentResourceUsage(s.cache.Dir())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cpu":            usage.CPUPercent,
		"memory_used":    usage.MemoryUsedMB,
		"memory_total":   usage.MemoryTotalMB,
		"memory_percent": usage.MemoryPercent,
		"goroutines":     usage.NumGoroutines,
		"uptime":         usage.Uptime,
		"storage":        usage.Storage,
	})
}

// getCacheStats reports cache occupancy and request counters.
func (s *Server) getCacheStats(c *gin.Context) {
	stats := s.cache.CurrentStats()
	c.JSON(http.StatusOK, gin.H{
		"cache":    stats,
		"counters": s.counters.Snapshot(),
	})
}

// eraseCache is the operator-facing unconditional wipe. Distinct from
// janitor eviction: no thresholds, everything goes.
func (s *Server) eraseCache(c *gin.Context) {
	filesDeleted, bytesFreed, err := s.cache.Erase()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to erase cache",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Cache cleared successfully",
		"filesDeleted": filesDeleted,
		"sizeFreed":    float64(bytesFreed) / (1024 * 1024),
	})
}
