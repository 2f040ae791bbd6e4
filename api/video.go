package api

import (
	"log"
	"net/http"

	"cctv-replay/cache"
	"cctv-replay/metrics"

	"github.com/gin-gonic/gin"
)

// serveVideo streams one cached segment. Cache hits come straight off disk;
// misses are fetched through the archive session first, so the client never
// needs to know whether a segment was already local.
func (s *Server) serveVideo(c *gin.Context) {
	filename := c.Param("filename")
	if !cache.ValidKey(filename) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
		return
	}

	if path, ok := s.cache.Lookup(filename); ok {
		s.counters.AddCacheHit()
		c.Header("Content-Type", "video/mp4")
		http.ServeFile(c.Writer, c.Request, path)
		return
	}

	seg, ok := s.cache.Segment(filename)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
		return
	}

	m := metrics.NewReplayMetrics(requestID(c))
	m.StartDownload()
	path, err := s.cache.GetOrFetch(c.Request.Context(), seg)
	m.EndDownload()
	if err != nil {
		s.counters.AddDownloadError()
		log.Printf("[API] [%s] download failed for %s: %v", requestID(c), filename, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to retrieve video from archive"})
		return
	}
	s.counters.AddCacheMiss()
	m.Finish()

	c.Header("Content-Type", "video/mp4")
	http.ServeFile(c.Writer, c.Request, path)
}
