package metrics

import (
	"log"
	"sync"
	"time"
)

// ReplayMetrics tracks timing for one video replay request as it moves
// through resolution and download.
type ReplayMetrics struct {
	RequestID         string
	StartTime         time.Time
	ResolveStartTime  *time.Time
	ResolveEndTime    *time.Time
	ResolveDuration   time.Duration
	DownloadStartTime *time.Time
	DownloadEndTime   *time.Time
	DownloadDuration  time.Duration
	TotalDuration     time.Duration
	mu                sync.Mutex
}

// NewReplayMetrics creates a new metrics instance
func NewReplayMetrics(requestID string) *ReplayMetrics {
	return &ReplayMetrics{
		RequestID: requestID,
		StartTime: time.Now(),
	}
}

// StartResolve marks the start of segment resolution
func (m *ReplayMetrics) StartResolve() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.ResolveStartTime = &now
}

// EndResolve marks the end of segment resolution
func (m *ReplayMetrics) EndResolve() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ResolveStartTime != nil {
		now := time.Now()
		m.ResolveEndTime = &now
		m.ResolveDuration = now.Sub(*m.ResolveStartTime)
		log.Printf("[Metrics] Request %s: resolution completed in %v", m.RequestID, m.ResolveDuration)
	}
}

// StartDownload marks the start of a segment download
func (m *ReplayMetrics) StartDownload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.DownloadStartTime = &now
}

// EndDownload marks the end of a segment download
func (m *ReplayMetrics) EndDownload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DownloadStartTime != nil {
		now := time.Now()
		m.DownloadEndTime = &now
		m.DownloadDuration = now.Sub(*m.DownloadStartTime)
		log.Printf("[Metrics] Request %s: download completed in %v", m.RequestID, m.DownloadDuration)
	}
}

// Finish computes the total duration and logs a summary
func (m *ReplayMetrics) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalDuration = time.Since(m.StartTime)
	log.Printf("[Metrics] Request %s: total %v (resolve %v, download %v)",
		m.RequestID, m.TotalDuration, m.ResolveDuration, m.DownloadDuration)
}

// Counters accumulates process-lifetime totals for the stats endpoint.
type Counters struct {
	mu             sync.Mutex
	Resolutions    int64
	CacheHits      int64
	CacheMisses    int64
	DownloadErrors int64
}

// AddResolution records one completed resolution request.
func (c *Counters) AddResolution() {
	c.mu.Lock()
	c.Resolutions++
	c.mu.Unlock()
}

// AddCacheHit records one cache hit serve.
func (c *Counters) AddCacheHit() {
	c.mu.Lock()
	c.CacheHits++
	c.mu.Unlock()
}

// AddCacheMiss records one fetch-through serve.
func (c *Counters) AddCacheMiss() {
	c.mu.Lock()
	c.CacheMisses++
	c.mu.Unlock()
}

// AddDownloadError records one failed fetch-through.
func (c *Counters) AddDownloadError() {
	c.mu.Lock()
	c.DownloadErrors++
	c.mu.Unlock()
}

// Snapshot returns a copy of the counters for serialization.
func (c *Counters) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]int64{
		"resolutions":     c.Resolutions,
		"cache_hits":      c.CacheHits,
		"cache_misses":    c.CacheMisses,
		"download_errors": c.DownloadErrors,
	}
}
