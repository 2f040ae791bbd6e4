package api

import (
	"fmt"
	"time"

	"cctv-replay/archive"
	"cctv-replay/cache"
	"cctv-replay/config"
	"cctv-replay/database"
	"cctv-replay/metrics"

	"github.com/gin-gonic/gin"
)

var serverStart = time.Now()

type Server struct {
	config   config.Config
	db       database.Database
	resolver *archive.Resolver
	cache    *cache.Store
	counters *metrics.Counters
}

func NewServer(cfg config.Config, db database.Database, resolver *archive.Resolver, cacheStore *cache.Store) *Server {
	return &Server{
		config:   cfg,
		db:       db,
		resolver: resolver,
		cache:    cacheStore,
		counters: &metrics.Counters{},
	}
}

func (s *Server) Start() error {
	r := s.buildRouter()
	portAddr := ":" + s.config.ServerPort
	fmt.Printf("Starting API server on %s\n", portAddr)
	return r.Run(portAddr)
}

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	s.setupCORS(r)
	s.setupRoutes(r)
	return r
}

func (s *Server) setupCORS(r *gin.Engine) {
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})
}

func (s *Server) setupRoutes(r *gin.Engine) {
	// Cached video files: served from disk when present, fetched through the
	// archive otherwise.
	r.GET("/static/cache/videos/:filename", s.serveVideo)

	// API routes
	api := r.Group("/api")
	{
		api.GET("/cctv/videos", s.getVideos)
		api.GET("/items", s.getItems)
		api.GET("/health", s.handleHealthCheck)
		api.GET("/system_health", s.getSystemHealth)
		api.GET("/cache/stats", s.getCacheStats)
		api.DELETE("/cache", s.eraseCache)
	}
}
