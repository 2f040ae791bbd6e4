package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config contains all configuration for the application
type Config struct {

	// Server Configuration
	ServerPort string
	BaseURL    string // Base URL used when building cached video URLs

	// Archive (NVR) Configuration
	ArchiveBaseURL  string
	ArchiveLogin    string
	ArchivePassword string
	ArchiveTimeout  time.Duration // per-request timeout for listing/download calls
	TokenLifetime   time.Duration // vendor-documented session token lifetime

	// Camera Configuration: camera id -> recording folder path on the archive
	CameraPaths map[int]string

	// Cache Configuration
	CacheDir              string
	CacheMaxSizeBytes     int64
	CacheCleanupThreshold int64 // soft ceiling; eviction starts above this
	CacheCleanupInterval  time.Duration
	MetadataCapacity      int
	MetadataTTL           time.Duration

	// Playback Configuration
	ClipDuration int // nominal clip duration in seconds

	// Database Configuration
	DatabasePath string
}

// defaultCameraPaths mirrors the archive's per-channel recording folders.
// Overridden by the CAMERA_PATHS env var (JSON object, camera id -> path).
var defaultCameraPaths = map[int]string{
	1: "/CCTV/RecSpace_360673CBB6824C65B7CB3A2F611A6110/CH001_50F36D36752750F36D36752750F30000/Regular",
	2: "/CCTV/RecSpace_360673CBB6824C65B7CB3A2F611A6110/CH002_50F36D36752750F36D36752750F30001/Regular",
	3: "/CCTV/RecSpace_360673CBB6824C65B7CB3A2F611A6110/CH003_50F36D36752750F36D36752750F30002/Regular",
	4: "/CCTV/RecSpace_360673CBB6824C65B7CB3A2F611A6110/CH004_50F36D36752750F36D36752750F30003/Regular",
	5: "/CCTV/RecSpace_360673CBB6824C65B7CB3A2F611A6110/CH005_50F36D36752750F36D36752750F30004/Regular",
	6: "/CCTV/RecSpace_360673CBB6824C65B7CB3A2F611A6110/CH006_50F36D36752750F36D36752750F30005/Regular",
}

// LoadConfig loads configuration from environment variables
func LoadConfig() Config {
	cfg := Config{
		ServerPort: getEnv("SERVER_PORT", "3002"),
		BaseURL:    getEnv("BASE_URL", "http://localhost:3002"),

		ArchiveBaseURL:  getEnv("CCTV_BASE_URL", "http://localhost:8090"),
		ArchiveLogin:    getEnv("CCTV_LOGIN", "CCTV"),
		ArchivePassword: getEnv("CCTV_PASSWORD", ""),
		ArchiveTimeout:  time.Duration(getEnvInt("CCTV_TIMEOUT_SECONDS", 15)) * time.Second,
		TokenLifetime:   time.Duration(getEnvInt("CCTV_TOKEN_LIFETIME_MINUTES", 50)) * time.Minute,

		CacheDir:              getEnv("CACHE_DIR", filepath.Join("static", "cache", "videos")),
		CacheMaxSizeBytes:     getEnvInt64("CACHE_MAX_SIZE_MB", 1024) * 1024 * 1024,
		CacheCleanupThreshold: getEnvInt64("CACHE_CLEANUP_THRESHOLD_MB", 800) * 1024 * 1024,
		CacheCleanupInterval:  time.Duration(getEnvInt("CACHE_CLEANUP_INTERVAL_MINUTES", 5)) * time.Minute,
		MetadataCapacity:      getEnvInt("CACHE_METADATA_CAPACITY", 1000),
		MetadataTTL:           time.Duration(getEnvInt("CACHE_METADATA_TTL_MINUTES", 60)) * time.Minute,

		ClipDuration: getEnvInt("CLIP_DURATION_SECONDS", 120),

		DatabasePath: getEnv("DATABASE_PATH", "./data/inventory.db"),
	}

	// Camera map from env, defaults to the built-in channel layout
	camerasJSON := getEnv("CAMERA_PATHS", "")
	if camerasJSON != "" {
		parsed := map[string]string{}
		if err := json.Unmarshal([]byte(camerasJSON), &parsed); err != nil {
			log.Printf("Warning: Failed to parse CAMERA_PATHS: %v", err)
		} else {
			cfg.CameraPaths = make(map[int]string, len(parsed))
			for k, v := range parsed {
				id, err := strconv.Atoi(k)
				if err != nil {
					log.Printf("Warning: Ignoring CAMERA_PATHS key %q: %v", k, err)
					continue
				}
				cfg.CameraPaths[id] = v
			}
		}
	}
	if len(cfg.CameraPaths) == 0 {
		cfg.CameraPaths = defaultCameraPaths
	}

	log.Printf("Loaded configuration with %d cameras", len(cfg.CameraPaths))
	log.Printf("Archive: %s (login %s, token lifetime %s)", cfg.ArchiveBaseURL, cfg.ArchiveLogin, cfg.TokenLifetime)
	log.Printf("Cache: %s (max %dMB, cleanup over %dMB every %s)",
		cfg.CacheDir,
		cfg.CacheMaxSizeBytes/(1024*1024),
		cfg.CacheCleanupThreshold/(1024*1024),
		cfg.CacheCleanupInterval)
	log.Printf("Server running on port %s with base URL %s", cfg.ServerPort, cfg.BaseURL)

	return cfg
}

// Validate checks that required configuration values are present
func (cfg Config) Validate() error {
	if cfg.ArchivePassword == "" {
		return fmt.Errorf("missing required environment variable CCTV_PASSWORD")
	}
	if cfg.CacheCleanupThreshold > cfg.CacheMaxSizeBytes {
		return fmt.Errorf("cache cleanup threshold (%d) exceeds max size (%d)",
			cfg.CacheCleanupThreshold, cfg.CacheMaxSizeBytes)
	}
	return nil
}

// EnsurePaths creates necessary paths
func EnsurePaths(cfg Config) {
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		log.Printf("Failed to create cache directory %s: %v", cfg.CacheDir, err)
	}
	dbDir := filepath.Dir(cfg.DatabasePath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		log.Printf("Failed to create database directory %s: %v", dbDir, err)
	}
}

// getEnv returns environment variable or fallback value
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt returns environment variable parsed as int or fallback value
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Warning: Invalid integer for %s: %q, using %d", key, value, fallback)
	}
	return fallback
}

// getEnvInt64 returns environment variable parsed as int64 or fallback value
func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
		log.Printf("Warning: Invalid integer for %s: %q, using %d", key, value, fallback)
	}
	return fallback
}
