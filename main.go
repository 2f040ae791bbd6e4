package main

import (
	"log"
	"time"

	"cctv-replay/api"
	"cctv-replay/archive"
	"cctv-replay/cache"
	"cctv-replay/config"
	"cctv-replay/database"
	"cctv-replay/monitoring"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	config.EnsurePaths(cfg)

	db, err := database.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	session := archive.NewSession(cfg)
	resolver := archive.NewResolver(session, cfg)

	store, err := cache.NewStore(session, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize video cache: %v", err)
	}

	janitor := cache.NewJanitor(store, cfg.CacheCleanupInterval)
	if err := janitor.Start(); err != nil {
		log.Fatalf("Failed to start cache janitor: %v", err)
	}
	defer janitor.Stop()

	monitoring.StartMonitoring(5*time.Minute, cfg.CacheDir)

	server := api.NewServer(cfg, db, resolver, store)
	log.Printf("CCTV replay service starting on port %s", cfg.ServerPort)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
