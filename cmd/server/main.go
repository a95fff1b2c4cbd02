package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"finance-tutor/internal/api"
	"finance-tutor/internal/config"
	"finance-tutor/internal/db"
	"finance-tutor/internal/engine"
	"finance-tutor/internal/models"
	"finance-tutor/internal/tutor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ensure data directory exists
	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	database, err := db.NewDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migrated successfully")

	client := tutor.NewClient(tutor.WithBaseURL(cfg.Tutor.BaseURL))
	log.Printf("Tutor client initialized base_url=%s", cfg.Tutor.BaseURL)

	broadcaster := api.NewEventBroadcaster()

	factory := api.NewEngineFactory(database, client, broadcaster, api.EngineOptions{
		QuizEnabled: cfg.Quiz.Enabled,
		QuizSource:  engine.QuizSource(cfg.Quiz.Source),
		DetailLevel: models.DetailLevel(cfg.DetailLevel),
	})
	registry := engine.NewRegistry(factory)
	log.Printf("Engine initialized quiz_enabled=%v quiz_source=%s detail_level=%s",
		cfg.Quiz.Enabled, cfg.Quiz.Source, cfg.DetailLevel)

	router := api.NewRouter(database, registry, broadcaster, cfg.SuggestionsPath, cfg.StaticDir)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Handle graceful shutdown
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Server is shutting down...")

		// Cancel open streams and wait for turn goroutines first
		registry.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}

		close(done)
	}()

	log.Printf("Server starting on port %s", cfg.Port)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}

	<-done
	log.Println("Server stopped gracefully")
}
