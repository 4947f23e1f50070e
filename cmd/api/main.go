package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"keepsake/api/internal/app"
	"keepsake/api/internal/config"
	"keepsake/api/internal/guest"
	"keepsake/api/internal/search"
	"keepsake/api/internal/snapshot"
	"keepsake/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.SnapshotsDir, 0o755); err != nil {
		log.Fatalf("failed to create snapshots dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)
	snapshots := snapshot.New(cfg.SnapshotsDir)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
	}

	var guests guest.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisGuests, err := guest.NewRedisStore(cfg.RedisURL, cfg.GuestTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisGuests.Close()
		guests = redisGuests
		log.Printf("Using Redis for guest identities")
	} else {
		guests = guest.NewMemoryStore()
		log.Printf("Using in-memory guest identities")
	}

	service := app.NewService(cfg, dataStore, guests, searchService, snapshots)
	service.ReindexAll(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Keepsake API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
