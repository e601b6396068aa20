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

	"midnight/api/internal/app"
	"midnight/api/internal/authpw"
	"midnight/api/internal/config"
	"midnight/api/internal/email"
	"midnight/api/internal/media"
	"midnight/api/internal/search"
	"midnight/api/internal/session"
	"midnight/api/internal/store"
	"midnight/api/internal/window"
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

	dataStore := store.NewPostgresStore(db)

	sessions, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer sessions.Close()

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
	}
	go searchService.ReindexAllFromPG(ctx)

	mediaService, err := media.NewService(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL, cfg.MinioPublicURL)
	if err != nil {
		log.Fatalf("object storage init failed: %v", err)
	}
	if err := mediaService.EnsureBuckets(ctx); err != nil {
		log.Printf("WARNING: bucket setup failed (uploads may not work): %v", err)
	}

	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if !emailService.IsConfigured() {
		log.Printf("SMTP not configured, verification and reset tokens are returned in dev responses")
	}

	authService := authpw.NewService(dataStore)

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("invalid timezone %q: %v", cfg.Timezone, err)
	}
	windows := window.NewController(
		window.Schedule{OpenHour: cfg.OpenHour, CloseHour: cfg.CloseHour, Location: location},
		window.WithOverrideStore(dataStore),
		window.WithLocalOverride(cfg.DevMode),
	)
	windows.Start()
	defer windows.Close()

	service := app.New(cfg, dataStore, sessions, searchService, mediaService, emailService, authService, windows)

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go service.RunExpirySweeper(sweepCtx)

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
		log.Printf("Midnight API listening on %s (window %02d:00-%02d:00 %s)", cfg.Addr, cfg.OpenHour, cfg.CloseHour, cfg.Timezone)
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
