package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scribe-blog/scribe-be/internal/api"
	"github.com/scribe-blog/scribe-be/internal/auth"
	"github.com/scribe-blog/scribe-be/internal/config"
	"github.com/scribe-blog/scribe-be/internal/database"
	"github.com/scribe-blog/scribe-be/internal/images"
	"github.com/scribe-blog/scribe-be/internal/logger"
	"github.com/scribe-blog/scribe-be/internal/monitoring"
	"github.com/scribe-blog/scribe-be/internal/services"
	"github.com/scribe-blog/scribe-be/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Environment)

	// Set up the upload directory and make sure the default avatar exists
	store, err := images.NewStore(cfg.UploadPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize upload store")
	}
	if err := store.EnsureDefaultAvatar(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure default avatar")
	}

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	// Set up services
	eventService := services.NewEventService(db)
	userService := services.NewUserService(db)
	postService := services.NewPostService(db, hub, eventService)
	profileService := services.NewProfileService(db, store, eventService)

	// Set up and run the background upload sweeper
	sweeper, err := monitoring.NewSweeper(profileService, eventService, store, cfg.CleanupSchedule)
	if err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.CleanupSchedule).Msg("Invalid cleanup schedule")
	}
	go sweeper.Run()

	// Set up router
	router := api.NewRouter(api.Deps{
		Auth:     auth.New(cfg.JWTSecret),
		Hub:      hub,
		Users:    userService,
		Posts:    postService,
		Profiles: profileService,
		Events:   eventService,
		Store:    store,
		Secure:   cfg.Environment == "production",
	})

	// Set up server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Msg("Server starting")
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ListenAndServe()")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exiting")
}
