package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sharedplay/config"
	"sharedplay/handlers"
	"sharedplay/middleware"
	"sharedplay/repository"
	"sharedplay/routes"
	"sharedplay/services"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}
	if err := repository.Migrate(db); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}
	store := repository.NewPostgresStore(db)
	var sessions repository.SessionStore = store

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// WebSocket hub, fanned out through Redis when configured
	hub := services.NewHub()
	go hub.Run(ctx)

	var notifier services.Notifier = hub
	redisClient, err := config.InitRedis(ctx, cfg)
	if err != nil {
		log.Printf("Redis unavailable, realtime delivery is local only: %v", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessions = repository.NewCachedSessionStore(store, redisClient, cfg.SnapshotTTL)
		broadcaster := services.NewRedisBroadcaster(redisClient, hub)
		notifier = broadcaster
		go func() {
			if err := broadcaster.Run(ctx); err != nil {
				log.Printf("Redis subscriber stopped: %v", err)
			}
		}()
	}

	// Services
	tokenService := services.NewTokenService(sessions, cfg.PublicBaseURL)
	statsService := services.NewStatsService(sessions, store)
	sessionService := services.NewSessionService(sessions, store, tokenService, statsService, notifier, services.SessionOptions{
		MaxParticipants:    cfg.MaxParticipants,
		DefaultExpiryHours: cfg.DefaultExpiryHours,
	})
	arbiter := services.NewControlArbiter(sessions, notifier)
	sharedState := services.NewSharedStateService(sessions, arbiter, notifier)
	presence := services.NewPresenceTracker(sessions)
	lessonService := services.NewLessonService(store, store)
	hub.Bind(sessionService, sharedState, presence)

	if cfg.PresenceTimeout > 0 {
		reaper := services.NewReaper(sessions, notifier, cfg.PresenceTimeout)
		reaper.Start(cfg.ReaperInterval)
		defer reaper.Close()
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	limiter.StartCleanup(cfg.RateLimiterTTL, ctx.Done())

	router := gin.Default()
	router.Use(middleware.RequestID(), middleware.CORS(), limiter.Middleware())

	routes.SetupRoutes(router, routes.Handlers{
		Sessions: handlers.NewSessionHandler(sessionService, tokenService, cfg.JWTSecret),
		Share:    handlers.NewShareHandler(sessionService, tokenService, cfg.JWTSecret),
		State:    handlers.NewStateHandler(sharedState, presence, arbiter),
		Lessons:  handlers.NewLessonHandler(lessonService, statsService),
	}, hub, sessionService, cfg.JWTSecret)

	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.BindAddress, cfg.Port),
		Handler: router,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint
		log.Printf("Shutdown signal received, shutting down server gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server Shutdown: %v", err)
		}
		stop()
		close(idleConnsClosed)
	}()

	log.Printf("Server starting on %s", srv.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("Failed to start server:", err)
	}
	<-idleConnsClosed
	log.Printf("Server shutdown complete")
}
