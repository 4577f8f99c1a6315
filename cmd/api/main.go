package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresuchdata/vendcast/internal/api"
	"github.com/andresuchdata/vendcast/internal/cache"
	"github.com/andresuchdata/vendcast/internal/config"
	"github.com/andresuchdata/vendcast/internal/pipeline"
	"github.com/andresuchdata/vendcast/internal/repository/postgres"
	"github.com/andresuchdata/vendcast/internal/service"
	"github.com/andresuchdata/vendcast/pkg/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	logger.SetLevel(cfg.App.LogLevel)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	runs := pipeline.NewRepository(db.DB)
	if err := runs.EnsureTable(context.Background()); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to prepare forecast_runs table")
	}

	adviceCache, err := cache.NewAdviceCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Advice cache unavailable, serving from database")
		adviceCache = cache.NewNoopAdviceCache()
	}

	adviceService := service.NewAdviceService(postgres.NewAdviceReader(db, cfg.Sink), runs, adviceCache)
	router := api.NewRouter(&api.Services{AdviceService: adviceService}, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}
