package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"billocr/pkg/config"
	"billocr/pkg/database"
	"billocr/pkg/logger"
	"billocr/pkg/pipeline"
	"billocr/pkg/service"
	"billocr/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	closer, err := logger.Setup(cfg.GetLoggerConfig())
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer closer.Close()

	if err := run(cfg); err != nil {
		log.Error().Err(err).Msg("server stopped")
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	lg := logger.WithComponent("server")
	if err := cfg.RequireDB(); err != nil {
		return err
	}
	if cfg.InsecureSecret() {
		lg.Warn().Msg("JWT_SECRET not set, using the development secret")
	}

	// `billocr migrate` runs AutoMigrate and seeding then exits.
	migrateOnly := len(os.Args) > 1 && os.Args[1] == "migrate"
	db, err := database.Open(database.Options{
		DSN:           cfg.DBDSN,
		AutoMigrate:   cfg.DBAutoMigrate || migrateOnly,
		AdminPassword: cfg.AdminPassword,
	}, logger.WithComponent("database"))
	if err != nil {
		return err
	}
	if migrateOnly {
		lg.Info().Msg("migration and seeding completed")
		return nil
	}

	a, err := newApp(cfg, db, pipeline.NewDefault(pipelineOptions(cfg), logger.WithComponent("pipeline")))
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger.WithComponent("http")))
	r.MaxMultipartMemory = cfg.MaxUploadBytes()
	a.setupRoutes(r)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		lg.Info().Str("addr", cfg.HTTPAddr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	lg.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func pipelineOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		Language:       cfg.OCRLanguage,
		TessdataPrefix: cfg.TessdataPrefix,
		ConfigTimeout:  cfg.OCRTimeout,
		MaxPixels:      cfg.MaxPixels,
	}
}

func newApp(cfg *config.Config, db *gorm.DB, pipe service.Pipeline) (*app, error) {
	store, err := storage.New(cfg.UploadBase)
	if err != nil {
		return nil, err
	}
	return &app{
		db:        db,
		bills:     service.New(db, store, pipe, cfg.PipelineTimeout, logger.WithComponent("bills")),
		jwtSecret: []byte(cfg.JWTSecret),
		maxUpload: cfg.MaxUploadBytes(),
		log:       logger.WithComponent("http"),
	}, nil
}
