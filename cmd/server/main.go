package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AngelCh415/auction-tracker/internal/config"
	"github.com/AngelCh415/auction-tracker/internal/httpx"
	"github.com/AngelCh415/auction-tracker/internal/ingest"
	"github.com/AngelCh415/auction-tracker/internal/report"
	"github.com/AngelCh415/auction-tracker/internal/store"
	"github.com/AngelCh415/auction-tracker/internal/telemetry"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("config", slog.String("err", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	tel := telemetry.New()
	st := store.NewMemoryStore(cfg.DatasetCache)
	etl := ingest.NewETL(logger, tel, ingest.Options{Precision: cfg.Precision})
	svc := report.NewService(etl, st, tel, cfg)

	r := httpx.NewRouter(logger, svc, tel, cfg.MaxUploadMB<<20)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.HTTPTimeout,
		WriteTimeout:      cfg.HTTPTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	logger.Info("starting server", slog.String("port", cfg.Port), slog.String("policy", cfg.Policy))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
