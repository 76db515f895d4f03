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

	"telnyx-agent/internal/backend"
	"telnyx-agent/internal/config"
	"telnyx-agent/internal/fax"
	"telnyx-agent/internal/journal"
	"telnyx-agent/internal/metrics"
	"telnyx-agent/internal/rtc"
	"telnyx-agent/internal/session"
	"telnyx-agent/pkg/logger"
	"telnyx-agent/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// .env is optional; real deployments set env directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.RTC.Debug)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	var repo journal.Repository = journal.NewMemoryRepo(cfg.Journal.MaxEntries)
	if cfg.JournalEnabled() {
		rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.Redis.Addr})
		if err != nil {
			log.Error("redis init failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()
		repo = journal.NewRedisRepo(rdb, cfg.Journal.MaxEntries)
	}
	jrnl := journal.NewService(repo, log)

	api := backend.New(cfg.Backend.BaseURL, cfg.Backend.RequestTimeout, log)

	ctrl := session.NewController(session.Config{
		RTCServerURL: cfg.RTC.ServerURL,
		CallerNumber: cfg.RTC.CallerNumber,
		Debug:        cfg.RTC.Debug,
	}, api, rtc.NewWebSocketClient, session.LogSink{Log: log}, jrnl, log)
	ctrl.Start(rootCtx)

	faxSvc := fax.NewService(api, jrnl, log)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	registerRoutes(r, ctrl, faxSvc, jrnl)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("agent listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	ctrl.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
