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

	"afterhours-agent/internal/bridge"
	"afterhours-agent/internal/config"
	"afterhours-agent/internal/events"
	"afterhours-agent/internal/leads"
	"afterhours-agent/internal/realtime"
	"afterhours-agent/internal/sms"
	"afterhours-agent/internal/telephony"
	"afterhours-agent/internal/tools"
	"afterhours-agent/pkg/logger"
	"afterhours-agent/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const serviceName = "afterhours-agent"

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	eventLog, err := events.Open(cfg.Storage.EventsPath)
	if err != nil {
		log.Error("event log init failed", "err", err)
		os.Exit(1)
	}
	defer eventLog.Close()

	var leadStore leads.Store
	if cfg.Storage.DatabaseURL != "" {
		db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.Storage.DatabaseURL, utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		leadStore = leads.NewPostgresStore(db)
		log.Info("lead store: postgres")
	} else {
		fs, err := leads.OpenFileStore(cfg.Storage.LeadsPath)
		if err != nil {
			log.Error("lead store init failed", "err", err)
			os.Exit(1)
		}
		defer fs.Close()
		leadStore = fs
		log.Info("lead store: file", "path", cfg.Storage.LeadsPath)
	}

	var sender sms.Sender
	if cfg.Twilio.Configured() {
		client, err := sms.New(sms.Config{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			FromNumber: cfg.Twilio.FromNumber,
		})
		if err != nil {
			log.Error("sms client init failed", "err", err)
			os.Exit(1)
		}
		sender = client
	} else {
		log.Warn("messaging gateway not configured; send tools will report skipped")
	}

	registry := tools.NewRegistry(tools.Deps{
		Leads:        leadStore,
		Events:       eventLog,
		SMS:          sender,
		BusinessName: cfg.Business.Name,
		OnCallNumber: cfg.Business.OnCallNumber,
	})

	br := bridge.New(realtime.Config{
		APIKey:       cfg.Realtime.APIKey,
		Model:        cfg.Realtime.Model,
		Voice:        cfg.Realtime.Voice,
		Instructions: bridge.Instructions(cfg.Business.Name),
	}, registry, eventLog, log)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := telephony.NewHandlers(serviceName, cfg.Business.PublicHost, br)
	registerRoutes(r, h)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "business", cfg.Business.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
