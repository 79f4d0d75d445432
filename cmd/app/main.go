// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"telegram-parts-broker/internal/application"
	"telegram-parts-broker/internal/config"
	"telegram-parts-broker/internal/domain/ports/repository"
	tele "telegram-parts-broker/internal/infra/adapters/telegram"
	"telegram-parts-broker/internal/infra/api"
	pg "telegram-parts-broker/internal/infra/db/postgres"
	"telegram-parts-broker/internal/infra/i18n"
	"telegram-parts-broker/internal/infra/logging"
	"telegram-parts-broker/internal/infra/memory"
	"telegram-parts-broker/internal/infra/metrics"
	red "telegram-parts-broker/internal/infra/redis"
	"telegram-parts-broker/internal/infra/roster"
	"telegram-parts-broker/internal/infra/sched"
	"telegram-parts-broker/internal/infra/worker"
	"telegram-parts-broker/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

type stores struct {
	requests    repository.RequestStore
	states      repository.StateRepository
	rateLimiter tele.RateLimiter
	close       func()
}

func newStores(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*stores, error) {
	if cfg.Requests.Backend != "redis" {
		return &stores{
			requests:    memory.NewRequestStore(),
			states:      memory.NewStateRepo(cfg.Dialogue.StateTTL),
			rateLimiter: memory.NewRateLimiter(),
			close:       func() {},
		}, nil
	}
	client, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	logger.Info().Msg("using redis for requests and dialogue state")
	return &stores{
		requests:    red.NewRequestStore(client, red.NewLocker(client), time.Hour),
		states:      red.NewStateRepo(client, cfg.Dialogue.StateTTL),
		rateLimiter: red.NewRateLimiter(client),
		close:       func() { _ = client.Close() },
	}, nil
}

// newAuditLog opens the optional Postgres dispatch log.
func newAuditLog(ctx context.Context, cfg *config.Config) (repository.DispatchLogRepository, *pgxpool.Pool, error) {
	if strings.TrimSpace(cfg.Database.URL) == "" {
		return nil, nil, nil
	}
	pool, err := pg.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pg.NewDispatchLogRepo(pool), pool, nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, no redaction)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logging & metrics ----
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Str("backend", cfg.Requests.Backend).Bool("dev", cfg.Runtime.Dev).Msg("starting parts broker")

	// ---- Locale ----
	translator, err := i18n.NewTranslator(i18n.LocalesFS, cfg.Bot.Language)
	if err != nil {
		logger.Fatal().Err(err).Msg("load locale")
	}

	// ---- Seller directory (fatal when unreadable at startup) ----
	directory := usecase.NewDirectoryUseCase(roster.NewFileSource(cfg.Directory.Path, logger), logger)
	if _, err := directory.Load(ctx); err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Directory.Path).Msg("seller directory")
	}

	// ---- Stores ----
	st, err := newStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("stores")
	}
	defer st.close()

	audit, pgPool, err := newAuditLog(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres audit log")
	}
	if pgPool != nil {
		defer pgPool.Close()
		logger.Info().Msg("dispatch audit log enabled")
	}

	// ---- Telegram ----
	botAdapter, err := tele.NewRealTelegramBotAdapter(&cfg.Bot, translator, st.rateLimiter, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram")
	}

	// ---- Send pool ----
	sendPool := worker.NewPool(cfg.Router.Workers, logging.Component(logger, "send-pool"))
	sendPool.Start(ctx)
	defer sendPool.Stop()

	// ---- Use cases ----
	router := usecase.NewRouterUseCase(directory, st.requests, botAdapter, translator, sendPool, audit, usecase.RouterOptions{
		RequestTTL:         cfg.Requests.TTL,
		SendAttempts:       cfg.Router.SendAttempts,
		RetryBackoff:       cfg.Router.RetryBackoff,
		Currency:           cfg.Router.Currency,
		RestrictResponders: cfg.RestrictResponders(),
	}, logging.Component(logger, "router"))
	dialogue := usecase.NewDialogueUseCase(st.states, router, usecase.DialogueOptions{
		Brands:   cfg.Dialogue.Brands,
		Currency: cfg.Router.Currency,
	}, logging.Component(logger, "dialogue"))
	miniApp := usecase.NewMiniAppUseCase(directory, router, cfg.Directory.ReloadOnSubmit, logging.Component(logger, "miniapp"))

	// ---- Facade ----
	facade := application.NewBotFacade(dialogue, router, miniApp, directory, translator, cfg.Bot.WebAppURL, logging.Component(logger, "facade"))
	botAdapter.Attach(facade)

	if strings.ToLower(cfg.Bot.Mode) != "polling" {
		logger.Warn().Str("mode", cfg.Bot.Mode).Msg("bot mode not implemented; falling back to polling")
	}
	go func() {
		if err := botAdapter.StartPolling(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("telegram polling stopped")
		}
	}()

	// ---- HTTP server ----
	var server *http.Server
	if cfg.HTTP.Port > 0 {
		auth := api.NewAuthManager(cfg.Admin.APIKey, cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)
		if auth == nil {
			logger.Info().Msg("admin api disabled: admin.api_key or admin.jwt_secret not set")
		}
		srv := api.NewServer(miniApp, directory, router, auth, api.Options{
			BotToken:    cfg.Bot.Token,
			InitDataTTL: cfg.MiniApp.InitDataTTL,
		}, logger)
		server = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", server.Addr).Msg("http listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("http server error")
			}
		}()
	}

	// ---- Expiry sweeper ----
	sweeper := sched.NewExpiryWorker(cfg.Requests.SweepInterval, cfg.Dialogue.StateTTL, router, st.states, logger)
	go func() { _ = sweeper.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	botAdapter.StopPolling()
	if server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		_ = server.Shutdown(shutdownCtx)
	}
	cancel()
}
