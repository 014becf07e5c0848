package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ticket-proxy/api/internal/config"
	"ticket-proxy/api/internal/handle"
	"ticket-proxy/api/internal/httpserver"
	"ticket-proxy/api/internal/logx"
	"ticket-proxy/api/internal/metrics"
	"ticket-proxy/api/internal/relay"
	"ticket-proxy/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logx.Fatal().Err(err).Msg("load config")
	}
	logx.Init(logx.ParseEnvironment(cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Gemini.APIKey == "" {
		logx.Warn().Msg("GEMINI_API_KEY is empty; /gemini-proxy will answer 500 until it is set")
	}

	mc := metrics.New()
	svc, err := relay.FromConfig(cfg, mc)
	if err != nil {
		logx.Fatal().Err(err).Msg("build relay")
	}

	opts := []handle.Option{
		handle.WithTimeout(cfg.Relay.RequestTimeout),
		handle.WithBodyLimit(cfg.HTTP.BodyLimit),
		handle.WithRecorder(mc),
	}

	if cfg.RedisURL != "" {
		rdb, err := store.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logx.Fatal().Err(err).Msg("redis")
		}
		defer rdb.Close()
		opts = append(opts, handle.WithCache(store.NewCache(rdb, cfg.CacheTTL)))
		logx.Info().Dur("ttl", cfg.CacheTTL).Msg("response cache enabled")
	}

	if cfg.DatabaseURL != "" {
		db, err := store.OpenDB(ctx, cfg.DatabaseURL)
		if err != nil {
			logx.Fatal().Err(err).Msg("postgres")
		}
		defer db.Close()
		repo := store.NewTicketRepo(db)
		if err := repo.Migrate(ctx); err != nil {
			logx.Fatal().Err(err).Msg("migrate tickets")
		}
		opts = append(opts, handle.WithJournal(repo), handle.WithReplayWindow(cfg.CacheTTL))
		logx.Info().Str("db", store.SafeDSNSummary(cfg.DatabaseURL)).Msg("extraction journal enabled")
	}

	h := handle.New(svc, cfg.Gemini.APIKey, opts...)
	router := httpserver.NewRouter(h, httpserver.Options{
		CORSOrigin: cfg.HTTP.CORSOrigin,
		Metrics:    mc.Handler(),
	})

	logx.Info().
		Str("engine", svc.Engine().Name()).
		Str("model", svc.Engine().GetModel()).
		Str("strategy", string(svc.Strategy())).
		Msg("ticket proxy starting")

	if err := httpserver.Run(ctx, ":"+cfg.Port, router); err != nil {
		logx.Fatal().Err(err).Msg("server")
	}
}
