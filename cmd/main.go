package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Ledu55/portfolio-tracker/config"
	"github.com/Ledu55/portfolio-tracker/data"
	"github.com/Ledu55/portfolio-tracker/data/session"
	"github.com/Ledu55/portfolio-tracker/internal/externalApi/trackerApi"
	"github.com/Ledu55/portfolio-tracker/internal/query"
	"github.com/Ledu55/portfolio-tracker/internal/reportGenerator/xlsxGenerator"
	"github.com/Ledu55/portfolio-tracker/internal/scheduler"
	"github.com/Ledu55/portfolio-tracker/internal/store/marketstore"
	"github.com/Ledu55/portfolio-tracker/internal/store/portfoliostore"
	"github.com/Ledu55/portfolio-tracker/internal/store/sessionstore"
	"github.com/Ledu55/portfolio-tracker/utils"
)

func main() {
	cfg := config.MustLoad()

	setupLogger(cfg)

	slog.Debug("config", slog.Any("cfg", cfg))

	redisClient := data.NewRedisClient(cfg)
	defer redisClient.Close()

	sessionStorage := session.NewRedisSession(redisClient, cfg)

	api := trackerApi.New(cfg)

	sessionStore := sessionstore.New(api, sessionStorage)
	portfolioStore := portfoliostore.New(api)
	marketStore := marketstore.New(api, cfg)

	reportGenerator := xlsxGenerator.New()

	coordinator := query.New(cfg, portfolioStore, marketStore, reportGenerator)

	// Any 401 anywhere evicts the session; ending a session drops
	// every user-owned cache.
	api.OnUnauthorized(sessionStore.Evict)
	sessionStore.OnSessionEnd(portfolioStore.Reset)
	sessionStore.OnSessionEnd(marketStore.ClearCache)
	sessionStore.OnSessionEnd(coordinator.Reset)

	ctx := utils.CreateCtxWithRqID(context.Background())
	if err := sessionStore.RestoreSession(ctx); err != nil {
		slog.Error("session restoration failed", slog.String("err", err.Error()))
	}

	sched := scheduler.New()
	sched.NewIntervalJob("refresh market summary", func(ctx context.Context) error {
		_, err := marketStore.RefreshMarketSummary(utils.CreateCtxWithRqID(ctx))
		return err
	}, cfg.Jobs.MarketSummaryRefreshInterval, true)
	sched.NewIntervalJob("refresh current prices", func(ctx context.Context) error {
		return marketStore.RefreshCurrentPrices(utils.CreateCtxWithRqID(ctx))
	}, cfg.Jobs.CurrentPricesRefreshInterval, false)
	sched.Start()
	defer sched.Stop()

	// Waiting interruption signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	<-interrupt
}

func setupLogger(cfg *config.Config) {
	var logLevel slog.Level

	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)
}
