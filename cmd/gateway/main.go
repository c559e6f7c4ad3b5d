package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/hftgate/params"
	"github.com/uhyunpark/hftgate/pkg/api"
	"github.com/uhyunpark/hftgate/pkg/crypto"
	"github.com/uhyunpark/hftgate/pkg/engine"
	"github.com/uhyunpark/hftgate/pkg/feed"
	"github.com/uhyunpark/hftgate/pkg/gateway"
	"github.com/uhyunpark/hftgate/pkg/market"
	"github.com/uhyunpark/hftgate/pkg/metrics"
	"github.com/uhyunpark/hftgate/pkg/storage"
	"github.com/uhyunpark/hftgate/pkg/stream"
	"github.com/uhyunpark/hftgate/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Log.File != "" {
		logger, err = util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	} else {
		logger, err = util.NewLogger(cfg.Log.Level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sugar); err != nil {
		sugar.Errorw("gateway_stopped", "err", err)
		logger.Sync()
		os.Exit(1)
	}
	sugar.Info("gateway_stopped")
}

func run(ctx context.Context, cfg params.Config, logger *zap.SugaredLogger) error {
	m := metrics.New()

	// ---- Streams ----
	streams := stream.NewEngine(stream.Config{
		BufferSize: cfg.Stream.BufferSize,
		Shards:     cfg.Stream.Shards,
		Logger:     logger.Named("stream"),
		Metrics:    m,
	})
	defer streams.Close()
	tables := feed.NewTables()
	tables.Declare(streams)

	// ---- History ----
	history, err := storage.NewHistoryStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer history.Close()

	// ---- Feeds ----
	bridge := feed.NewBridge(streams, logger.Named("feed"), m).Tap(history)
	closeFeeds, err := wireFeeds(ctx, cfg, bridge, logger)
	if err != nil {
		return err
	}
	defer closeFeeds()

	// ---- Asset pairs ----
	src, err := assetPairSource(cfg.Assets)
	if err != nil {
		return err
	}
	pairs := market.NewCache(src, cfg.Assets.RefreshTTL, util.RealClock{}, logger.Named("market"))
	if err := pairs.Refresh(ctx); err != nil {
		// served lazily once the source recovers
		logger.Warnw("assetpairs_initial_load_failed", "err", err)
	} else {
		logger.Infow("assetpairs_loaded", "count", pairs.Registry().Count())
	}
	validator := market.NewValidator(pairs)

	// ---- Matching engine ----
	me, err := engine.DialGRPC(engine.GRPCConfig{
		Target:  cfg.Engine.Target,
		Timeout: cfg.Engine.Timeout,
		Logger:  logger.Named("engine"),
	})
	if err != nil {
		return err
	}
	defer me.Close()

	orders := gateway.New(me, validator,
		gateway.WithLogger(logger.Named("gateway")),
		gateway.WithMetrics(m),
		gateway.WithTimeout(cfg.Engine.Timeout),
	)

	deps := api.Deps{
		Streams:   streams,
		Tables:    tables,
		Orders:    orders,
		Pairs:     pairs,
		Validator: validator,
		History:   history,
		Metrics:   m,
		Logger:    logger.Named("api"),
	}
	if cfg.Auth.Disabled {
		logger.Warn("auth_disabled - accounts are taken from the X-Account-Id header")
	} else {
		deps.Auth = crypto.NewVerifier(cfg.Auth.MaxAge, util.RealClock{})
	}
	server := api.NewServer(&cfg, deps)

	logger.Infow("gateway_starting",
		"api_addr", cfg.API.Addr,
		"engine", cfg.Engine.Target,
		"feed", cfg.Feed.Transport,
		"history", cfg.History.Path)

	// A terminated feed ends the process; clients reconnect to a fresh one.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bridge.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })
	return g.Wait()
}

func assetPairSource(cfg params.Assets) (market.Source, error) {
	if cfg.RedisAddr == "" {
		return market.ParseStatic(cfg.Static)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return market.NewRedisSource(client, cfg.RedisKey), nil
}

var errUnknownTransport = errors.New("unknown feed transport")
