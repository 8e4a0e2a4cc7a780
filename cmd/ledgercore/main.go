package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appconfig "github.com/blockforest/ledgercore/internal/config"
	"github.com/blockforest/ledgercore/internal/ledger/barrier"
	"github.com/blockforest/ledgercore/internal/ledger/dialect/btcdialect"
	"github.com/blockforest/ledgercore/internal/ledger/organizer"
	"github.com/blockforest/ledgercore/internal/ledger/reader"
	"github.com/blockforest/ledgercore/internal/ledger/store/postgres"
	"github.com/blockforest/ledgercore/internal/ledger/validator"
)

var config appconfig.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := flags.ParseArgs(&config, os.Args); err != nil {
		os.Exit(1)
	}

	logger, err := newLogger(config.LogLevel)
	if err != nil {
		panic("can't initialize zap logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync()
	}()

	s, closeStore, err := postgres.Open(ctx, postgres.Config{DSN: config.PostgresDSN}, logger)
	if err != nil {
		logger.Fatal("open postgres store", zap.Error(err))
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("close postgres store", zap.Error(err))
		}
	}()

	dialect := btcdialect.New(btcdialect.Params{
		CoinbaseMaturity:  config.CoinbaseMaturity,
		MaxMoney:          config.MaxMoney,
		RetargetInterval:  config.RetargetInterval,
		TargetTimespan:    config.TargetTimespanSec,
		MaxRetargetFactor: config.MaxRetargetFactor,
	})

	r := reader.New(s)
	o := organizer.New(s)
	v := validator.New(s, r, o, dialect)

	cycle := func(ctx context.Context) error {
		if err := o.Organize(ctx); err != nil {
			return err
		}
		return v.Validate(ctx)
	}
	b := barrier.New(ctx, logger, config.Clearance, config.BarrierTimeout, config.ForcedCyclesPerSecond, cycle)
	defer b.Stop()

	// External collaborators (P2P/parsing, out of scope here) construct
	// ingress.New(s, b) and call InsertOrphanBlock as blocks arrive.

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              config.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		logger.Info("shutting down metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown metrics server", zap.Error(err))
		}
	}()

	logger.Info("ledgercore started",
		zap.Uint64("clearance", config.Clearance),
		zap.Duration("barrier_timeout", config.BarrierTimeout),
		zap.String("metrics_addr", config.MetricsAddr))

	if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
