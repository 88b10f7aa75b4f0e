// Package main is the paper broker's REST server entrypoint: it wires
// configuration, the quote source, the broker façade, and the HTTP
// surface together, then runs the daily expiration sweep on a cron
// schedule until asked to shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/scranton-trading/paperbroker/internal/account"
	"github.com/scranton-trading/paperbroker/internal/config"
	"github.com/scranton-trading/paperbroker/internal/estimator"
	"github.com/scranton-trading/paperbroker/internal/facade"
	"github.com/scranton-trading/paperbroker/internal/quotemock"
	"github.com/scranton-trading/paperbroker/internal/quotesource"
	"github.com/scranton-trading/paperbroker/internal/restapi"
	"github.com/scranton-trading/paperbroker/internal/retryx"
	"github.com/scranton-trading/paperbroker/internal/validate"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)

	store, err := account.NewJSONStore(cfg.Storage.Path)
	if err != nil {
		logger.WithError(err).Fatal("initializing account store")
	}

	source := newQuoteSource(cfg, logger)

	est, err := estimator.Factory(cfg.Estimator.Name, cfg.Estimator.DecimalParams())
	if err != nil {
		logger.WithError(err).Fatal("initializing fill estimator")
	}

	limits := limitsFromConfig(cfg)
	broker := facade.New(store, source, est, limits, logger)

	server := restapi.NewServer(restapi.Config{Port: cfg.Server.Port, AuthToken: cfg.Server.AuthToken}, broker, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sched *cron.Cron
	if cfg.Expiration.Enabled {
		sched = startExpirationSweep(ctx, cfg, broker, logger)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Error("REST server stopped")
		}
	}()

	<-sigChan
	logger.Info("shutdown signal received")
	cancel()
	if sched != nil {
		stopCtx := sched.Stop()
		<-stopCtx.Done()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("error shutting down REST server")
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.Environment.Mode == "live" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if lvl, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.WithError(err).Warn("invalid log level; defaulting to info")
	}
	return logger
}

func newQuoteSource(cfg *config.Config, logger *logrus.Logger) quotesource.Source {
	var base quotesource.Source
	switch cfg.QuoteSource.Provider {
	case "mock", "":
		base = quotemock.New()
	default:
		logger.Warnf("unknown quote_source.provider %q; falling back to mock", cfg.QuoteSource.Provider)
		base = quotemock.New()
	}

	retrying := quotesource.NewRetrying(base, retryx.NewClient(retryx.Config{
		MaxRetries:     cfg.QuoteSource.RetryMaxRetries,
		InitialBackoff: cfg.QuoteSource.RetryInitialBackoff,
		MaxBackoff:     cfg.QuoteSource.RetryMaxBackoff,
		Timeout:        cfg.QuoteSource.RetryTimeout,
	}))

	return quotesource.NewCircuitBreakerWithSettings(retrying, quotesource.CircuitBreakerSettings{
		MaxRequests:  cfg.QuoteSource.BreakerMaxRequests,
		Interval:     cfg.QuoteSource.BreakerInterval,
		Timeout:      cfg.QuoteSource.BreakerTimeout,
		MinRequests:  cfg.QuoteSource.BreakerMinRequests,
		FailureRatio: cfg.QuoteSource.BreakerFailureRatio,
	})
}

func limitsFromConfig(cfg *config.Config) validate.Limits {
	limits := validate.Limits{}
	if cfg.Risk.MaxPositionNotional > 0 {
		v := decimal.NewFromFloat(cfg.Risk.MaxPositionNotional)
		limits.MaxPositionNotional = &v
	}
	if cfg.Risk.MaxGrossExposure > 0 {
		v := decimal.NewFromFloat(cfg.Risk.MaxGrossExposure)
		limits.MaxGrossExposure = &v
	}
	if cfg.Risk.MaxDailyRealizedLoss > 0 {
		v := decimal.NewFromFloat(cfg.Risk.MaxDailyRealizedLoss)
		limits.MaxDailyRealizedLoss = &v
	}
	if cfg.Risk.MaxAbsPortfolioDelta > 0 {
		v := decimal.NewFromFloat(cfg.Risk.MaxAbsPortfolioDelta)
		limits.MaxAbsPortfolioDelta = &v
	}
	return limits
}

// startExpirationSweep schedules the daily settlement sweep across
// every known account on cfg.Expiration.CronSpec.
func startExpirationSweep(ctx context.Context, cfg *config.Config, broker *facade.Broker, logger *logrus.Logger) *cron.Cron {
	sched := cron.New()
	_, err := sched.AddFunc(cfg.Expiration.CronSpec, func() {
		runExpirationSweep(ctx, broker, logger)
	})
	if err != nil {
		logger.WithError(err).Fatal("scheduling expiration sweep")
	}
	sched.Start()
	logger.Infof("expiration sweep scheduled: %s", cfg.Expiration.CronSpec)
	return sched
}

func runExpirationSweep(ctx context.Context, broker *facade.Broker, logger *logrus.Logger) {
	ids, err := broker.ListAccountIDs(ctx)
	if err != nil {
		logger.WithError(err).Error("listing accounts for expiration sweep")
		return
	}
	for _, id := range ids {
		result, err := broker.RunExpirations(ctx, id)
		if err != nil {
			logger.WithError(err).WithField("account_id", id).Error("expiration sweep failed")
			continue
		}
		if len(result.Events) > 0 {
			logger.WithField("account_id", id).Infof("settled %d expiring position(s)", len(result.Events))
		}
	}
}
