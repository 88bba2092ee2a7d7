package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stakeoracle/core"
	"stakeoracle/gateway/middleware"
	"stakeoracle/native/prediction"
	"stakeoracle/observability"
	"stakeoracle/observability/logging"
	telemetry "stakeoracle/observability/otel"
	"stakeoracle/services/predictd/config"
	"stakeoracle/services/prediction/journal"
	"stakeoracle/services/prediction/oracle"
	"stakeoracle/services/prediction/server"
	"stakeoracle/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/predictd/config.yaml", "path to predictd config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("PREDICT_ENV"))
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logging.Setup("predictd", env)
		log.Fatalf("load config: %v", err)
	}
	logger, logCloser := logging.SetupWithFile("predictd", env, cfg.Log.Level, logging.FileConfig{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	defer logCloser.Close()

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv("predictd", env))
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	if err := run(cfg, logger); err != nil {
		logger.Error("predictd stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	db, err := openDatabase(cfg.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	loanOracle, control, err := buildOracle(cfg.Oracle, logger)
	if err != nil {
		return err
	}

	node, err := core.NewNode(db, core.NodeConfig{
		Admin:            cfg.AdminAddress(),
		Custody:          cfg.CustodyAddress(),
		StakeSymbol:      cfg.StakeToken,
		SettlementSymbol: cfg.SettlementToken,
		Oracle:           loanOracle,
		OracleControl:    control,
	})
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	var eventJournal *journal.Journal
	if cfg.Journal.Driver != "" {
		gormDB, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		if sqlDB, err := gormDB.DB(); err == nil {
			defer sqlDB.Close()
		}
		if err := journal.AutoMigrate(gormDB); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}
		eventJournal, err = journal.New(gormDB, logger.With("component", "journal"))
		if err != nil {
			return err
		}
		node.Events().AddSink(eventJournal)
	}
	node.Events().AddSink(observability.Events())

	genesis, err := cfg.GenesisSpec()
	if err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	wrote, err := node.InitGenesis(genesis)
	if err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	if wrote {
		logger.Info("genesis applied", "tokens", len(genesis.Tokens), "allocations", len(genesis.Allocations))
	}

	srv, err := server.New(server.Config{
		Ledger:  node,
		Journal: eventJournal,
		Auth: middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew,
		},
		RateLimits:    rateLimits(cfg.RateLimits),
		CORS:          middleware.CORSConfig{AllowedOrigins: cfg.CORSOrigins},
		Logger:        logger,
		ServiceName:   "predictd",
		LogRequests:   cfg.LogRequests,
		StreamBuffer:  cfg.StreamBuffer,
		DisableTraces: cfg.DisableTracing,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("predictd listening",
			"addr", cfg.ListenAddress,
			"oracle", cfg.Oracle.Mode,
			"stake", cfg.StakeToken,
			"settlement", cfg.SettlementToken)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", "error", err)
			return httpServer.Close()
		}
		return nil
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func openDatabase(dir string) (storage.Database, error) {
	if dir == "" {
		return storage.NewMemDB(), nil
	}
	db, err := storage.NewLevelDB(dir)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", dir, err)
	}
	return db, nil
}

// buildOracle returns the instrumented oracle and, in static mode, the
// control handle used by the admin status endpoint.
func buildOracle(cfg config.OracleConfig, logger *slog.Logger) (prediction.Oracle, core.StatusSetter, error) {
	switch cfg.Mode {
	case config.OracleEVM:
		client, err := oracle.DialEVMClient(cfg.RPCURL)
		if err != nil {
			return nil, nil, fmt.Errorf("dial evm: %w", err)
		}
		evm, err := oracle.NewEVM(client, oracle.RetryConfig{Attempts: cfg.RetryAttempts, Delay: cfg.RetryDelay}, logger.With("component", "oracle"))
		if err != nil {
			return nil, nil, err
		}
		return oracle.Instrument(evm), nil, nil
	default:
		static := oracle.NewStatic()
		return oracle.Instrument(static), static, nil
	}
}

func rateLimits(in map[string]config.RateLimitConfig) map[string]middleware.RateLimit {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]middleware.RateLimit, len(in))
	for name, limit := range in {
		out[name] = middleware.RateLimit{
			RatePerSecond: limit.RatePerSecond,
			Burst:         limit.Burst,
			DefaultTokens: limit.DefaultTokens,
			Tokens:        limit.Tokens,
		}
	}
	return out
}
