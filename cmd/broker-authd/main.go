// Package main provides the entry point for the broker auth daemon: the
// admin/lookup REST surface with authentication, authorization, and the
// policy store behind them.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tidemq/broker-core/internal/api"
	"github.com/tidemq/broker-core/internal/audit"
	"github.com/tidemq/broker-core/internal/auth"
	"github.com/tidemq/broker-core/internal/authz"
	"github.com/tidemq/broker-core/internal/cache"
	"github.com/tidemq/broker-core/internal/config"
	"github.com/tidemq/broker-core/internal/db"
	"github.com/tidemq/broker-core/internal/metrics"
	"github.com/tidemq/broker-core/internal/policy"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath      = flag.String("config", "", "Path to YAML configuration file")
		listenAddr      = flag.String("listen-addr", "", "Override the listen address")
		logLevel        = flag.String("log-level", "", "Override the log level (debug, info, warn, error)")
		showVersion     = flag.Bool("version", false, "Show version information")
		gracefulTimeout = flag.Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("broker-authd %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
	}
	applyEnvOverrides(&cfg)
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger, err := initLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting broker auth daemon",
		zap.String("version", Version),
		zap.String("cluster", cfg.ClusterName),
		zap.String("listen_addr", cfg.ListenAddr),
		zap.Bool("authentication", cfg.AuthenticationEnabled),
		zap.Bool("authorization", cfg.AuthorizationEnabled),
	)

	store, err := initStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize policy store", zap.Error(err))
	}
	defer store.Close()

	decisions, err := initCache(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize decision cache", zap.Error(err))
	}

	authn, err := initAuthenticator(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize authentication", zap.Error(err))
	}
	defer authn.Close()

	m := metrics.New("broker")
	auditLog := audit.NewLogger(logger.Named("audit"), 4096)
	defer auditLog.Close()

	engine := authz.New(authz.Config{
		AuthorizationEnabled: cfg.AuthorizationEnabled,
		SuperUserRoles:       cfg.SuperUserRoles,
	}, store, decisions, m, logger)

	srvCfg := api.DefaultConfig()
	srvCfg.ListenAddr = cfg.ListenAddr
	srvCfg.ClusterName = cfg.ClusterName
	srvCfg.TLSCertFile = cfg.TLSCertFile
	srvCfg.TLSKeyFile = cfg.TLSKeyFile

	srv, err := api.New(srvCfg, authn, engine, store, m, auditLog, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	errChan := make(chan error, 1)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			logger.Fatal("Server error", zap.Error(err))
		}
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), *gracefulTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed", zap.Error(err))
		}
		srv.Sessions().InvalidateAll()
	}

	logger.Info("Server stopped successfully")
}

// applyEnvOverrides lets deployment tooling override file settings without
// rewriting the config. Flags still take precedence over both.
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv("BROKER_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("BROKER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BROKER_POSTGRES_DSN"); v != "" {
		cfg.Store.Backend = "postgres"
		cfg.Store.PostgresDSN = v
	}
	if v := os.Getenv("BROKER_REDIS_ADDR"); v != "" {
		cfg.Cache.Enabled = true
		cfg.Cache.Backend = "redis"
		cfg.Cache.RedisAddr = v
	}
}

// initLogger builds the zap logger, optionally writing to a rotating file.
func initLogger(cfg config.Config) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch cfg.LogLevel {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	if cfg.LogFile != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		})
		encCfg := zap.NewProductionEncoderConfig()
		var enc zapcore.Encoder
		if cfg.LogFormat == "console" {
			enc = zapcore.NewConsoleEncoder(encCfg)
		} else {
			enc = zapcore.NewJSONEncoder(encCfg)
		}
		core := zapcore.NewCore(enc, sink, zapLevel)
		return zap.New(core, zap.AddCaller()), nil
	}

	var zc zap.Config
	if cfg.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(zapLevel)
	return zc.Build()
}

// initStore opens the configured policy store backend, running schema
// migrations for postgres.
func initStore(cfg config.Config, logger *zap.Logger) (policy.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return policy.NewMemoryStore(), nil
	case "postgres":
		sqlDB, err := sql.Open("postgres", cfg.Store.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(ctx); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}

		runner, err := db.NewMigrationRunner(sqlDB)
		if err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("prepare migrations: %w", err)
		}
		if err := runner.Up(); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		version, dirty, err := runner.Version()
		if err == nil {
			logger.Info("Schema migrations applied",
				zap.Uint("version", version),
				zap.Bool("dirty", dirty))
		}
		return policy.NewPostgresStore(sqlDB), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// initCache builds the decision cache; nil disables caching.
func initCache(cfg config.Config) (cache.DecisionCache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewLRU(cfg.Cache.Size, cfg.Cache.TTL), nil
	case "redis":
		rc := cache.DefaultRedisConfig()
		rc.Addr = cfg.Cache.RedisAddr
		rc.Password = cfg.Cache.RedisPassword
		rc.DB = cfg.Cache.RedisDB
		if cfg.Cache.TTL > 0 {
			rc.TTL = cfg.Cache.TTL
		}
		return cache.NewRedisCache(rc)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// initAuthenticator assembles the provider chain from configuration.
func initAuthenticator(cfg config.Config, logger *zap.Logger) (*auth.Authenticator, error) {
	providers := make([]auth.Provider, 0, len(cfg.AuthenticationProviders))
	for _, pc := range cfg.AuthenticationProviders {
		switch pc.Name {
		case "tls":
			p, err := auth.NewTLSProvider(pc.TrustCertsFile, logger)
			if err != nil {
				return nil, fmt.Errorf("tls provider: %w", err)
			}
			providers = append(providers, p)
		case "basic":
			p, err := auth.NewBasicProvider(pc.BasicAuthFile, logger)
			if err != nil {
				return nil, fmt.Errorf("basic provider: %w", err)
			}
			providers = append(providers, p)
		case "token":
			p, err := auth.NewTokenProvider([]byte(pc.TokenSecret), logger)
			if err != nil {
				return nil, fmt.Errorf("token provider: %w", err)
			}
			providers = append(providers, p)
		default:
			return nil, fmt.Errorf("unknown authentication provider %q", pc.Name)
		}
	}

	chain := auth.NewChain(logger, providers...)
	resolver := auth.NewRoleResolver(cfg.AnonymousRole)
	return auth.NewAuthenticator(cfg.AuthenticationEnabled, chain, resolver, logger), nil
}
