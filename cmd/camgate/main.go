// Package main is the entry point for the camgate authentication gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vigilops/camgate/internal/audit"
	"github.com/vigilops/camgate/internal/auth"
	"github.com/vigilops/camgate/internal/auth/token"
	"github.com/vigilops/camgate/internal/authz"
	"github.com/vigilops/camgate/internal/config"
	"github.com/vigilops/camgate/internal/observability"
	"github.com/vigilops/camgate/internal/secrets"
	"github.com/vigilops/camgate/internal/server"
	"github.com/vigilops/camgate/internal/suspicion"
	"github.com/vigilops/camgate/internal/userstore"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	cfg := loadConfig(flags.configPath)

	logger := initLogger(flags, cfg)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting camgate",
		observability.String("version", version),
		observability.String("config", flags.configPath),
	)

	app, err := buildApplication(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize gateway", observability.Error(err))
	}

	run(app, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("CAMGATE_CONFIG_PATH", "configs/camgate.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", os.Getenv("CAMGATE_LOG_LEVEL"),
		"Log level override (debug, info, warn, error)")
	logFormat := flag.String("log-format", os.Getenv("CAMGATE_LOG_FORMAT"),
		"Log format override (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("camgate version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}

// loadConfig loads and validates the configuration, exiting on failure.
func loadConfig(path string) *config.Config {
	cfg, err := config.LoadAndValidate(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// initLogger builds the logger from configuration with flag overrides.
func initLogger(flags cliFlags, cfg *config.Config) observability.Logger {
	logCfg := cfg.Logging.ToLogConfig()
	if flags.logLevel != "" {
		logCfg.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		logCfg.Format = flags.logFormat
	}

	logger, err := observability.NewLogger(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// application holds the wired gateway components.
type application struct {
	server  *server.Server
	emitter audit.Emitter
	tracker *suspicion.Tracker
	secret  *secrets.Holder
	users   userstore.Store
}

// buildApplication constructs every component with explicit injection.
func buildApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (*application, error) {
	namespace := cfg.Server.GetEffectiveMetricsNamespace()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	secretSource, err := cfg.Auth.Secret.Source()
	if err != nil {
		return nil, fmt.Errorf("shared secret source: %w", err)
	}
	holder, err := secrets.NewHolder(ctx, secretSource)
	if err != nil {
		return nil, fmt.Errorf("shared secret load: %w", err)
	}

	validator, err := token.NewValidator(ctx, cfg.Auth.Token.ToTokenConfig(),
		token.WithValidatorLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("token validator: %w", err)
	}

	emitter, err := audit.NewEmitter(cfg.Audit.ToAuditConfig(),
		audit.WithEmitterLogger(logger),
		audit.WithEmitterMetrics(audit.NewMetricsWithRegisterer(namespace, registry)),
	)
	if err != nil {
		return nil, fmt.Errorf("audit emitter: %w", err)
	}

	tracker, err := suspicion.NewTracker(cfg.Suspicion.ToSuspicionConfig(), emitter,
		suspicion.WithTrackerLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("suspicion tracker: %w", err)
	}

	gateway, err := auth.NewGateway(
		auth.NewResolver(cfg.Auth.SecretHeader, holder),
		validator,
		emitter,
		auth.WithGatewayLogger(logger),
		auth.WithGatewayMetrics(auth.NewMetricsWithRegisterer(namespace, registry)),
		auth.WithFailureTracker(tracker),
	)
	if err != nil {
		return nil, fmt.Errorf("auth gateway: %w", err)
	}

	users, err := userstore.NewStore(ctx, &cfg.Users)
	if err != nil {
		return nil, fmt.Errorf("user store: %w", err)
	}

	srv, err := server.New(&cfg.Server, gateway, authz.NewEnforcer(authz.WithEnforcerLogger(logger)),
		emitter, users,
		server.WithServerLogger(logger),
		server.WithRegistry(registry),
	)
	if err != nil {
		return nil, fmt.Errorf("http server: %w", err)
	}

	return &application{
		server:  srv,
		emitter: emitter,
		tracker: tracker,
		secret:  holder,
		users:   users,
	}, nil
}

// run serves until a termination signal arrives, with the config watcher
// hot-swapping the shared secret on file changes.
func run(app *application, configPath string, logger observability.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := config.NewWatcher(configPath,
		func(newCfg *config.Config) {
			source, err := newCfg.Auth.Secret.Source()
			if err != nil {
				logger.Error("reloaded secret source invalid", observability.Error(err))
				return
			}
			if err := app.secret.SwapSource(context.Background(), source); err != nil {
				logger.Error("shared secret reload failed, previous secret stays active",
					observability.Error(err))
				return
			}
			if err := app.users.Reseed(context.Background(), &newCfg.Users); err != nil {
				logger.Error("user reseed failed", observability.Error(err))
			}
			logger.Info("configuration reloaded")
		},
		config.WithWatcherLogger(logger),
	)
	if err != nil {
		logger.Fatal("failed to create config watcher", observability.Error(err))
	}
	if err := watcher.Start(ctx); err != nil {
		logger.Fatal("failed to start config watcher", observability.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("termination signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", observability.Error(err))
		}
	}

	shutdownErr := app.server.Shutdown(context.Background())

	if err := watcher.Stop(); err != nil {
		logger.Error("config watcher stop failed", observability.Error(err))
	}
	if err := app.tracker.Close(); err != nil {
		logger.Error("suspicion store close failed", observability.Error(err))
	}
	if err := app.emitter.Close(); err != nil {
		logger.Error("audit sink close failed", observability.Error(err))
	}

	if shutdownErr != nil {
		logger.Fatal("graceful shutdown failed", observability.Error(shutdownErr))
	}

	logger.Info("camgate stopped")
}
