package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eugenenazirov/coffee-shop/internal/application"
	"github.com/eugenenazirov/coffee-shop/internal/config"
	"github.com/eugenenazirov/coffee-shop/internal/environment"
	"github.com/eugenenazirov/coffee-shop/internal/logging"
)

var signalNotify = signal.Notify

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "coffee-shop: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	kingpinApp := kingpin.New("coffee-shop", "Coffee shop drinks API and environment configuration tool")
	kingpinApp.UsageWriter(stdout)
	configFile := kingpinApp.Flag("config", "Path to YAML configuration file").String()
	dotEnvFile := kingpinApp.Flag("dotenv", "Path to a .env file loaded before environment variables").String()
	envName := kingpinApp.Flag("environment", "Environment variant (development or production)").Short('e').String()
	envFile := kingpinApp.Flag("environment-file", "YAML or JSON file overriding fields of the environment variant").String()

	serveCmd := kingpinApp.Command("serve", "Run the drinks API").Default()
	port := serveCmd.Flag("port", "HTTP port exposed by the service (defaults to the apiServerUrl port)").String()
	storageDriver := serveCmd.Flag("storage", "Storage driver").Enum(config.StorageSQLite, config.StorageMemory)
	databasePath := serveCmd.Flag("database", "SQLite database path").String()
	var resetSet bool
	resetDatabase := serveCmd.Flag("reset-db", "Drop all drinks and seed the sample drink on start").IsSetByUser(&resetSet).Bool()
	rateLimitRPSFlag := serveCmd.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	rateLimitBurstFlag := serveCmd.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	envCmd := kingpinApp.Command("env", "Inspect the environment configuration record")
	showCmd := envCmd.Command("show", "Print the active environment record")
	format := showCmd.Flag("format", "Output format").Short('f').Default(string(environment.FormatJSON)).Enum(environment.Formats...)
	validateCmd := envCmd.Command("validate", "Validate the active environment record")
	loginCmd := envCmd.Command("login-url", "Print the identity provider login URL")
	state := loginCmd.Flag("state", "Opaque state echoed back by the identity provider").String()

	command, err := kingpinApp.Parse(args)
	if err != nil {
		return err
	}

	overrides := &config.CLIOverrides{
		ConfigFile: *configFile,
		DotEnvFile: *dotEnvFile,
	}
	if *envName != "" {
		overrides.Environment = envName
	}
	if *envFile != "" {
		overrides.EnvironmentFile = envFile
	}
	if *port != "" {
		overrides.Port = port
	}
	if *storageDriver != "" {
		overrides.StorageDriver = storageDriver
	}
	if *databasePath != "" {
		overrides.DatabasePath = databasePath
	}
	if resetSet {
		overrides.ResetDatabase = resetDatabase
	}
	if *rateLimitRPSFlag >= 0 {
		overrides.RateLimitRPS = rateLimitRPSFlag
	}
	if *rateLimitBurstFlag >= 0 {
		overrides.RateLimitBurst = rateLimitBurstFlag
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	env, err := resolveEnvironment(cfg)
	if err != nil {
		return err
	}

	switch command {
	case showCmd.FullCommand():
		f, err := environment.ParseFormat(*format)
		if err != nil {
			return err
		}
		return env.Render(stdout, f)
	case validateCmd.FullCommand():
		if err := env.Validate(); err != nil {
			return err
		}
		_, err := fmt.Fprintf(stdout, "environment %q is valid\n", cfg.Environment)
		return err
	case loginCmd.FullCommand():
		if *state == "" {
			*state = uuid.NewString()
		}
		_, err := fmt.Fprintln(stdout, env.LoginURL(*state))
		return err
	default:
		return serve(cfg, env)
	}
}

// resolveEnvironment picks the configured variant and overlays the optional
// environment file.
func resolveEnvironment(cfg config.Config) (environment.Environment, error) {
	env, err := environment.Variant(cfg.Environment)
	if err != nil {
		return environment.Environment{}, err
	}
	if cfg.EnvironmentFile != "" {
		env, err = environment.LoadFile(cfg.EnvironmentFile, env)
		if err != nil {
			return environment.Environment{}, fmt.Errorf("load environment file: %w", err)
		}
	}
	return env, nil
}

func serve(cfg config.Config, env environment.Environment) error {
	if err := env.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(env.Production)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	app, err := application.New(context.Background(), cfg, env, logger)
	if err != nil {
		logger.Error("failed to initialize application", zap.Error(err))
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("failed to close storage", zap.Error(err))
		}
	}()

	if err := app.Start(); err != nil {
		logger.Error("failed to start server", zap.Error(err))
		return err
	}

	logger.Info("serving drinks API",
		zap.String("environment", cfg.Environment),
		zap.Bool("production", env.Production),
		zap.String("storage", cfg.StorageDriver),
	)
	shutdown(app.Server(), cfg.ShutdownGracePeriod, logger)
	return nil
}

func shutdown(server *http.Server, timeout time.Duration, logger *zap.Logger) {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}
