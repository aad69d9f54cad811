package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/migadu/kiri/config"
	"github.com/migadu/kiri/credentials"
	"github.com/migadu/kiri/logger"
	"github.com/migadu/kiri/pkg/errors"
	"github.com/migadu/kiri/pkg/metrics"
	"github.com/migadu/kiri/server/httpapi"
	"github.com/migadu/kiri/server/textcmd"
)

// Version information, injected at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "kiri.toml"

func main() {
	errorHandler := errors.NewErrorHandler()
	cfg := config.NewDefaultConfig()

	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.BoolVar(showVersion, "v", false, "Show version information and exit")
	configPath := flag.String("config", defaultConfigPath, "Path to TOML configuration file")
	debug := flag.Bool("debug", false, "Trace every protocol line (passwords are masked)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [users_file] [port]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("kiri version %s (commit: %s, built at: %s)\n", version, commit, date)
		os.Exit(0)
	}

	loadAndValidateConfig(*configPath, flag.Args(), &cfg, errorHandler)
	if *debug {
		cfg.Server.Debug = true
		cfg.Logging.Level = "debug"
	}

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "KIRI: Warning initializing logger: %v\n", err)
	}
	if logFile != nil {
		defer func(f *os.File) {
			if err := f.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "KIRI: Error closing log file %s: %v\n", f.Name(), err)
			}
		}(logFile)
	}

	logger.Infof("KIRI starting (version %s, commit: %s, built: %s)", version, commit, date)
	logger.Infof("Logging format: %s, level: %s", cfg.Logging.Format, cfg.Logging.Level)

	store, err := credentials.Load(cfg.Server.CredentialsFile)
	if err != nil {
		errorHandler.CredentialsError(cfg.Server.CredentialsFile, err)
		os.Exit(errorHandler.WaitForExit())
	}
	metrics.CredentialsUsers.Set(float64(store.Len()))
	logger.Info("Loaded credentials", "file", cfg.Server.CredentialsFile, "users", store.Len(), "digest", store.Digest())
	if store.Len() == 0 {
		logger.Warn("Credentials file has no users; nobody will be able to log in", "file", cfg.Server.CredentialsFile)
	}

	// Both already checked by Validate.
	writeTimeout, _ := cfg.Server.GetWriteTimeout()
	shutdownTimeout, _ := cfg.Server.GetShutdownTimeout()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := textcmd.New(store, textcmd.Options{
		Name:            cfg.Server.Name,
		Greeting:        cfg.Server.Greeting,
		ReadBufferSize:  cfg.Server.ReadBufferSize,
		WriteTimeout:    writeTimeout,
		ShutdownTimeout: shutdownTimeout,
		Debug:           cfg.Server.Debug,

		MaxConnections:      cfg.Server.MaxConnections,
		MaxConnectionsPerIP: cfg.Server.MaxConnectionsPerIP,
	})

	errChan := make(chan error, 2)
	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		srv.Start(ctx, cfg.Server.Addr, errChan)
	}()

	if cfg.Metrics.Start {
		go httpapi.Start(ctx, httpapi.ServerOptions{
			Name:        cfg.Server.Name,
			Addr:        cfg.Metrics.Addr,
			MetricsPath: cfg.Metrics.Path,
			Stats:       srv,
			Credentials: store,
		}, errChan)
	}

	select {
	case <-ctx.Done():
		errorHandler.Shutdown(ctx)
		select {
		case <-serverDone:
			logger.Info("Server stopped")
		case <-time.After(shutdownTimeout + time.Second):
			logger.Warn("Server shutdown timeout reached", "timeout", shutdownTimeout)
		}
	case err := <-errChan:
		errorHandler.FatalError("server operation", err)
		os.Exit(errorHandler.WaitForExit())
	}
}

// loadAndValidateConfig loads the configuration file, applies the
// positional arguments and validates the result. It exits on any error.
func loadAndValidateConfig(configPath string, args []string, cfg *config.Config, errorHandler *errors.ErrorHandler) {
	if err := config.LoadConfigFromFile(configPath, cfg); err != nil {
		if !os.IsNotExist(err) || configPath != defaultConfigPath {
			errorHandler.ConfigError(configPath, err)
			os.Exit(errorHandler.WaitForExit())
		}
		// A missing default file just means defaults.
		logger.Infof("WARNING: default configuration file '%s' not found. Using application defaults.", configPath)
	} else {
		logger.Infof("loaded configuration from %s", configPath)
	}

	if err := cfg.ApplyArgs(args); err != nil {
		errorHandler.ValidationError("arguments", err)
		flag.Usage()
		os.Exit(errorHandler.WaitForExit())
	}

	if err := cfg.Validate(); err != nil {
		errorHandler.ValidationError("configuration", err)
		os.Exit(errorHandler.WaitForExit())
	}
}
