// Package main implements the pulsevault server binary: a local activity
// tracking backend with a single-writer SQLite datastore and a JSON API.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pulsevault/pulsevault/internal/api"
	"github.com/pulsevault/pulsevault/internal/auth"
	"github.com/pulsevault/pulsevault/internal/config"
	"github.com/pulsevault/pulsevault/internal/datastore"
	"github.com/pulsevault/pulsevault/internal/server"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		httpAddr    string
		testing     bool
		verbose     bool
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for the database and related files")
	flag.StringVar(&httpAddr, "addr", "", "HTTP listen address")
	flag.BoolVar(&testing, "testing", false, "Run against the testing database and port")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Pulsevault - local activity tracking backend\n\n")
		fmt.Fprintf(os.Stderr, "Usage: pulsevault [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  pulsevault --data-dir ~/.local/share/pulsevault\n")
		fmt.Fprintf(os.Stderr, "  pulsevault --config /etc/pulsevault/config.yaml\n")
		fmt.Fprintf(os.Stderr, "  pulsevault --testing\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  PULSEVAULT_DATA_DIR         Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  PULSEVAULT_HTTP_ADDR        HTTP listen address\n")
		fmt.Fprintf(os.Stderr, "  PULSEVAULT_JWT_SECRET       Token signing secret\n")
		fmt.Fprintf(os.Stderr, "  PULSEVAULT_COMMIT_INTERVAL  Datastore commit interval\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("pulsevault version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// A .env file is optional, it just feeds LoadFromEnv.
	_ = godotenv.Load()

	cfg, err := loadConfig(configFile, dataDir, httpAddr, testing)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	printBanner(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("failed to create data directory")
	}

	ds, err := datastore.New(cfg.Datastore.Path, datastore.Options{
		Migrate:              true,
		LegacyImport:         cfg.Datastore.LegacyImport,
		LegacyPath:           cfg.Datastore.LegacyPath,
		CommitInterval:       cfg.Datastore.CommitInterval,
		MaxUncommittedEvents: cfg.Datastore.MaxUncommittedEvents,
	})
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Datastore.Path).Msg("failed to open datastore")
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		// Testing mode only, Validate rejects this otherwise.
		secret = "pulsevault-testing"
	}
	jwtSvc := auth.NewJWT(secret)

	hostname, _ := os.Hostname()
	router := api.NewRouter(ds, jwtSvc, cfg.HTTP.CORSOrigins, api.ServerInfo{
		Hostname: hostname,
		Version:  version,
		Testing:  cfg.Testing,
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	sm := server.NewShutdownManager(0)
	sm.RegisterHTTPServer(srv)
	sm.RegisterCloser(ds)

	go func() {
		if err := server.Serve(srv); err != nil {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	if err := sm.ListenForSignals(context.Background()); err != nil {
		log.Error().Err(err).Msg("shutdown finished with errors")
		os.Exit(1)
	}
}

// loadConfig loads configuration from file, environment, and command line
// flags, in increasing priority.
func loadConfig(configFile, dataDir, httpAddr string, testing bool) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}
	if testing {
		cfg.Testing = true
	}

	return cfg, nil
}

// printBanner logs the startup banner with a configuration summary.
func printBanner(cfg *config.Config) {
	log.Info().Msgf("pulsevault %s (commit %s)", version, commit)
	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("db", cfg.Datastore.Path).
		Str("addr", cfg.HTTP.Addr).
		Bool("testing", cfg.Testing).
		Msg("configuration loaded")
}
