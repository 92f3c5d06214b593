package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	segmentscmd "github.com/rzbill/sift/internal/cmd/segments"
	serverrun "github.com/rzbill/sift/internal/cmd/server"
	"github.com/rzbill/sift/internal/cmd/simulate"
	cfgpkg "github.com/rzbill/sift/internal/config"
	"github.com/rzbill/sift/internal/segment"
	pebblestore "github.com/rzbill/sift/internal/storage/pebble"
	logpkg "github.com/rzbill/sift/pkg/log"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "sift",
		Short:         "sift delete-log CLI",
		Long:          "sift exercises a segment indexer whose deletes flow through a shared, lazily materialized delete log.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", os.Getenv("SIFT_CONFIG"), "Config file (JSON or YAML)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text|json")

	simCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run concurrent producers issuing adds and query deletes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			producers, _ := cmd.Flags().GetInt("producers")
			docs, _ := cmd.Flags().GetInt("docs")
			deleteEvery, _ := cmd.Flags().GetInt("delete-every")
			commitInterval, _ := cmd.Flags().GetDuration("commit-interval")
			opsRate, _ := cmd.Flags().GetFloat64("rate")
			if addr, _ := cmd.Flags().GetString("metrics"); addr != "" {
				cfg.Metrics.Addr = addr
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			rep, err := simulate.Run(ctx, simulate.Options{
				Config:          cfg,
				Logger:          logger,
				Producers:       producers,
				DocsPerProducer: docs,
				DeleteEvery:     deleteEvery,
				CommitInterval:  commitInterval,
				Rate:            opsRate,
			})
			if err != nil {
				return fmt.Errorf("simulate: %w", err)
			}
			rep.Print(cmd.OutOrStdout())
			return nil
		},
	}
	simCmd.Flags().Int("producers", 4, "Concurrent producers")
	simCmd.Flags().Int("docs", 1000, "Documents added per producer")
	simCmd.Flags().Int("delete-every", 100, "Issue a delete after this many additions per producer")
	simCmd.Flags().Duration("commit-interval", 0, "Commit period (default 50ms)")
	simCmd.Flags().Float64("rate", 0, "Per-producer operations per second (0 = unlimited)")
	simCmd.Flags().String("metrics", "", "Serve Prometheus metrics on this address while running")
	rootCmd.AddCommand(simCmd)

	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Serve the HTTP API (documents, deletes, commit, segments, metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			httpAddr, _ := cmd.Flags().GetString("http")
			if err := serverrun.Run(context.Background(), serverrun.Options{
				HTTPAddr: httpAddr,
				Config:   cfg,
				Logger:   logger,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serveCmd.Flags().String("http", ":8080", "HTTP listen address")
	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(segmentscmd.NewCommand(func(cmd *cobra.Command) (*segment.Store, func() error, error) {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return nil, nil, err
		}
		fsync, err := pebblestore.ParseFsyncMode(cfg.Fsync)
		if err != nil {
			return nil, nil, err
		}
		db, err := pebblestore.Open(pebblestore.Options{DataDir: cfg.DataDir, Fsync: fsync})
		if err != nil {
			return nil, nil, err
		}
		return segment.NewStore(db), db.Close, nil
	}))

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the sift version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "sift", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig resolves defaults, the config file, SIFT_* env and flags (in
// that order) and builds the process logger, routing stdlib logs through it.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, logpkg.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, nil, err
	}
	cfgpkg.FromEnv(&cfg)
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if err := cfg.Validate(); err != nil {
		return cfgpkg.Config{}, nil, err
	}

	logger, err := logpkg.ApplyConfig(&cfg.Log)
	if err != nil {
		return cfgpkg.Config{}, nil, err
	}
	// Pebble logs through the standard library logger.
	logpkg.RedirectStdLog(logger)
	return cfg, logger, nil
}
