package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hexmem/internal/config"
	"hexmem/internal/embedding"
	"hexmem/internal/extraction"
	"hexmem/internal/server"
	"hexmem/internal/store"
)

// =============================================================================
// SERVER COMMAND
// =============================================================================

var configPath string

// serveCmd runs the hexmem server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hexmem memory server",
	Long: `Starts the HTTP server with the ingestion pipeline, recall planner,
and background decay sweeps.

Configuration comes from a YAML file (--config) with HEXMEM_* environment
overrides; both are optional. With no embedding provider configured, recall
degrades to lexical matching and /api/v1/search returns 503.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := buildServerLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	st, err := store.Open(cfg.Database.Path, store.Options{
		MaxOpenConns: cfg.Database.MaxOpenConns,
		ConnMaxIdle:  cfg.Database.ConnMaxIdle,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	emb, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to build embedding engine: %w", err)
	}
	if emb == nil {
		log.Warn("no embedding provider configured: semantic recall disabled")
	} else {
		log.Info("embedding engine ready",
			zap.String("engine", emb.Name()),
			zap.Int("dimensions", emb.Dimensions()))
	}

	var extractor extraction.Extractor
	var summarizer extraction.Summarizer
	switch cfg.Extract.Provider {
	case "":
		log.Warn("no extraction provider configured: messages will not produce structured memory")
	case "anthropic":
		ac, err := extraction.NewAnthropicClient(cfg.Extract.AnthropicAPIKey, cfg.Extract.Model, log)
		if err != nil {
			return fmt.Errorf("failed to build extraction client: %w", err)
		}
		extractor = ac
		summarizer = ac
	default:
		return fmt.Errorf("unsupported extraction provider: %s", cfg.Extract.Provider)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, st, emb, extractor, summarizer, log)
	return srv.Run(ctx)
}

// buildServerLogger configures zap per the logging config. The server logger
// is independent of the CLI logger: it honors the config file, not --verbose.
func buildServerLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if !cfg.JSON {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		lvl, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = lvl
	}
	return zc.Build()
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config YAML")
}
