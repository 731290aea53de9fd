package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/fisgon/internal/config"
	"github.com/nao1215/fisgon/internal/database"
	"github.com/nao1215/fisgon/internal/extract"
	"github.com/nao1215/fisgon/internal/log"
	"github.com/nao1215/fisgon/internal/model"
	"github.com/nao1215/fisgon/internal/pipeline"
	"github.com/nao1215/fisgon/internal/storage"
)

// env bundles what the session commands share: the configuration, the
// logger and the opened stores.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *database.Store
	blobs  *storage.Store
}

// buildConfig creates a Config from the global flags and the config file.
// If the user explicitly specified a config file path, a missing file is
// an error; otherwise an empty site configuration is used.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error
	cfg.Verbose, err = cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}

	cfg.JSONLogs, err = cmd.Flags().GetBool("json-logs")
	if err != nil {
		return nil, err
	}

	dataDir, err := cmd.Flags().GetString("data-dir")
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	if err := cfg.Load(); err != nil {
		return nil, fmt.Errorf("failed to load configuration file: %w", err)
	}
	return cfg, nil
}

// setupLogger creates the sanitizing logger selected by the global flags.
func setupLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	if cfg.JSONLogs {
		return log.NewSecureJSONLogger(w, cfg.Verbose)
	}
	return log.NewSecureLogger(w, cfg.Verbose)
}

// openEnvWith opens the database and download store of cfg.
func openEnvWith(cmd *cobra.Command, cfg *config.Config) (*env, error) {
	logger := setupLogger(cmd.ErrOrStderr(), cfg)

	store, err := database.Open(cfg.DataDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("database opened", "path", store.Path())

	return &env{
		cfg:    cfg,
		logger: logger,
		store:  store,
		blobs:  storage.NewOS(cfg.DownloadDir()),
	}, nil
}

// openEnv is openEnvWith for commands that only need the global flags.
func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return nil, err
	}
	return openEnvWith(cmd, cfg)
}

func (e *env) Close() error {
	return e.store.Close()
}

// session resolves a full session ID or a unique prefix of one.
func (e *env) session(ctx context.Context, idOrPrefix string) (*model.CrawlSession, error) {
	return e.store.FindSession(ctx, idOrPrefix)
}

// newEngine returns the extraction engine with every library capability.
func (e *env) newEngine() *extract.Engine {
	return extract.NewEngine(extract.DefaultCapabilities(),
		extract.WithLogger(e.logger),
		extract.WithTimeout(e.cfg.ExtractTimeout),
	)
}

// orchestrator returns an orchestrator over the env stores. Commands that
// only change a session's state need no further options.
func (e *env) orchestrator(opts ...pipeline.OrchestratorOption) *pipeline.Orchestrator {
	opts = append([]pipeline.OrchestratorOption{pipeline.WithOrchestratorLogger(e.logger)}, opts...)
	return pipeline.NewOrchestrator(e.store, e.blobs, e.newEngine(), opts...)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// openOutput returns the destination of a report: path, created with
// owner-only permissions, or stdout when path is empty. Reports may
// contain personal data from document metadata.
func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}
