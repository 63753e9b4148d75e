package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/qbox-labs/qbox/internal/api"
	"github.com/qbox-labs/qbox/internal/config"
	"github.com/qbox-labs/qbox/internal/engine"
	"github.com/qbox-labs/qbox/internal/files"
	"github.com/qbox-labs/qbox/internal/metadata"
	"github.com/qbox-labs/qbox/internal/s3files"
	"github.com/qbox-labs/qbox/internal/source"
	"github.com/qbox-labs/qbox/internal/store"
)

// storeFileName is the SQLite database inside the data directory.
const storeFileName = "qbox.db"

// uploadsDirName holds uploaded files inside the data directory.
const uploadsDirName = "uploads"

// newServeCommand creates the serve command.
func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the qbox API server",
		Long: `Start the HTTP API server.

The server opens the application database, restores saved connections and
file views on demand, and serves the JSON API until interrupted.`,
		Example: `  # Start with defaults (127.0.0.1:8440, data in ./.qbox)
  qbox serve

  # Custom port and data directory
  qbox serve --server.port 9000 --storage.data_dir /var/lib/qbox`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(".", cfgFile, cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	st := store.New(logger)
	if err := st.Open(filepath.Join(cfg.Storage.DataDir, storeFileName)); err != nil {
		return fmt.Errorf("failed to open application database: %w", err)
	}
	defer func() { _ = st.Close() }()

	enginePath := ""
	if cfg.Storage.EngineDB != "" {
		enginePath = filepath.Join(cfg.Storage.DataDir, cfg.Storage.EngineDB)
	}
	session := engine.NewSession(engine.Config{Path: enginePath, Logger: logger})
	defer func() { _ = session.Close() }()

	manager := source.NewManager(st, session, logger)
	fileSvc := files.New(st, session, filepath.Join(cfg.Storage.DataDir, uploadsDirName), logger)
	s3Svc := s3files.New(manager, session, logger)
	meta := metadata.New(st, manager, session, logger)

	srv := api.NewServer(api.Config{
		Host:     cfg.Server.Host,
		Port:     cfg.Server.Port,
		Store:    st,
		Session:  session,
		Sources:  manager,
		Files:    fileSvc,
		S3:       s3Svc,
		Metadata: meta,
		AI:       cfg.AI,
		Logger:   logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting server", "host", cfg.Server.Host, "port", cfg.Server.Port, "data_dir", cfg.Storage.DataDir)
	return srv.Serve(ctx)
}
