package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/qbox-labs/qbox/internal/config"
	"github.com/qbox-labs/qbox/internal/store"
)

// newResetCommand creates the reset command.
func newResetCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete all connections, workspaces, and uploaded files",
		Long: `Delete all application data: connections, query workspaces, chat and
run history, uploaded files, and the engine database.

Settings are kept. Run this while the server is stopped.`,
		Example: `  # Prompt before wiping
  qbox reset

  # Skip the prompt
  qbox reset --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReset(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip the confirmation prompt")

	return cmd
}

func runReset(cmd *cobra.Command, force bool) error {
	cfg, err := config.Load(".", cfgFile, cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)

	if !force {
		fmt.Fprintf(cmd.OutOrStdout(), "This deletes all data in %s except settings. Type 'yes' to continue: ", cfg.Storage.DataDir)
		reader := bufio.NewReader(cmd.InOrStdin())
		line, _ := reader.ReadString('\n')
		if strings.TrimSpace(line) != "yes" {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	st := store.New(logger)
	storePath := filepath.Join(cfg.Storage.DataDir, storeFileName)
	if err := st.Open(storePath); err != nil {
		return fmt.Errorf("failed to open application database: %w", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.Reset(); err != nil {
		return fmt.Errorf("failed to reset application database: %w", err)
	}

	uploads := filepath.Join(cfg.Storage.DataDir, uploadsDirName)
	if err := os.RemoveAll(uploads); err != nil {
		return fmt.Errorf("failed to remove uploads: %w", err)
	}

	if cfg.Storage.EngineDB != "" {
		enginePath := filepath.Join(cfg.Storage.DataDir, cfg.Storage.EngineDB)
		if err := os.Remove(enginePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove engine database: %w", err)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Reset complete.")
	return nil
}
