// Package cli provides the command-line interface for qbox.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

var cfgFile string

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "qbox",
		Short: "qbox - query workbench for databases and files",
		Long: `qbox is a local query workbench built on DuckDB.

It attaches Postgres databases, S3 buckets, and uploaded CSV, Excel, and
Parquet files into a single SQL session so they can be queried and joined
together, and serves a JSON API for the desktop frontend.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Built with Go and DuckDB
`)

	// Flag names match configuration keys so they override the config
	// file and environment directly.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./qbox.yaml)")
	rootCmd.PersistentFlags().String("server.host", "", "Host to bind the API server to")
	rootCmd.PersistentFlags().Int("server.port", 0, "Port to serve the API on")
	rootCmd.PersistentFlags().String("storage.data_dir", "", "Directory for application data")
	rootCmd.PersistentFlags().String("storage.engine_db", "", "Engine database file name (empty for in-memory)")
	rootCmd.PersistentFlags().String("log.level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log.format", "", "Log format (text|json)")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newResetCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
