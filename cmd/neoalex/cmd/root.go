// Package cmd provides the CLI commands for neoalex.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/neo-alexandria/neoalex/pkg/version"
)

var (
	configPath string
	dataDir    string
	debugMode  bool
)

// NewRootCmd creates the root command for the neoalex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "neoalex",
		Short: "Hybrid retrieval service for a personal library",
		Long: `Neo Alexandria serves hybrid search over a catalogued resource library:
three retrieval legs (BM25, dense vectors, learned sparse vectors) fused
with reciprocal rank fusion, plus authority control, taxonomy management
and quality scoring behind a REST API.`,
		Version:      version.Version,
		SilenceUsage: true,
	}

	cmd.SetVersionTemplate("neoalex version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: <data-dir>/config.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default: .neoalex)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
