package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wisefido-health-ingest/common/logger"
)

var (
	ingestConfigPath string
	verbose          bool
)

var rootCmd = &cobra.Command{
	Use:   "ingest-cli",
	Short: "ingest-cli replays and pushes health export uploads",
	Long: "ingest-cli is the operator tool for the health ingest service: replay an export file through the " +
		"pipeline locally, or push it to a running service.",
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&ingestConfigPath, "config", "", "Path to ingest YAML config (default: $INGEST_CONFIG_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline activity to stderr")
}

// newLogger 默认静默，-v 时输出到 stderr
func newLogger() (*zap.Logger, error) {
	if !verbose {
		return zap.NewNop(), nil
	}
	return logger.NewLogger("debug", "console", "ingest-cli")
}
