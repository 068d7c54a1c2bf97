package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentic-research/scopetree/internal/logging"
)

var (
	logLevel       string
	logFormat      string
	transcriptPath string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&transcriptPath, "transcript", "", "Record DAP traffic to a SQLite transcript at this path")
}

var rootCmd = &cobra.Command{
	Use:   "scopetree",
	Short: "Scopetree: lazy variable-tree inspection over the Debug Adapter Protocol",
	Long: `Scopetree attaches to a running DAP adapter and projects the paused
debuggee's variable scopes as a lazily-fetched tree with breadcrumb
drill-down. Subtrees are fetched on demand and cached per pause; node
identity is path-derived so expansion intent survives across pauses.`,
}

func newLogger() (*slog.Logger, error) {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	format := logging.FormatText
	if logFormat == "json" {
		format = logging.FormatJSON
	}
	return logging.New(os.Stderr, level, format), nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
