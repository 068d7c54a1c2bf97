package cmd

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/agentic-research/scopetree/internal/mcpserve"
)

var (
	serveLaunchConfig string
	serveConfigName   string
)

func init() {
	serveCmd.Flags().StringVar(&serveLaunchConfig, "launch-config", "", "Path to a launch.json to read attach settings from")
	serveCmd.Flags().StringVar(&serveConfigName, "config", "", "Configuration name inside launch.json")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve [host:port]",
	Short: "Attach to a DAP adapter and expose the variable tree as MCP tools on stdio",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger()
		if err != nil {
			return err
		}
		addrArg := ""
		if len(args) == 1 {
			addrArg = args[0]
		}
		cfg, err := resolveConfig(serveLaunchConfig, serveConfigName, addrArg)
		if err != nil {
			return err
		}

		conn, err := connect(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer conn.close()

		log.Info("serving variable tree over MCP stdio", "adapter", cfg.Addr)
		return server.ServeStdio(mcpserve.New(conn.session, log))
	},
}
