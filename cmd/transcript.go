package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agentic-research/scopetree/internal/transcript"
)

func init() {
	rootCmd.AddCommand(transcriptCmd)
}

var transcriptCmd = &cobra.Command{
	Use:   "transcript <db>",
	Short: "Summarize a recorded DAP traffic transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := transcript.Open(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		summary, err := store.Summarize()
		if err != nil {
			return err
		}
		cmd.Print(summary.Render())
		return nil
	},
}
