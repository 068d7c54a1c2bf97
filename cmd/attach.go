package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-research/scopetree/internal/debugsession"
	"github.com/agentic-research/scopetree/internal/vartree"
)

var (
	attachLaunchConfig string
	attachConfigName   string
	attachPath         string
	attachDepth        int
	attachStopTimeout  time.Duration
)

func init() {
	attachCmd.Flags().StringVar(&attachLaunchConfig, "launch-config", "", "Path to a launch.json to read attach settings from")
	attachCmd.Flags().StringVar(&attachConfigName, "config", "", "Configuration name inside launch.json")
	attachCmd.Flags().StringVar(&attachPath, "path", "", "Breadcrumb drill path, segments separated by '/' (e.g. Global/process)")
	attachCmd.Flags().IntVar(&attachDepth, "depth", 1, "Expansion depth for the tree dump")
	attachCmd.Flags().DurationVar(&attachStopTimeout, "stop-timeout", 30*time.Second, "How long to wait for the debuggee to stop")
	rootCmd.AddCommand(attachCmd)
}

var attachCmd = &cobra.Command{
	Use:   "attach [host:port]",
	Short: "Attach to a DAP adapter and dump the paused variable tree",
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
		cfg, err := resolveConfig(attachLaunchConfig, attachConfigName, addrArg)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		conn, err := connect(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer conn.close()

		stopCtx, cancel := context.WithTimeout(ctx, attachStopTimeout)
		defer cancel()
		if err := conn.session.WaitForStop(stopCtx); err != nil {
			return fmt.Errorf("waiting for debuggee stop: %w", err)
		}

		if attachPath != "" {
			return dumpFiltered(ctx, cmd, conn.session, attachPath)
		}
		return dumpTree(ctx, cmd, conn.session, attachDepth)
	},
}

// dumpFiltered drills the breadcrumb down the given path and prints the
// filtered view.
func dumpFiltered(ctx context.Context, cmd *cobra.Command, session *debugsession.Session, path string) error {
	nav := session.Navigator()
	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			continue
		}
		if err := nav.NavigateDown(ctx, segment); err != nil {
			return err
		}
	}

	view, err := nav.FilteredNodes(ctx)
	if err != nil {
		return err
	}
	if view.Truncated {
		cmd.Printf("(path truncated; dropped: %s)\n", strings.Join(view.Dropped, "/"))
	}
	cmd.Println(nav.Text())
	for _, item := range view.Rows {
		printItem(cmd, item, 1)
	}
	return nil
}

// dumpTree expands the tree breadth-first to the requested depth and
// prints the projected rows.
func dumpTree(ctx context.Context, cmd *cobra.Command, session *debugsession.Session, depth int) error {
	frontier, err := session.Items(ctx, "")
	if err != nil {
		return err
	}
	for level := 0; level < depth; level++ {
		var next []vartree.Item
		for _, item := range frontier {
			if !item.HasChildren {
				continue
			}
			session.SetExpanded(item.ID, true)
			children, err := session.Items(ctx, item.ID)
			if err != nil {
				cmd.PrintErrf("expand %s: %v\n", item.ID, err)
				continue
			}
			next = append(next, children...)
		}
		frontier = next
	}

	rows, err := session.Rows(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		indent := strings.Repeat("  ", row.Depth)
		line := indent + row.Name
		if row.Value != "" {
			line += " = " + row.Value
		}
		if row.HasChildren && !row.Expanded {
			line += " …"
		}
		if row.FetchErr != "" {
			line += " [error: " + row.FetchErr + "]"
		}
		cmd.Println(line)
	}
	return nil
}

func printItem(cmd *cobra.Command, item vartree.Item, depth int) {
	indent := strings.Repeat("  ", depth)
	line := indent + item.Label
	if item.Value != "" {
		line += " = " + item.Value
	}
	if item.HasChildren {
		line += " …"
	}
	cmd.Println(line)
}
