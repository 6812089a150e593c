// Command agentctl is the CLI and daemon entrypoint for agentctl, a
// local supervision daemon for long-running coding-agent child
// processes (Claude Code, Codex, and similar tools).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "agentctl",
		Short: "Supervise long-running coding-agent sessions",
		Long:  "agentctl tracks, locks, and fuses coding-agent child processes through a local daemon.",
	}

	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().Bool("json", false, "output in JSON format")
	root.PersistentFlags().StringP("config", "c", "", "path to agentctl.yaml config file")

	root.AddCommand(newDaemonCmd())
	root.AddCommand(newSupervisorCmd())
	root.AddCommand(newSessionCmd())
	root.AddCommand(newLockCmd())
	root.AddCommand(newFuseCmd())

	return root
}
