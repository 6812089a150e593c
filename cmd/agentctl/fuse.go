package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/agentctl/agentctl/internal/daemon/model"
	"github.com/spf13/cobra"
)

func newFuseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fuse",
		Short: "Manage per-directory expiry timers",
	}
	cmd.AddCommand(newFuseListCmd())
	cmd.AddCommand(newFuseSetCmd())
	cmd.AddCommand(newFuseExtendCmd())
	cmd.AddCommand(newFuseCancelCmd())
	return cmd
}

func newFuseListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List armed fuses",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result []model.FuseTimer
			if err := callOrExit(cmd, "fuse.list", nil, &result); err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				printJSON(result)
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DIRECTORY\tEXPIRES AT\tSESSION\tON EXPIRE\tLABEL")
			for _, f := range result {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", f.Directory, f.ExpiresAt.Format("15:04:05"), f.SessionID, f.OnExpire, f.Label)
			}
			w.Flush()
			return nil
		},
	}
}

func newFuseSetCmd() *cobra.Command {
	var sessionID, onExpire, label string
	var ttlMs int64
	c := &cobra.Command{
		Use:   "set <directory>",
		Short: "Arm a fuse on a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result model.FuseTimer
			if err := callOrExit(cmd, "fuse.set", map[string]interface{}{
				"directory": args[0], "sessionId": sessionID, "ttlMs": ttlMs,
				"onExpire": onExpire, "label": label,
			}, &result); err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
	c.Flags().StringVar(&sessionID, "session", "", "session id to associate")
	c.Flags().Int64Var(&ttlMs, "ttl-ms", 0, "time to live in milliseconds (default: configured default)")
	c.Flags().StringVar(&onExpire, "on-expire", "", "script path or webhook URL to run on expiry")
	c.Flags().StringVar(&label, "label", "", "human-readable label")
	return c
}

func newFuseExtendCmd() *cobra.Command {
	var ttlMs int64
	c := &cobra.Command{
		Use:   "extend <directory>",
		Short: "Extend an armed fuse's expiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result model.FuseTimer
			if err := callOrExit(cmd, "fuse.extend", map[string]interface{}{
				"directory": args[0], "ttlMs": ttlMs,
			}, &result); err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
	c.Flags().Int64Var(&ttlMs, "ttl-ms", 0, "new time to live in milliseconds (default: configured default)")
	return c
}

func newFuseCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <directory>",
		Short: "Cancel an armed fuse",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return callOrExit(cmd, "fuse.cancel", map[string]string{"directory": args[0]}, nil)
		},
	}
}
