package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/agentctl/agentctl/internal/daemon/model"
	"github.com/spf13/cobra"
)

func newLockCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Manage directory locks",
	}
	cmd.AddCommand(newLockListCmd())
	cmd.AddCommand(newLockAcquireCmd())
	cmd.AddCommand(newLockReleaseCmd())
	return cmd
}

func newLockListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active locks",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result []model.Lock
			if err := callOrExit(cmd, "lock.list", nil, &result); err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				printJSON(result)
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DIRECTORY\tTYPE\tSESSION\tLOCKED BY\tREASON")
			for _, l := range result {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", l.Directory, l.Type, l.SessionID, l.LockedBy, l.Reason)
			}
			w.Flush()
			return nil
		},
	}
}

func newLockAcquireCmd() *cobra.Command {
	var by, reason string
	c := &cobra.Command{
		Use:   "acquire <directory>",
		Short: "Manually lock a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result model.Lock
			if err := callOrExit(cmd, "lock.acquire", map[string]string{
				"directory": args[0], "by": by, "reason": reason,
			}, &result); err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
	c.Flags().StringVar(&by, "by", "", "identity of the lock holder")
	c.Flags().StringVar(&reason, "reason", "", "reason for the lock")
	return c
}

func newLockReleaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "release <directory>",
		Short: "Release a manual lock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return callOrExit(cmd, "lock.release", map[string]string{"directory": args[0]}, nil)
		},
	}
}
