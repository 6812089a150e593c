package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/agentctl/agentctl/cli"
	"github.com/agentctl/agentctl/internal/daemon/model"
	"github.com/agentctl/agentctl/pkg/daemon"
	"github.com/agentctl/agentctl/pkg/paths"
	"github.com/spf13/cobra"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage tracked coding-agent sessions",
	}
	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionStatusCmd())
	cmd.AddCommand(newSessionPeekCmd())
	cmd.AddCommand(newSessionLaunchCmd())
	cmd.AddCommand(newSessionStopCmd())
	cmd.AddCommand(newSessionResumeCmd())
	cmd.AddCommand(newSessionPruneCmd())
	return cmd
}

func rpcClient(cmd *cobra.Command) *daemon.Client {
	return daemon.New(paths.SocketPath(), 10*time.Second)
}

func callOrExit(cmd *cobra.Command, method string, params interface{}, result interface{}) error {
	client := rpcClient(cmd)
	defer client.Close()
	if !client.IsRunning() {
		return fmt.Errorf("agentctl daemon is not running; run 'agentctl daemon start'")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	verbose, _ := cmd.Flags().GetBool("verbose")
	if err := client.Call(ctx, method, params, result); err != nil {
		return cli.NewErrorHandler(verbose).Handle(err)
	}
	return nil
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}

func newSessionListCmd() *cobra.Command {
	var status, adapter, group string
	var all bool
	c := &cobra.Command{
		Use:   "list",
		Short: "List tracked sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Sessions []model.EnrichedSession `json:"sessions"`
				Warnings []string                `json:"warnings"`
			}
			if err := callOrExit(cmd, "session.list", map[string]interface{}{
				"status": status, "all": all, "adapter": adapter, "group": group,
			}, &result); err != nil {
				return err
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				printJSON(result.Sessions)
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tADAPTER\tSTATUS\tCWD\tGROUP")
			for _, s := range result.Sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Adapter, s.Status, s.Cwd, s.Group)
			}
			w.Flush()
			for _, warn := range result.Warnings {
				fmt.Fprintf(os.Stderr, "warning: %s\n", warn)
			}
			return nil
		},
	}
	c.Flags().StringVar(&status, "status", "", "filter by status")
	c.Flags().BoolVar(&all, "all", false, "include non-running sessions")
	c.Flags().StringVar(&adapter, "adapter", "", "filter by adapter")
	c.Flags().StringVar(&group, "group", "", "filter by group")
	return c
}

func newSessionStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show a single session's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result model.EnrichedSession
			if err := callOrExit(cmd, "session.status", map[string]string{"id": args[0]}, &result); err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
}

func newSessionPeekCmd() *cobra.Command {
	var lines int
	c := &cobra.Command{
		Use:   "peek <id>",
		Short: "Show recent output from a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var result string
			if err := callOrExit(cmd, "session.peek", map[string]interface{}{"id": args[0], "lines": lines}, &result); err != nil {
				return err
			}
			fmt.Println(result)
			return nil
		},
	}
	c.Flags().IntVar(&lines, "lines", 50, "number of trailing lines to show")
	return c
}

func newSessionLaunchCmd() *cobra.Command {
	var adapter, cwd, spec, model_, group string
	var force bool
	c := &cobra.Command{
		Use:   "launch <prompt>",
		Short: "Launch a new coding-agent session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cwd == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				cwd = wd
			}
			var result model.LaunchRecord
			err := callOrExit(cmd, "session.launch", map[string]interface{}{
				"adapter": adapter, "prompt": args[0], "cwd": cwd, "spec": spec,
				"model": model_, "group": group, "force": force,
			}, &result)
			if err != nil {
				return err
			}
			printJSON(result)
			return nil
		},
	}
	c.Flags().StringVar(&adapter, "adapter", "", "adapter to launch (default claude-code)")
	c.Flags().StringVar(&cwd, "cwd", "", "working directory (default: current directory)")
	c.Flags().StringVar(&spec, "spec", "", "spec file path to associate with this session")
	c.Flags().StringVar(&model_, "model", "", "model override")
	c.Flags().StringVar(&group, "group", "", "group label")
	c.Flags().BoolVar(&force, "force", false, "launch even if the directory is locked")
	return c
}

func newSessionStopCmd() *cobra.Command {
	var adapter string
	var force bool
	c := &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return callOrExit(cmd, "session.stop", map[string]interface{}{
				"id": args[0], "adapter": adapter, "force": force,
			}, nil)
		},
	}
	c.Flags().StringVar(&adapter, "adapter", "", "adapter override")
	c.Flags().BoolVar(&force, "force", false, "force stop even if the adapter reports an error")
	return c
}

func newSessionResumeCmd() *cobra.Command {
	var adapter string
	c := &cobra.Command{
		Use:   "resume <id> <message>",
		Short: "Resume a stopped session with a follow-up message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return callOrExit(cmd, "session.resume", map[string]interface{}{
				"id": args[0], "message": args[1], "adapter": adapter,
			}, nil)
		},
	}
	c.Flags().StringVar(&adapter, "adapter", "", "adapter override")
	return c
}

func newSessionPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove dead launches from tracking",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Pruned int `json:"pruned"`
			}
			if err := callOrExit(cmd, "session.prune", nil, &result); err != nil {
				return err
			}
			fmt.Printf("pruned %d dead session(s)\n", result.Pruned)
			return nil
		},
	}
}
