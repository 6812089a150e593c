package main

import (
	"context"
	"os"
	"os/exec"

	"github.com/agentctl/agentctl/config"
	"github.com/agentctl/agentctl/internal/daemon/supervisor"
	"github.com/agentctl/agentctl/pkg/paths"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// newSupervisorCmd exposes the respawn-loop runner as a hidden internal
// subcommand. `agentctl daemon start` execs `agentctl supervisor run`
// detached; the supervisor process itself re-execs `agentctl daemon
// foreground` on every (re)start.
func newSupervisorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "supervisor",
		Short:  "Internal: run the daemon supervisor loop",
		Hidden: true,
	}
	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSupervisor(cmd)
		},
	})
	return cmd
}

func runSupervisor(cmd *cobra.Command) error {
	logger := logrus.New()
	log := logger.WithField("component", "supervisor")

	cfg := config.LoadDefaultWithLogger(log)
	applyLogSettings(logger, cfg)

	self, err := os.Executable()
	if err != nil {
		return err
	}

	opts := supervisor.Options{
		Command: func() *exec.Cmd {
			c := exec.Command(self, "daemon", "foreground")
			c.Stdout = os.Stdout
			c.Stderr = os.Stderr
			c.Env = os.Environ()
			return c
		},
		BackoffBase: cfg.BackoffBaseDuration(),
		BackoffCap:  cfg.BackoffCapDuration(),
		ResetAfter:  cfg.ResetAfterDuration(),
		PidPath:     paths.SupervisorPidFilePath(),
	}

	return supervisor.Run(context.Background(), log, opts)
}
