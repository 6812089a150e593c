package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/agentctl/agentctl/config"
	"github.com/agentctl/agentctl/internal/daemon"
	"github.com/agentctl/agentctl/internal/daemon/pidfile"
	"github.com/agentctl/agentctl/internal/daemon/rpc"
	"github.com/agentctl/agentctl/internal/daemon/scheduler"
	"github.com/agentctl/agentctl/internal/daemon/supervisor"
	pkgdaemon "github.com/agentctl/agentctl/pkg/daemon"
	"github.com/agentctl/agentctl/pkg/paths"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the agentctl daemon",
	}
	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonForegroundCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())
	return cmd
}

// newDaemonStartCmd launches the supervisor in the background, which
// in turn respawns `agentctl daemon foreground` across crashes (spec.md
// §4.7). The supervisor is spawned as `agentctl supervisor run` in a new
// session (Setsid) and then released, so `agentctl daemon start` can
// return.
func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon under the supervisor, detached",
		RunE: func(cmd *cobra.Command, args []string) error {
			self, err := os.Executable()
			if err != nil {
				return fmt.Errorf("failed to resolve executable path: %w", err)
			}

			if err := supervisor.CaptureEnv(paths.DaemonEnvFilePath()); err != nil {
				return fmt.Errorf("failed to capture environment: %w", err)
			}

			sc := exec.Command(self, "supervisor", "run")
			sc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
			sc.Stdout = nil
			sc.Stderr = nil
			if err := sc.Start(); err != nil {
				return fmt.Errorf("failed to start supervisor: %w", err)
			}
			if err := sc.Process.Release(); err != nil {
				return fmt.Errorf("failed to detach supervisor: %w", err)
			}

			fmt.Printf("agentctl daemon starting (supervisor pid %d)\n", sc.Process.Pid)
			return nil
		},
	}
}

// newDaemonForegroundCmd runs the daemon itself in the foreground: it
// is what the supervisor re-execs on every respawn, and what a user can
// also run directly for debugging.
func newDaemonForegroundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "foreground",
		Short: "Run the daemon in the foreground (internal use by the supervisor)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonForeground(cmd)
		},
	}
}

func runDaemonForeground(cmd *cobra.Command) error {
	logger := logrus.New()
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logger.WithField("component", "daemon")

	configPath, _ := cmd.Flags().GetString("config")
	cfg := config.LoadDefaultWithLogger(log)
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			log.WithError(err).Warn("failed to load explicit --config path, falling back to discovered defaults")
		} else {
			loaded.SetDefaults()
			cfg = loaded
		}
	}
	applyLogSettings(logger, cfg)

	socketPath := cfg.ResolvedSocketPath()
	configDir := cfg.ResolvedConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	statePath, lockPath := paths.StateFilePath(), paths.LockFilePath()
	if cfg.ConfigDir != "" {
		statePath = filepath.Join(configDir, "state.json")
		lockPath = filepath.Join(configDir, "daemon.lock")
	}

	lock, err := supervisor.EnsureSingleton(log, paths.PidFilePath(), paths.SupervisorPidFilePath(), socketPath, lockPath)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core := daemon.New(ctx, daemon.Config{
		StatePath:      statePath,
		AdapterTimeout: cfg.AdapterTimeoutDuration(),
		FuseDefaultTTL: cfg.FuseDefaultTTLDuration(),
		FlushDebounce:  cfg.FlushDebounceDuration(),
	}, log)

	srv := rpc.New(core, log.WithField("component", "rpc"))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe(ctx, socketPath)
	}()

	// Per spec.md §4.7 step 6, the pid file must only claim the daemon is
	// up once the socket is genuinely bound and about to accept — never
	// before, and never racing with it.
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("rpc listener failed to start: %w", err)
		}
		return fmt.Errorf("rpc listener exited before becoming ready")
	case <-srv.Ready():
	}

	if err := pidfile.Acquire(paths.PidFilePath()); err != nil {
		cancel()
		return fmt.Errorf("failed to acquire pid file: %w", err)
	}
	defer pidfile.Release(paths.PidFilePath())

	sched := scheduler.New(core, log.WithField("component", "scheduler"), cfg.DeadSweepIntervalDuration(), cfg.PendingSweepIntervalDuration())
	sched.Start()

	watcher, err := config.FindConfigFile(".")
	if err == nil {
		cw, cwErr := pkgdaemon.NewConfigWatcher(watcher, cfg.FlushDebounceDuration(), log.WithField("component", "config-watcher"), func(reloaded *config.Config) {
			applyLogSettings(logger, reloaded)
		})
		if cwErr == nil {
			go cw.Start(ctx)
			defer cw.Close()
		}
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	log.WithField("pid", os.Getpid()).Info("agentctl daemon started")

	select {
	case <-stop:
		log.Info("received stop signal")
	case <-rpc.ShutdownRequests:
		log.Info("received rpc shutdown request")
	case err := <-serveErr:
		if err != nil {
			log.WithError(err).Error("rpc server exited unexpectedly")
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("rpc server did not shut down cleanly")
	}
	sched.Stop(shutdownCtx)
	core.Shutdown()

	return nil
}

func applyLogSettings(logger *logrus.Logger, cfg *config.Config) {
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon and its supervisor",
		RunE: func(cmd *cobra.Command, args []string) error {
			stopped := false
			for _, p := range []string{paths.SupervisorPidFilePath(), paths.PidFilePath()} {
				running, pid, err := pidfile.IsRunning(p)
				if err != nil || !running {
					continue
				}
				proc, err := os.FindProcess(pid)
				if err != nil {
					continue
				}
				if err := proc.Signal(syscall.SIGTERM); err == nil {
					fmt.Printf("sent SIGTERM to pid %d (%s)\n", pid, p)
					stopped = true
				}
			}
			if !stopped {
				fmt.Println("agentctl daemon is not running")
			}
			return nil
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := pkgdaemon.New(paths.SocketPath(), 5*time.Second)
			defer client.Close()

			if !client.IsRunning() {
				fmt.Println("agentctl daemon is not running")
				os.Exit(1)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			var result map[string]interface{}
			if err := client.Call(ctx, "daemon.status", nil, &result); err != nil {
				return err
			}
			fmt.Printf("running (pid %v)\n", result["pid"])
			fmt.Printf("  uptime:   %vs\n", result["uptime"])
			fmt.Printf("  sessions: %v\n", result["sessions"])
			fmt.Printf("  locks:    %v\n", result["locks"])
			fmt.Printf("  fuses:    %v\n", result["fuses"])
			fmt.Printf("  socket:   %s\n", paths.SocketPath())
			return nil
		},
	}
}
