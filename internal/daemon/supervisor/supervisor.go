package supervisor

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// Options configures Supervisor.Run.
type Options struct {
	// Command builds the foreground-daemon process to spawn (and
	// re-spawn). Supervisor calls this fresh for every attempt since an
	// *exec.Cmd cannot be reused after it exits.
	Command func() *exec.Cmd

	BackoffBase time.Duration
	BackoffCap  time.Duration
	ResetAfter  time.Duration

	PidPath string
}

// Run spawns Command in foreground mode and waits for it to exit,
// re-spawning with exponential backoff on crash, per spec.md §4.7's
// "Supervisor" paragraph. It writes its own pid to opts.PidPath and
// blocks until ctx is cancelled (SIGTERM/SIGINT to the supervisor
// itself), at which point it stops respawning, signals the current
// child to terminate, and returns.
func Run(ctx context.Context, log *logrus.Entry, opts Options) error {
	if err := os.WriteFile(opts.PidPath, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return err
	}
	defer os.Remove(opts.PidPath)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	backoff := opts.BackoffBase

	for {
		if ctx.Err() != nil {
			return nil
		}

		cmd := opts.Command()
		log.WithField("args", cmd.Args).Info("supervisor spawning daemon")
		if err := cmd.Start(); err != nil {
			log.WithError(err).Error("failed to spawn daemon")
		} else {
			startedAt := time.Now()
			done := make(chan error, 1)
			go func() { done <- cmd.Wait() }()

			select {
			case <-ctx.Done():
				_ = cmd.Process.Signal(syscall.SIGTERM)
				select {
				case <-done:
				case <-time.After(5 * time.Second):
					_ = cmd.Process.Kill()
					<-done
				}
				return nil
			case err := <-done:
				uptime := time.Since(startedAt)
				if err != nil {
					log.WithError(err).WithField("uptime", uptime).Warn("daemon exited")
				} else {
					log.WithField("uptime", uptime).Info("daemon exited cleanly")
				}
				if uptime >= opts.ResetAfter {
					backoff = opts.BackoffBase
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > opts.BackoffCap {
			backoff = opts.BackoffCap
		}
	}
}
