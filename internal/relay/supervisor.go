// Package relay bridges browser WebSocket clients to a locally spawned quote
// streaming process.
package relay

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
)

// ErrRestartBudgetExhausted is returned by Supervisor.Run when the process
// exited more times than MaxRestarts allows
var ErrRestartBudgetExhausted = errors.New("relay process restart budget exhausted")

// SupervisorOptions configures a Supervisor
type SupervisorOptions struct {
	Command string
	Args    []string

	// MaxRestarts is how many times an exited process is restarted; negative means unlimited
	MaxRestarts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// StableAfter resets the restart count once a process has stayed up this long
	StableAfter time.Duration
}

func (o SupervisorOptions) withDefaults() SupervisorOptions {
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.StableAfter <= 0 {
		o.StableAfter = time.Minute
	}
	return o
}

// Supervisor keeps the external quote process running
type Supervisor struct {
	opts SupervisorOptions

	mu       sync.Mutex
	starts   int
	restarts int
}

// NewSupervisor creates a Supervisor for the given command
func NewSupervisor(opts SupervisorOptions) *Supervisor {
	return &Supervisor{opts: opts.withDefaults()}
}

// Run starts the process and restarts it with exponential backoff whenever it
// exits. It returns nil when ctx is cancelled, which also kills the process.
func (s *Supervisor) Run(ctx context.Context) error {
	if s.opts.Command == "" {
		return fmt.Errorf("relay command is required")
	}

	backoff := s.opts.InitialBackoff
	for {
		started := time.Now()
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if time.Since(started) >= s.opts.StableAfter {
			s.mu.Lock()
			s.restarts = 0
			s.mu.Unlock()
			backoff = s.opts.InitialBackoff
		}

		s.mu.Lock()
		exhausted := s.opts.MaxRestarts >= 0 && s.restarts >= s.opts.MaxRestarts
		if !exhausted {
			s.restarts++
		}
		attempt := s.restarts
		s.mu.Unlock()

		if exhausted {
			slog.Error("relay process gave up", "command", s.opts.Command, "error", err)
			return fmt.Errorf("%w: last exit: %v", ErrRestartBudgetExhausted, err)
		}

		slog.Warn("relay process exited, restarting",
			"command", s.opts.Command, "error", err, "attempt", attempt, "backoff", backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.opts.MaxBackoff)
	}
}

// Starts returns how many times the process has been started
func (s *Supervisor) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

// runOnce runs the process to completion, forwarding its output to the logger
func (s *Supervisor) runOnce(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.opts.Command, s.opts.Args...)
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.opts.Command, err)
	}

	s.mu.Lock()
	s.starts++
	s.mu.Unlock()
	slog.Info("relay process started", "command", s.opts.Command, "args", s.opts.Args, "pid", cmd.Process.Pid)

	var wg conc.WaitGroup
	wg.Go(func() { forwardLines(stdout, slog.LevelInfo, "stdout") })
	wg.Go(func() { forwardLines(stderr, slog.LevelWarn, "stderr") })
	// pipes must be drained before Wait closes them
	wg.Wait()

	err = cmd.Wait()
	if err == nil {
		slog.Info("relay process finished", "command", s.opts.Command)
		return errors.New("process exited")
	}
	return err
}

func forwardLines(r io.Reader, level slog.Level, stream string) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		slog.Log(context.Background(), level, "relay process output", "stream", stream, "line", sc.Text())
	}
}
