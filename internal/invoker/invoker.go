package invoker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Defaults applied when corresponding Options fields are unset.
const (
	defaultKillGrace      = 2 * time.Second
	defaultMaxOutputBytes = 1 << 20
)

// Cmd describes one program invocation.
type Cmd struct {
	Name string            // label for logs and metrics; defaults to the base name of Path
	Path string            // program to execute
	Args []string          // arguments, in order
	Env  map[string]string // additional env vars on top of the inherited environment
	Dir  string            // working directory
}

func (c Cmd) label() string {
	if c.Name != "" {
		return c.Name
	}
	return filepath.Base(c.Path)
}

// Outcome is what one completed invocation produced.
type Outcome struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
}

// Options tunes every invocation made by an Invoker.
type Options struct {
	// Timeout bounds a single run; zero disables it.
	Timeout time.Duration
	// KillGrace is how long a terminated child may take to exit before it is killed.
	KillGrace time.Duration
	// MaxOutputBytes caps each of the stdout and stderr buffers.
	MaxOutputBytes int
}

// Invoker launches external programs. It is safe for concurrent use.
type Invoker struct {
	opts      Options
	publisher EventPublisher
}

// New constructs an Invoker, applying defaults for unset options.
func New(opts Options) *Invoker {
	if opts.Timeout < 0 {
		opts.Timeout = 0
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = defaultKillGrace
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = defaultMaxOutputBytes
	}
	return &Invoker{opts: opts, publisher: noopPublisher{}}
}

// SetPublisher installs an EventPublisher for lifecycle events.
func (iv *Invoker) SetPublisher(p EventPublisher) {
	if p == nil {
		iv.publisher = noopPublisher{}
		return
	}
	iv.publisher = p
}

// Options returns the effective options.
func (iv *Invoker) Options() Options { return iv.opts }

// Invoke runs program with args. See Run.
func (iv *Invoker) Invoke(ctx context.Context, program string, args ...string) (Outcome, error) {
	return iv.Run(ctx, Cmd{Path: program, Args: args})
}

// Run starts c, waits for it to exit and returns its exit code together with
// everything it wrote to stdout and stderr.
func (iv *Invoker) Run(ctx context.Context, c Cmd) (Outcome, error) {
	name := c.label()
	if c.Path == "" {
		runsTotal.WithLabelValues(name, resultLaunchError).Inc()
		return Outcome{ExitCode: -1}, &LaunchError{Program: c.Path, Err: errors.New("empty program path")}
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if iv.opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, iv.opts.Timeout)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range c.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}
	stdout := newCappedBuffer(iv.opts.MaxOutputBytes)
	stderr := newCappedBuffer(iv.opts.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	prepareCommand(cmd)
	cmd.WaitDelay = iv.opts.KillGrace

	start := time.Now()
	if err := cmd.Start(); err != nil {
		runsTotal.WithLabelValues(name, resultLaunchError).Inc()
		iv.publisher.Publish(Event{Name: "spawn_error", Program: name, Fields: map[string]any{"path": c.Path, "error": err.Error()}})
		return Outcome{ExitCode: -1}, &LaunchError{Program: c.Path, Err: err}
	}
	pid := cmd.Process.Pid
	iv.publisher.Publish(Event{Name: "spawn_start", Program: name, Fields: map[string]any{"pid": pid, "args": c.Args}})

	werr := cmd.Wait()
	if runCtx.Err() != nil {
		killGroup(cmd)
	}
	out := Outcome{
		ExitCode:  -1,
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.Truncated() || stderr.Truncated(),
		Duration:  time.Since(start),
	}
	if cmd.ProcessState != nil {
		out.ExitCode = cmd.ProcessState.ExitCode()
	}
	runDuration.WithLabelValues(name).Observe(out.Duration.Seconds())

	if werr != nil {
		// The caller going away wins over our own deadline.
		if err := ctx.Err(); err != nil {
			runsTotal.WithLabelValues(name, resultCanceled).Inc()
			iv.publisher.Publish(Event{Name: "spawn_exit", Program: name, Fields: map[string]any{"pid": pid, "canceled": true}})
			return out, err
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			out.TimedOut = true
			runsTotal.WithLabelValues(name, resultTimeout).Inc()
			iv.publisher.Publish(Event{Name: "spawn_timeout", Program: name, Fields: map[string]any{"pid": pid, "after": iv.opts.Timeout.String()}})
			return out, &timeoutError{program: name, after: iv.opts.Timeout}
		}
		var ee *exec.ExitError
		if !errors.As(werr, &ee) && !errors.Is(werr, exec.ErrWaitDelay) {
			runsTotal.WithLabelValues(name, resultLaunchError).Inc()
			return out, fmt.Errorf("wait %s: %w", name, werr)
		}
	}

	result := resultOK
	if out.ExitCode != 0 {
		result = resultNonZero
	}
	runsTotal.WithLabelValues(name, result).Inc()
	iv.publisher.Publish(Event{Name: "spawn_exit", Program: name, Fields: map[string]any{
		"pid":         pid,
		"exit_code":   out.ExitCode,
		"duration_ms": out.Duration.Milliseconds(),
		"truncated":   out.Truncated,
	}})
	return out, nil
}
