package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout is the wall-clock budget for one compiler invocation.
const DefaultTimeout = 20 * time.Second

// EnvExecutable overrides the compiler path when set.
const EnvExecutable = "GRUMP_INTENT_PATH"

// probePaths are checked in order when no override is present: the packaged
// install location first, then the development build.
var probePaths = []string{
	"/usr/local/libexec/grump/grump-intent",
	"intent-compiler/target/release/grump-intent",
}

// ResolveExecutable locates the grump-intent binary.
func ResolveExecutable() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvExecutable)); p != "" {
		return p, nil
	}
	for _, p := range probePaths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("grump-intent executable not found (set %s)", EnvExecutable)
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Path to the compiler executable. Required.
	Path string
	// Timeout per invocation; DefaultTimeout when zero.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Runner supervises one grump-intent subprocess per Parse call: hard timeout,
// guaranteed termination on every exit path, and a settled-exactly-once
// outcome even when process exit and the deadline race.
type Runner struct {
	path    string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig) *Runner {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		path:    cfg.Path,
		timeout: timeout,
		logger:  logger,
	}
}

// Parse invokes the compiler with the input text and optional constraints and
// decodes its stdout.
//
// Exactly one subprocess is spawned per call and none is left running past
// its deadline: timeout, spawn failure, non-zero exit, and malformed output
// all converge on the same wait-and-settle path. The four failure modes are
// reported as distinct types (TimeoutError, SpawnError, ExitError,
// MalformedOutputError).
func (r *Runner) Parse(ctx context.Context, input string, constraints map[string]any) (*Result, error) {
	input = strings.TrimSpace(input)

	args := []string{"--input", input}
	if len(constraints) > 0 {
		raw, err := json.Marshal(constraints)
		if err != nil {
			return nil, fmt.Errorf("marshal constraints: %w", err)
		}
		args = append(args, "--constraints", string(raw))
	}

	cmd := exec.Command(r.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		// Spawn failure settles immediately; the timer below is never armed.
		return nil, &SpawnError{Path: r.path, Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	var waitErr error
	select {
	case waitErr = <-done:
		// Exited within budget.
	case <-timer.C:
		// Kill is attempted exactly once; it reports an error if the process
		// already exited, which we ignore, and the Wait below reaps it so no
		// process is orphaned.
		_ = cmd.Process.Kill()
		<-done
		r.logger.Warn("intent compiler killed on timeout",
			slog.Duration("budget", r.timeout),
		)
		return nil, &TimeoutError{Budget: r.timeout}
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return nil, ctx.Err()
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			r.logger.Warn("intent compiler failed",
				slog.Int("exit_code", exitErr.ExitCode()),
				slog.Duration("duration", time.Since(start)),
			)
			return nil, &ExitError{
				Code:   exitErr.ExitCode(),
				Stderr: strings.TrimSpace(stderr.String()),
			}
		}
		return nil, &SpawnError{Path: r.path, Err: waitErr}
	}

	res, err := decodeResult(stdout.Bytes())
	if err != nil {
		return nil, err
	}

	r.logger.Debug("intent parsed",
		slog.Int("actors", len(res.Actors)),
		slog.Int("features", len(res.Features)),
		slog.Duration("duration", time.Since(start)),
	)
	return res, nil
}
