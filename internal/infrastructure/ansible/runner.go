package ansible

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
	"github.com/alexisbeaulieu97/jumpgate/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

const (
	defaultBinary   = "ansible-runner"
	maxEventLine    = 16 * 1024 * 1024
	stderrTailBytes = 4096
	waitDelay       = 2 * time.Second
)

var eventKinds = map[string]ports.EventKind{
	"runner_on_ok":          ports.EventKindOK,
	"runner_on_failed":      ports.EventKindFailed,
	"runner_on_unreachable": ports.EventKindUnreachable,
}

// RunnerConfig configures the ansible-runner invocation.
type RunnerConfig struct {
	Binary string
	// Timeout bounds a single invocation; zero means no limit beyond ctx.
	Timeout time.Duration
	// RotateArtifacts keeps at most this many artifact directories; zero keeps all.
	RotateArtifacts int
	ExtraArgs       []string
}

// Runner implements ports.Backend by running ansible-runner in ad-hoc
// module mode and parsing its JSON event stream.
type Runner struct {
	cfg    RunnerConfig
	logger ports.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger injects a logger.
func WithRunnerLogger(logger ports.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner builds a Runner.
func NewRunner(cfg RunnerConfig, opts ...RunnerOption) *Runner {
	if cfg.Binary == "" {
		cfg.Binary = defaultBinary
	}
	r := &Runner{cfg: cfg, logger: logging.NewNoOpLogger()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "runner")
	return r
}

// Args returns the command line used for inv with the given ident.
func (r *Runner) Args(inv ports.Invocation, ident string) []string {
	args := []string{
		"run", inv.WorkDir,
		"--inventory", inv.Inventory,
		"--hosts", inv.HostPattern,
		"-m", inv.Module,
		"-a", inv.Args,
		"--ident", ident,
		"-j",
	}
	if r.cfg.RotateArtifacts > 0 {
		args = append(args, "--rotate-artifacts", fmt.Sprint(r.cfg.RotateArtifacts))
	}
	return append(args, r.cfg.ExtraArgs...)
}

// Invoke implements ports.Backend.
func (r *Runner) Invoke(ctx context.Context, inv ports.Invocation) ([]ports.BackendEvent, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	ident := uuid.NewString()
	cmd := exec.CommandContext(ctx, r.cfg.Binary, r.Args(inv, ident)...)
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, remotecall.NewBackendInvocationError(inv.Module, err)
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, remotecall.NewBackendInvocationError(inv.Module, err)
	}

	// Descendants can keep the pipe open after the runner is killed.
	stop := context.AfterFunc(ctx, func() { _ = stdout.Close() })
	events, parseErr := ParseEvents(stdout)
	stop()
	if parseErr != nil {
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()

	hostEvents := 0
	for _, event := range events {
		if event.Kind != ports.EventKindOther {
			hostEvents++
		}
	}

	r.logger.Debug(ctx, "runner finished",
		"module", inv.Module,
		"ident", ident,
		"events", len(events),
		"host_events", hostEvents,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	if parseErr != nil {
		return nil, remotecall.NewBackendInvocationError(inv.Module, fmt.Errorf("read event stream: %w", parseErr))
	}
	if waitErr != nil && hostEvents == 0 {
		if ctxErr := ctx.Err(); ctxErr != nil {
			waitErr = fmt.Errorf("%w: %w", ctxErr, waitErr)
		}
		return nil, remotecall.NewBackendInvocationError(inv.Module, withStderr(waitErr, stderr.String()))
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, remotecall.NewBackendInvocationError(inv.Module, waitErr)
		}
		r.logger.Debug(ctx, "runner exited non-zero after host events", "module", inv.Module, "exit_code", exitErr.ExitCode())
	}
	return events, nil
}

// ParseEvents decodes a JSON-lines ansible-runner event stream. Lines that
// are not JSON objects are skipped.
func ParseEvents(r io.Reader) ([]ports.BackendEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	var events []ports.BackendEvent
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var raw struct {
			Event     string                 `json:"event"`
			EventData map[string]interface{} `json:"event_data"`
		}
		if err := json.Unmarshal(line, &raw); err != nil || raw.Event == "" {
			continue
		}
		events = append(events, toBackendEvent(raw.Event, raw.EventData))
	}
	if err := scanner.Err(); err != nil {
		return events, err
	}
	return events, nil
}

func toBackendEvent(name string, data map[string]interface{}) ports.BackendEvent {
	kind, ok := eventKinds[name]
	if !ok {
		kind = ports.EventKindOther
	}
	event := ports.BackendEvent{Kind: kind, Name: name, Data: data}
	if data == nil {
		return event
	}
	if host, ok := data["host"].(string); ok {
		event.Host = host
	}
	if res, ok := data["res"].(map[string]interface{}); ok {
		event.Result = res
	}
	return event
}

func withStderr(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return err
	}
	if len(stderr) > stderrTailBytes {
		stderr = stderr[len(stderr)-stderrTailBytes:]
	}
	return fmt.Errorf("%w: %s", err, stderr)
}

var _ ports.Backend = (*Runner)(nil)
