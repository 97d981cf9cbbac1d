package engine

import (
	"context"
	"time"

	"github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
	"github.com/alexisbeaulieu97/jumpgate/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

// Target identifies where and how the backend reaches the host for one request.
type Target struct {
	WorkDir     string
	Inventory   string
	HostPattern string
}

// Driver walks a step chain against the backend and aggregates the events
// into an ExecutionResult.
type Driver struct {
	backend ports.Backend
	logger  ports.Logger
	events  ports.EventPublisher
}

// DriverOption configures a driver instance.
type DriverOption func(*Driver)

// WithDriverLogger injects a logger into the driver.
func WithDriverLogger(logger ports.Logger) DriverOption {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDriverEvents injects an event publisher.
func WithDriverEvents(events ports.EventPublisher) DriverOption {
	return func(d *Driver) {
		d.events = events
	}
}

// NewDriver constructs a Driver over the given backend.
func NewDriver(backend ports.Backend, opts ...DriverOption) *Driver {
	d := &Driver{
		backend: backend,
		logger:  logging.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes every step of chain in order. Host failures are recorded and
// traversal continues so trailing cleanup steps still run; the first failure
// becomes the result error. A backend invocation error, or a cancelled
// context between steps, aborts the chain.
func (d *Driver) Run(ctx context.Context, chain remotecall.StepChain, target Target) remotecall.ExecutionResult {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := chain.Validate(); err != nil {
		return remotecall.ExecutionResult{Status: remotecall.StatusError, Err: remotecall.AsDomainError(err)}
	}

	result := remotecall.ExecutionResult{
		Steps: make([]remotecall.StepOutcome, 0, len(chain)),
	}
	logger := d.logger.With("component", "driver", "host_pattern", target.HostPattern)

	for idx, step := range chain {
		if err := ctx.Err(); err != nil {
			logger.Warn(ctx, "chain aborted", "step", idx, "module", step.Module, "error", err)
			return remotecall.ExecutionResult{Status: remotecall.StatusError, Err: remotecall.NewCancelledError(err)}
		}

		started := time.Now()
		events, err := d.backend.Invoke(ctx, ports.Invocation{
			WorkDir:     target.WorkDir,
			Inventory:   target.Inventory,
			HostPattern: target.HostPattern,
			Module:      step.Module,
			Args:        step.Args,
		})
		if err != nil {
			domainErr := remotecall.AsDomainError(err)
			if domainErr.Code == remotecall.ErrCodeInternal {
				domainErr = remotecall.NewBackendInvocationError(step.Module, err)
			}
			logger.Error(ctx, "backend invocation failed", "step", idx, "module", step.Module, "error", err)
			return remotecall.ExecutionResult{Status: remotecall.StatusError, Err: domainErr}
		}

		outcome := remotecall.StepOutcome{
			Task:   step.Label(),
			Focus:  step.Focus,
			Result: make([]remotecall.HostOutcome, 0, len(events)),
		}
		for _, event := range events {
			host, ok := outcomeFromEvent(event)
			if !ok {
				continue
			}
			outcome.Result = append(outcome.Result, host)
			if host.Failed {
				if result.Err == nil {
					result.Err = remotecall.NewRemoteExecutionFailure(host, outcome.Task)
				}
				continue
			}
			if result.Target == nil && event.Data != nil {
				result.Target = event.Data
			}
		}

		result.Steps = append(result.Steps, outcome)
		if step.Focus && len(outcome.Result) > 0 {
			primary := outcome.Result[0]
			result.Primary = &primary
		}

		d.publishStep(ctx, idx, outcome, time.Since(started))
		logger.Debug(ctx, "step finished",
			"step", idx,
			"module", step.Module,
			"hosts", len(outcome.Result),
			"failed", outcome.Failed(),
			"duration_ms", time.Since(started).Milliseconds(),
		)
	}

	result.Executed = true
	result.Status = remotecall.StatusSuccess
	if result.Err != nil {
		result.Status = remotecall.StatusError
	}
	return result
}

func (d *Driver) publishStep(ctx context.Context, idx int, outcome remotecall.StepOutcome, elapsed time.Duration) {
	if d.events == nil {
		return
	}
	eventType := ports.EventStepCompleted
	if outcome.Failed() {
		eventType = ports.EventStepFailed
	}
	err := d.events.Publish(ctx, ports.Event{
		Type: eventType,
		Data: map[string]interface{}{
			"step":        idx,
			"task":        outcome.Task,
			"focus":       outcome.Focus,
			"hosts":       len(outcome.Result),
			"duration_ms": elapsed.Milliseconds(),
		},
	})
	if err != nil {
		d.logger.Warn(ctx, "failed to publish step event", "event_type", eventType, "step", idx, "error", err)
	}
}
