// Package remotecall coordinates a single remote call from request
// normalisation to the response envelope.
package remotecall

import (
	"context"
	"sort"
	"time"

	domain "github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
	"github.com/alexisbeaulieu97/jumpgate/internal/engine"
	"github.com/alexisbeaulieu97/jumpgate/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

// ChainRunner executes a resolved step chain.
type ChainRunner interface {
	Run(ctx context.Context, chain domain.StepChain, target engine.Target) domain.ExecutionResult
}

// Dependencies groups the collaborators of the use case. Policy, Leaser,
// History and Events are optional.
type Dependencies struct {
	Admitter  ports.Admitter
	Policy    ports.RequestPolicy
	Leaser    ports.CredentialLeaser
	Inventory ports.InventoryWriter
	Runner    ChainRunner
	History   ports.HistoryRecorder
	Events    ports.EventPublisher
	Logger    ports.Logger
}

// Settings tunes the use case.
type Settings struct {
	// WorkDir is the backend working directory.
	WorkDir string
	// Timeout bounds the whole call; zero leaves only the caller's deadline.
	Timeout time.Duration
}

// UseCase runs remote calls.
type UseCase struct {
	deps     Dependencies
	settings Settings
	logger   ports.Logger
	now      func() time.Time
	resolve  func(domain.Request) (domain.StepChain, error)
}

// NewUseCase constructs a UseCase with dependencies injected.
func NewUseCase(deps Dependencies, settings Settings) *UseCase {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &UseCase{
		deps:     deps,
		settings: settings,
		logger:   logger.With("component", "remote_call"),
		now:      time.Now,
		resolve:  domain.Resolve,
	}
}

// Execute runs one remote call. Every failure is reported inside the
// envelope; the use case never returns a Go error.
func (u *UseCase) Execute(ctx context.Context, in domain.Input) domain.Envelope {
	if ctx == nil {
		ctx = context.Background()
	}
	if ports.GetCorrelationID(ctx) == "" {
		ctx = ports.WithCorrelationID(ctx, ports.GenerateCorrelationID())
	}
	started := u.now()

	req, err := domain.NewRequest(in)
	if err != nil {
		env := domain.Failure(err)
		u.finish(ctx, nil, in, env, started)
		return env
	}

	if u.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.settings.Timeout)
		defer cancel()
	}

	env := u.execute(ctx, req)
	u.finish(ctx, &req, in, env, started)
	return env
}

func (u *UseCase) execute(ctx context.Context, req domain.Request) domain.Envelope {
	summary := req.Summary()

	if u.deps.Policy != nil {
		if err := u.deps.Policy.Allow(ctx, req); err != nil {
			u.logger.Warn(ctx, "request denied by policy", "ip", req.Host(), "error", err)
			return domain.Failure(err)
		}
	}

	release, err := u.deps.Admitter.Admit(ctx)
	if err != nil {
		u.logger.Warn(ctx, "request not admitted", "ip", req.Host(), "error", err)
		return domain.Failure(err)
	}
	defer release()

	publishEvent(ctx, u.deps.Events, u.logger, ports.EventRemoteCallStarted, summary)

	keyPath, releaseLease, leaseErr := u.lease(ctx, req)
	defer releaseLease()
	if leaseErr != nil {
		return domain.Assemble(leaseErr, nil, nil)
	}

	chain, resolveErr := u.resolve(req)
	if resolveErr != nil {
		return domain.Assemble(nil, resolveErr, nil)
	}

	inventory, cleanup, err := u.deps.Inventory.Write(req, keyPath)
	if err != nil {
		return domain.Failure(domain.NewInternalError("write inventory", err))
	}
	defer cleanup()

	u.logger.Info(ctx, "executing remote call",
		"ip", req.Host(),
		"os_type", string(req.OS()),
		"mode", summary["mode"],
		"steps", len(chain),
	)

	result := u.deps.Runner.Run(ctx, chain, engine.Target{
		WorkDir:     u.settings.WorkDir,
		Inventory:   inventory,
		HostPattern: req.GroupName(),
	})
	return domain.Assemble(nil, nil, &result)
}

// lease fetches the target key when the request needs one. The returned
// release func is always safe to call.
func (u *UseCase) lease(ctx context.Context, req domain.Request) (string, func(), error) {
	if !req.NeedsLeasedKey() {
		return "", func() {}, nil
	}
	if u.deps.Leaser == nil {
		return "", func() {}, domain.NewCredentialTransferError("precondition", errBastionDisabled)
	}
	lease, err := u.deps.Leaser.Acquire(ctx)
	if err != nil {
		u.logger.Warn(ctx, "credential lease failed", "error", err)
	}
	return lease.Path(), lease.Release, err
}

func (u *UseCase) finish(ctx context.Context, req *domain.Request, in domain.Input, env domain.Envelope, started time.Time) {
	duration := u.now().Sub(started)
	fields := map[string]interface{}{
		"status":      string(env.Status),
		"duration_ms": duration.Milliseconds(),
		"ip":          in.IP,
		"os_type":     in.OSType,
	}
	if req != nil {
		for k, v := range req.Summary() {
			fields[k] = v
		}
	}

	if derr := env.Err(); derr != nil {
		fields["error_code"] = string(derr.Code)
		fields["error"] = env.Error.Message
		u.logger.Warn(ctx, "remote call failed", flatten(fields)...)
		publishEvent(ctx, u.deps.Events, u.logger, ports.EventRemoteCallFailed, fields)
	} else {
		u.logger.Info(ctx, "remote call completed", flatten(fields)...)
		publishEvent(ctx, u.deps.Events, u.logger, ports.EventRemoteCallCompleted, fields)
	}

	if u.deps.History != nil {
		u.deps.History.Record(historyEntry(ctx, req, in, env, started, duration))
	}
}

func historyEntry(ctx context.Context, req *domain.Request, in domain.Input, env domain.Envelope, started time.Time, duration time.Duration) ports.HistoryEntry {
	entry := ports.HistoryEntry{
		CorrelationID: ports.GetCorrelationID(ctx),
		OSType:        in.OSType,
		IP:            in.IP,
		Username:      in.Username,
		Status:        string(env.Status),
		Steps:         len(env.AllResults),
		StartedAt:     started,
		DurationMS:    duration.Milliseconds(),
	}
	if req != nil {
		mode, _ := req.Mode()
		entry.OSType = string(req.OS())
		entry.IP = req.Host()
		entry.Port = req.Port()
		entry.Username = req.Username()
		entry.Mode = string(mode)
		entry.UseBastion = req.UseBastion()
	}
	if env.Error != nil {
		entry.ErrorCode = string(env.Error.Code)
		entry.ErrorMessage = env.Error.Message
	}
	return entry
}

func flatten(fields map[string]interface{}) []interface{} {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(fields)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return args
}
