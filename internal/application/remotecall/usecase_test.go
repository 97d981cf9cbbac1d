package remotecall

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/jumpgate/internal/admission"
	domain "github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
	"github.com/alexisbeaulieu97/jumpgate/internal/engine"
	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

type scriptedBackend struct {
	mu      sync.Mutex
	calls   []ports.Invocation
	replies map[string][]ports.BackendEvent
}

func (b *scriptedBackend) Invoke(_ context.Context, inv ports.Invocation) ([]ports.BackendEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, inv)
	return b.replies[inv.Module], nil
}

func (b *scriptedBackend) modules() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, c := range b.calls {
		out = append(out, c.Module)
	}
	return out
}

func ok(host, stdout string) ports.BackendEvent {
	return ports.BackendEvent{
		Kind:   ports.EventKindOK,
		Host:   host,
		Result: map[string]interface{}{"stdout": stdout, "rc": float64(0)},
		Data:   map[string]interface{}{"host": host},
	}
}

func failed(host, msg string) ports.BackendEvent {
	return ports.BackendEvent{
		Kind:   ports.EventKindFailed,
		Host:   host,
		Result: map[string]interface{}{"msg": msg, "rc": float64(2)},
		Data:   map[string]interface{}{"host": host},
	}
}

type fakeLeaser struct {
	dir   string
	err   error
	calls int
	paths []string
}

func (l *fakeLeaser) Acquire(context.Context) (*domain.CredentialLease, error) {
	l.calls++
	path := filepath.Join(l.dir, "key")
	if err := os.WriteFile(path, []byte("key"), 0o600); err != nil {
		return nil, err
	}
	l.paths = append(l.paths, path)
	return domain.NewCredentialLease(path, nil), l.err
}

type fakeInventory struct {
	keyPaths []string
	cleaned  int
	err      error
}

func (f *fakeInventory) Write(_ domain.Request, keyPath string) (string, func(), error) {
	if f.err != nil {
		return "", func() {}, f.err
	}
	f.keyPaths = append(f.keyPaths, keyPath)
	return "/tmp/inventory.ini", func() { f.cleaned++ }, nil
}

type denyAll struct{}

func (denyAll) Allow(context.Context, domain.Request) error {
	return domain.NewPolicyDeniedError("false")
}

type recordingHistory struct{ entries []ports.HistoryEntry }

func (r *recordingHistory) Record(entry ports.HistoryEntry) { r.entries = append(r.entries, entry) }

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (p *recordingPublisher) Publish(_ context.Context, event ports.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, event.EventType())
	return nil
}

func (p *recordingPublisher) Subscribe(string, ports.EventHandler) (ports.Subscription, error) {
	return nil, errors.New("not supported")
}

type harness struct {
	useCase   *UseCase
	backend   *scriptedBackend
	leaser    *fakeLeaser
	inventory *fakeInventory
	store     *admission.MemoryStore
	history   *recordingHistory
	events    *recordingPublisher
}

func newHarness(t *testing.T, replies map[string][]ports.BackendEvent, mutate func(*Dependencies)) *harness {
	t.Helper()
	h := &harness{
		backend:   &scriptedBackend{replies: replies},
		leaser:    &fakeLeaser{dir: t.TempDir()},
		inventory: &fakeInventory{},
		store:     admission.NewMemoryStore(),
		history:   &recordingHistory{},
		events:    &recordingPublisher{},
	}
	limits := admission.DefaultLimits()
	limits.WaitTimeout = 50 * time.Millisecond
	limits.RetryInterval = 5 * time.Millisecond

	deps := Dependencies{
		Admitter:  admission.NewController(h.store, limits),
		Leaser:    h.leaser,
		Inventory: h.inventory,
		Runner:    engine.NewDriver(h.backend, engine.WithDriverEvents(h.events)),
		History:   h.history,
		Events:    h.events,
	}
	if mutate != nil {
		mutate(&deps)
	}
	h.useCase = NewUseCase(deps, Settings{WorkDir: "/srv/runner"})
	return h
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestExecuteLinuxCommandWithLeasedKey(t *testing.T) {
	h := newHarness(t, map[string][]ports.BackendEvent{"shell": {ok("10.0.0.5", "up 3 days")}}, nil)

	env := h.useCase.Execute(context.Background(), domain.Input{
		OSType: "linux", IP: "10.0.0.5", Username: "ops", Command: strPtr("uptime"),
	})

	require.Equal(t, domain.StatusSuccess, env.Status)
	require.Nil(t, env.Error)
	require.NotNil(t, env.Data)
	assert.Equal(t, "up 3 days", env.Data.Stdout)
	require.Len(t, env.AllResults, 1)
	assert.Equal(t, "shell:uptime", env.AllResults[0].Task)
	assert.Equal(t, "10.0.0.5", env.Target["host"])

	assert.Equal(t, 1, h.leaser.calls)
	assert.Equal(t, h.leaser.paths, h.inventory.keyPaths)
	_, err := os.Stat(h.leaser.paths[0])
	assert.True(t, os.IsNotExist(err), "leased key must be removed")
	assert.Equal(t, 1, h.inventory.cleaned)
	assert.Zero(t, h.store.Value("semaphore:remote_call"))

	assert.Equal(t, []string{ports.EventRemoteCallStarted, ports.EventStepCompleted, ports.EventRemoteCallCompleted}, h.events.types)
	require.Len(t, h.history.entries, 1)
	entry := h.history.entries[0]
	assert.Equal(t, "success", entry.Status)
	assert.Equal(t, "command", entry.Mode)
	assert.Equal(t, 22, entry.Port)
	assert.True(t, entry.UseBastion)
	assert.Equal(t, 1, entry.Steps)
	assert.NotEmpty(t, entry.CorrelationID)
}

func TestExecutePasswordAuthSkipsLease(t *testing.T) {
	h := newHarness(t, map[string][]ports.BackendEvent{"win_shell": {ok("10.0.0.6", "ok")}}, nil)

	env := h.useCase.Execute(context.Background(), domain.Input{
		OSType: "windows", IP: "10.0.0.6", Username: "Administrator", Password: strPtr("pw"), Command: strPtr("dir"),
	})

	require.Equal(t, domain.StatusSuccess, env.Status)
	assert.Zero(t, h.leaser.calls)
	assert.Equal(t, []string{""}, h.inventory.keyPaths)
}

func TestExecuteDirectKeyAuthSkipsLease(t *testing.T) {
	h := newHarness(t, map[string][]ports.BackendEvent{"shell": {ok("10.0.0.5", "ok")}}, nil)

	env := h.useCase.Execute(context.Background(), domain.Input{
		OSType: "linux", IP: "10.0.0.5", Username: "ops", Command: strPtr("id"), UseBastion: boolPtr(false),
	})

	require.Equal(t, domain.StatusSuccess, env.Status)
	assert.Zero(t, h.leaser.calls)
}

func TestExecuteWindowsScriptRunsCleanupAfterFailure(t *testing.T) {
	h := newHarness(t, map[string][]ports.BackendEvent{
		"win_copy":  {ok("10.0.0.6", "")},
		"win_shell": {failed("10.0.0.6", "script exited 2")},
		"win_file":  {ok("10.0.0.6", "")},
	}, nil)

	env := h.useCase.Execute(context.Background(), domain.Input{
		OSType: "windows", IP: "10.0.0.6", Username: "Administrator", Password: strPtr("pw"), FilePath: strPtr("/srv/scripts/a.ps1"),
	})

	require.Equal(t, domain.StatusError, env.Status)
	require.NotNil(t, env.Error)
	assert.Equal(t, domain.ErrCodeRemoteExecution, env.Error.Code)
	assert.Equal(t, []string{"win_copy", "win_shell", "win_file"}, h.backend.modules())
	require.Len(t, env.AllResults, 3)
	assert.True(t, env.AllResults[1].Focus)
	assert.Contains(t, h.events.types, ports.EventRemoteCallFailed)
	assert.Equal(t, "REMOTE_EXECUTION_FAILURE", h.history.entries[0].ErrorCode)
}

func TestExecuteAmbiguousModeNeverReachesBackend(t *testing.T) {
	h := newHarness(t, nil, nil)

	env := h.useCase.Execute(context.Background(), domain.Input{
		OSType: "linux", IP: "10.0.0.5", Username: "ops", Command: strPtr("id"), FilePath: strPtr("/a.sh"),
		UseBastion: boolPtr(false),
	})

	require.Equal(t, domain.StatusError, env.Status)
	assert.Equal(t, domain.ErrCodeAmbiguousMode, env.Error.Code)
	assert.Empty(t, h.backend.modules())
	assert.Nil(t, env.AllResults)
	assert.Zero(t, h.store.Value("semaphore:remote_call"))
}

func TestExecuteUnsupportedOS(t *testing.T) {
	h := newHarness(t, nil, nil)

	env := h.useCase.Execute(context.Background(), domain.Input{
		OSType: "solaris", IP: "10.0.0.5", Username: "ops", Command: strPtr("id"), UseBastion: boolPtr(false),
	})

	assert.Equal(t, domain.ErrCodeUnsupportedOS, env.Error.Code)
	assert.Empty(t, h.backend.modules())
}

func TestExecuteLeaseErrorWinsOverResolveError(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.leaser.err = domain.NewCredentialTransferError("transfer", errors.New("no such file"))

	env := h.useCase.Execute(context.Background(), domain.Input{
		OSType: "linux", IP: "10.0.0.5", Username: "ops", Command: strPtr("id"), FilePath: strPtr("/a.sh"),
	})

	assert.Equal(t, domain.ErrCodeCredentialTransfer, env.Error.Code)
	assert.Empty(t, h.backend.modules())
	_, err := os.Stat(h.leaser.paths[0])
	assert.True(t, os.IsNotExist(err), "partial key must be removed")
}

func TestExecuteLeaseErrorSkipsResolve(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.leaser.err = domain.NewCredentialTransferError("dial", errors.New("connection refused"))
	resolved := 0
	h.useCase.resolve = func(req domain.Request) (domain.StepChain, error) {
		resolved++
		return domain.Resolve(req)
	}

	env := h.useCase.Execute(context.Background(), domain.Input{
		OSType: "linux", IP: "10.0.0.5", Username: "ops", Command: strPtr("id"),
	})

	assert.Equal(t, domain.ErrCodeCredentialTransfer, env.Error.Code)
	assert.Zero(t, resolved)
	assert.Empty(t, h.inventory.keyPaths)
}

func TestExecuteWithoutBastionConfigured(t *testing.T) {
	h := newHarness(t, nil, func(d *Dependencies) { d.Leaser = nil })

	env := h.useCase.Execute(context.Background(), domain.Input{
		OSType: "linux", IP: "10.0.0.5", Username: "ops", Command: strPtr("id"),
	})

	assert.Equal(t, domain.ErrCodeCredentialTransfer, env.Error.Code)
	assert.Equal(t, "precondition", env.Error.Detail["stage"])
}

func TestExecuteValidationFailure(t *testing.T) {
	h := newHarness(t, nil, nil)

	env := h.useCase.Execute(context.Background(), domain.Input{OSType: "linux", Username: "ops", Command: strPtr("id")})

	assert.Equal(t, domain.ErrCodeValidation, env.Error.Code)
	assert.Equal(t, []string{ports.EventRemoteCallFailed}, h.events.types)
	require.Len(t, h.history.entries, 1)
	assert.Equal(t, "VALIDATION_ERROR", h.history.entries[0].ErrorCode)
}

func TestExecutePolicyDenied(t *testing.T) {
	h := newHarness(t, nil, func(d *Dependencies) { d.Policy = denyAll{} })

	env := h.useCase.Execute(context.Background(), domain.Input{
		OSType: "linux", IP: "10.0.0.5", Username: "ops", Command: strPtr("id"),
	})

	assert.Equal(t, domain.ErrCodePolicyDenied, env.Error.Code)
	assert.Zero(t, h.leaser.calls)
	assert.Empty(t, h.backend.modules())
}

func TestExecuteAdmissionTimeout(t *testing.T) {
	h := newHarness(t, nil, nil)
	for i := 0; i < 5; i++ {
		_, err := h.store.Increment(context.Background(), "semaphore:remote_call", time.Minute)
		require.NoError(t, err)
	}

	env := h.useCase.Execute(context.Background(), domain.Input{
		OSType: "linux", IP: "10.0.0.5", Username: "ops", Command: strPtr("id"), UseBastion: boolPtr(false),
	})

	assert.Equal(t, domain.ErrCodeAdmissionTimeout, env.Error.Code)
	assert.Equal(t, "server busy", env.Error.Message)
	assert.Empty(t, h.backend.modules())
	assert.Equal(t, int64(5), h.store.Value("semaphore:remote_call"))
}

func TestExecuteInventoryFailure(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.inventory.err = errors.New("disk full")

	env := h.useCase.Execute(context.Background(), domain.Input{
		OSType: "linux", IP: "10.0.0.5", Username: "ops", Command: strPtr("id"),
	})

	assert.Equal(t, domain.ErrCodeInternal, env.Error.Code)
	assert.Contains(t, env.Error.Message, "disk full")
	_, err := os.Stat(h.leaser.paths[0])
	assert.True(t, os.IsNotExist(err))
	assert.Zero(t, h.store.Value("semaphore:remote_call"))
}

func TestExecuteKeepsCallerCorrelationID(t *testing.T) {
	h := newHarness(t, map[string][]ports.BackendEvent{"shell": {ok("10.0.0.5", "ok")}}, nil)

	ctx := ports.WithCorrelationID(context.Background(), "req-123")
	h.useCase.Execute(ctx, domain.Input{OSType: "linux", IP: "10.0.0.5", Username: "ops", Command: strPtr("id"), UseBastion: boolPtr(false)})

	require.Len(t, h.history.entries, 1)
	assert.Equal(t, "req-123", h.history.entries[0].CorrelationID)
}

type blockingBackend struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingBackend) Invoke(ctx context.Context, inv ports.Invocation) ([]ports.BackendEvent, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return nil, domain.NewBackendInvocationError(inv.Module, ctx.Err())
}

func TestExecuteTimeoutReleasesLeaseAndSlot(t *testing.T) {
	backend := &blockingBackend{started: make(chan struct{})}
	h := newHarness(t, nil, func(d *Dependencies) {
		d.Runner = engine.NewDriver(backend)
	})
	h.useCase.settings.Timeout = 30 * time.Millisecond

	env := h.useCase.Execute(context.Background(), domain.Input{
		OSType: "linux", IP: "10.0.0.5", Username: "ops", Command: strPtr("uptime"),
	})

	require.Equal(t, domain.StatusError, env.Status)
	require.Len(t, h.leaser.paths, 1)
	_, err := os.Stat(h.leaser.paths[0])
	assert.True(t, os.IsNotExist(err), "leased key must be removed after a timeout")
	assert.Equal(t, 1, h.inventory.cleaned)
	assert.Zero(t, h.store.Value("semaphore:remote_call"))
}

func TestExecuteCallerCancellationReleasesLeaseAndSlot(t *testing.T) {
	backend := &blockingBackend{started: make(chan struct{})}
	h := newHarness(t, nil, func(d *Dependencies) {
		d.Runner = engine.NewDriver(backend)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-backend.started
		cancel()
	}()

	env := h.useCase.Execute(ctx, domain.Input{
		OSType: "linux", IP: "10.0.0.5", Username: "ops", Command: strPtr("uptime"),
	})

	require.Equal(t, domain.StatusError, env.Status)
	_, err := os.Stat(h.leaser.paths[0])
	assert.True(t, os.IsNotExist(err), "leased key must be removed after cancellation")
	assert.Zero(t, h.store.Value("semaphore:remote_call"))
}
