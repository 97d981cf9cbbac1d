package ports

import (
	"context"

	"github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
)

// EventKind classifies a backend event for aggregation purposes.
type EventKind string

const (
	EventKindOK          EventKind = "ok"
	EventKindFailed      EventKind = "failed"
	EventKindUnreachable EventKind = "unreachable"
	EventKindOther       EventKind = "other"
)

// BackendEvent is one entry of the backend's event stream.
type BackendEvent struct {
	Kind EventKind
	// Name is the raw event name emitted by the backend (e.g. runner_on_ok).
	Name string
	Host string
	// Result is the module result payload (stdout, stderr, rc, msg, changed).
	Result map[string]interface{}
	// Data is the full event data block, surfaced as envelope target metadata.
	Data map[string]interface{}
}

// Invocation describes a single module run against the backend.
type Invocation struct {
	WorkDir     string
	Inventory   string
	HostPattern string
	Module      string
	Args        string
}

// Backend runs one module invocation to completion and returns its event
// stream in emission order. Implementations must:
//   - Consume the whole stream before returning; the driver never overlaps
//     invocations within one request.
//   - Return a *remotecall.DomainError with ErrCodeBackendInvocation when the
//     backend could not be started or died without producing events.
//   - Report host-level failures as events, never as a returned error.
type Backend interface {
	Invoke(ctx context.Context, inv Invocation) ([]BackendEvent, error)
}

// InventoryWriter materialises the per-request inventory the backend reads.
// The returned cleanup removes the artifact and is safe to call more than once.
type InventoryWriter interface {
	Write(req remotecall.Request, keyPath string) (path string, cleanup func(), err error)
}
