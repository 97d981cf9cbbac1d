package ports

import "context"

const (
	// EventRemoteCallStarted is emitted once a request has been admitted.
	EventRemoteCallStarted = "remote_call.started"
	// EventRemoteCallCompleted is emitted when the chain finished without host failures.
	EventRemoteCallCompleted = "remote_call.completed"
	// EventRemoteCallFailed is emitted when the call ends with any error.
	EventRemoteCallFailed = "remote_call.failed"
	// EventStepCompleted is emitted after a step in which no host failed.
	EventStepCompleted = "step.completed"
	// EventStepFailed is emitted after a step in which at least one host failed.
	EventStepFailed = "step.failed"
)

// Event is the default DomainEvent implementation.
type Event struct {
	Type string
	Data map[string]interface{}
}

// EventType implements DomainEvent.
func (e Event) EventType() string { return e.Type }

// Payload implements DomainEvent.
func (e Event) Payload() interface{} { return e.Data }

// DomainEvent represents a significant occurrence within the domain or
// application layer. Events carry structured payloads that downstream
// subscribers can use for logging, history, or integrations.
type DomainEvent interface {
	EventType() string
	Payload() interface{}
}

// EventPublisher distributes events to interested subscribers. Dispatch is
// synchronous: Publish blocks until all handlers run, ensuring observability
// signals appear before the response is written. Handlers may spawn goroutines for
// async processing if work should continue in the background. Implementations
// must be thread-safe.
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
}

// EventHandler processes an event of a specific type. Handlers should avoid
// panicking; failures should be surfaced via returned errors so publishers can
// log diagnostics and continue delivering to remaining subscribers.
type EventHandler func(context.Context, DomainEvent) error

// Subscription represents a registered handler. Callers must invoke
// Unsubscribe to stop receiving events and release resources.
type Subscription interface {
	Unsubscribe()
}
