package logging

import (
	"context"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

const defaultBufferLimit = 1000

type logLevel int

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarn
	levelError
)

// bufferedEntry keeps the correlation id rather than the context so a
// buffered line never pins a request context.
type bufferedEntry struct {
	at            time.Time
	correlationID string
	level         logLevel
	msg           string
	fields        []interface{}
}

// EventBuffer holds startup log lines until the configured logger exists.
// When full, the oldest lines are dropped and counted.
type EventBuffer struct {
	mu      sync.Mutex
	limit   int
	entries []bufferedEntry
	dropped int
	now     func() time.Time
}

// NewEventBuffer creates a buffer holding up to limit lines (1000 when limit <= 0).
func NewEventBuffer(limit int) *EventBuffer {
	if limit <= 0 {
		limit = defaultBufferLimit
	}
	return &EventBuffer{
		limit:   limit,
		entries: make([]bufferedEntry, 0, limit),
		now:     time.Now,
	}
}

func (b *EventBuffer) add(ctx context.Context, level logLevel, msg string, fields []interface{}) {
	entry := bufferedEntry{
		correlationID: ports.GetCorrelationID(ctx),
		level:         level,
		msg:           msg,
		fields:        fields,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	entry.at = b.now()
	if len(b.entries) == b.limit {
		copy(b.entries, b.entries[1:])
		b.entries[len(b.entries)-1] = entry
		b.dropped++
		return
	}
	b.entries = append(b.entries, entry)
}

// Flush replays buffered lines in order through delegate, tagging each with
// the time it was recorded, and empties the buffer.
func (b *EventBuffer) Flush(delegate ports.Logger) {
	if delegate == nil {
		return
	}
	b.mu.Lock()
	entries := b.entries
	dropped := b.dropped
	b.entries = make([]bufferedEntry, 0, b.limit)
	b.dropped = 0
	b.mu.Unlock()

	if dropped > 0 {
		delegate.Warn(context.Background(), "startup log buffer overflowed", "dropped", dropped)
	}
	for _, entry := range entries {
		ctx := context.Background()
		if entry.correlationID != "" {
			ctx = ports.WithCorrelationID(ctx, entry.correlationID)
		}
		fields := append(entry.fields, "buffered_at", entry.at.UTC().Format(time.RFC3339Nano))
		switch entry.level {
		case levelDebug:
			delegate.Debug(ctx, entry.msg, fields...)
		case levelWarn:
			delegate.Warn(ctx, entry.msg, fields...)
		case levelError:
			delegate.Error(ctx, entry.msg, fields...)
		default:
			delegate.Info(ctx, entry.msg, fields...)
		}
	}
}
