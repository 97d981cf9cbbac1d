package ports

import (
	"context"
	"time"
)

// HistoryEntry is the audit record kept for each completed remote call.
type HistoryEntry struct {
	ID            int64     `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	OSType        string    `json:"os_type"`
	IP            string    `json:"ip"`
	Port          int       `json:"port"`
	Username      string    `json:"username"`
	Mode          string    `json:"mode"`
	UseBastion    bool      `json:"use_bastion"`
	Status        string    `json:"status"`
	ErrorCode     string    `json:"error_code,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	Steps         int       `json:"steps"`
	StartedAt     time.Time `json:"started_at"`
	DurationMS    int64     `json:"duration_ms"`
}

// HistoryRecorder accepts entries for persistence. Record must not block the
// request path for longer than a channel send.
type HistoryRecorder interface {
	Record(entry HistoryEntry)
}

// HistoryStore persists and lists history entries.
type HistoryStore interface {
	SaveBatch(ctx context.Context, entries []HistoryEntry) error
	Recent(ctx context.Context, limit int) ([]HistoryEntry, error)
	Prune(ctx context.Context, keep int) (int64, error)
}
