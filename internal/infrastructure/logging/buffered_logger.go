package logging

import (
	"context"

	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

// BufferedLogger is the logger used while configuration is still loading.
// Lines land in an EventBuffer and reach the real logger on Flush.
type BufferedLogger struct {
	buffer *EventBuffer
	fields []interface{}
}

// NewBufferedLogger returns a logger writing into buffer.
func NewBufferedLogger(buffer *EventBuffer) *BufferedLogger {
	return &BufferedLogger{buffer: buffer}
}

func (l *BufferedLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	l.record(ctx, levelDebug, msg, fields)
}

func (l *BufferedLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	l.record(ctx, levelInfo, msg, fields)
}

func (l *BufferedLogger) Warn(ctx context.Context, msg string, fields ...interface{}) {
	l.record(ctx, levelWarn, msg, fields)
}

func (l *BufferedLogger) Error(ctx context.Context, msg string, fields ...interface{}) {
	l.record(ctx, levelError, msg, fields)
}

// With returns a child sharing the buffer.
func (l *BufferedLogger) With(fields ...interface{}) ports.Logger {
	return &BufferedLogger{buffer: l.buffer, fields: appendFields(l.fields, fields)}
}

func (l *BufferedLogger) record(ctx context.Context, level logLevel, msg string, fields []interface{}) {
	if l == nil || l.buffer == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	l.buffer.add(ctx, level, msg, appendFields(l.fields, fields))
}

func appendFields(base, extra []interface{}) []interface{} {
	merged := make([]interface{}, 0, len(base)+len(extra))
	merged = append(merged, base...)
	return append(merged, extra...)
}
