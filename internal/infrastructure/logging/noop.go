package logging

import (
	"context"

	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

type noopLogger struct{}

func (noopLogger) Debug(context.Context, string, ...interface{}) {}
func (noopLogger) Info(context.Context, string, ...interface{})  {}
func (noopLogger) Warn(context.Context, string, ...interface{})  {}
func (noopLogger) Error(context.Context, string, ...interface{}) {}

func (n noopLogger) With(...interface{}) ports.Logger { return n }

// NewNoOpLogger returns a logger that discards everything. Components fall
// back to it when no logger is injected.
func NewNoOpLogger() ports.Logger { return noopLogger{} }
