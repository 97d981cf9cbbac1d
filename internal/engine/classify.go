package engine

import (
	"fmt"
	"math"
	"strconv"

	"github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

// outcomeFromEvent converts an ok/failed/unreachable event into a host
// outcome. It reports false for every other event kind.
func outcomeFromEvent(event ports.BackendEvent) (remotecall.HostOutcome, bool) {
	var failed bool
	switch event.Kind {
	case ports.EventKindOK:
	case ports.EventKindFailed, ports.EventKindUnreachable:
		failed = true
	default:
		return remotecall.HostOutcome{}, false
	}

	res := event.Result
	defaultRC := 0
	if failed {
		defaultRC = 1
	}

	host := event.Host
	if host == "" {
		host = stringField(event.Data, "host")
	}

	return remotecall.HostOutcome{
		Host:    host,
		Stdout:  stringField(res, "stdout"),
		Stderr:  stringField(res, "stderr"),
		RC:      intField(res, "rc", defaultRC),
		Msg:     stringField(res, "msg"),
		Changed: boolField(res, "changed"),
		Failed:  failed,
	}, true
}

func stringField(m map[string]interface{}, key string) string {
	value, ok := m[key]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

func intField(m map[string]interface{}, key string, fallback int) int {
	value, ok := m[key]
	if !ok || value == nil {
		return fallback
	}
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fallback
		}
		return int(v)
	case string:
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolField(m map[string]interface{}, key string) bool {
	value, ok := m[key].(bool)
	return ok && value
}
