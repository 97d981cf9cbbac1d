package remotecall

import (
	"context"

	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

func publishEvent(ctx context.Context, publisher ports.EventPublisher, logger ports.Logger, eventType string, payload map[string]interface{}) {
	if publisher == nil {
		return
	}
	event := ports.Event{Type: eventType, Data: payload}
	if err := publisher.Publish(ctx, event); err != nil && logger != nil {
		logger.Warn(ctx, "failed to publish domain event", "event_type", eventType, "error", err)
	}
}
