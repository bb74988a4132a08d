package port

import (
	"context"
	"time"

	"github.com/garyjia/travel-approval/internal/domain/event"
)

// ChangePublisher pushes request change events to external subscribers
type ChangePublisher interface {
	Publish(ctx context.Context, evt *event.Event) error
}

// MetricsRecorder receives workflow counters and timings
type MetricsRecorder interface {
	ObserveDecision(action, outcome string, elapsed time.Duration)
	NotificationCreated(notificationType string)
	NotificationFailed(notificationType string)
}
