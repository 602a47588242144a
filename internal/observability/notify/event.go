package notify

import (
	"context"
	"time"
)

// StatusPing is the periodic liveness report emitted while the orchestrator
// is running.
type StatusPing struct {
	Component  string
	Healthy    bool
	Detail     string
	ActiveJobs int
	OccurredAt time.Time
}

// JobEventPayload captures the canonical data emitted when a job changes
// lifecycle status.
type JobEventPayload struct {
	JobID      string
	Status     string
	Detail     string
	OccurredAt time.Time
	Metadata   map[string]string
}

// Sink describes a destination capable of consuming status reports. Delivery
// is advisory; a failing sink must never affect job or session state.
type Sink interface {
	SendStatusPing(ctx context.Context, payload StatusPing) error
	SendJobEvent(ctx context.Context, payload JobEventPayload) error
}

// SinkFuncs adapts plain functions to the Sink interface (useful for tests).
type SinkFuncs struct {
	PingFunc  func(ctx context.Context, payload StatusPing) error
	EventFunc func(ctx context.Context, payload JobEventPayload) error
}

// SendStatusPing implements the Sink interface.
func (f SinkFuncs) SendStatusPing(ctx context.Context, payload StatusPing) error {
	if f.PingFunc == nil {
		return nil
	}
	return f.PingFunc(ctx, payload)
}

// SendJobEvent implements the Sink interface.
func (f SinkFuncs) SendJobEvent(ctx context.Context, payload JobEventPayload) error {
	if f.EventFunc == nil {
		return nil
	}
	return f.EventFunc(ctx, payload)
}
