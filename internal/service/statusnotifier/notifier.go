// Package statusnotifier fans status pings and job lifecycle events out to
// all registered sinks. Delivery is best-effort: sink failures are logged,
// never propagated.
package statusnotifier

import (
	"context"
	"log/slog"
	"sync"

	"github.com/parkngo/parkngo-api/internal/observability/notify"
)

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the status notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
}

// Service dispatches status reports to all registered sinks.
type Service struct {
	logger *slog.Logger
	sinks  []SinkRegistration
}

// NewService constructs a status notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "status_notifier")

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{Name: name, Sink: entry.Sink})
	}

	return &Service{logger: logger, sinks: sinks}
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}

// NotifyStatus fans the status ping out to all sinks.
func (s *Service) NotifyStatus(ctx context.Context, payload notify.StatusPing) {
	s.fanOut(ctx, func(sink notify.Sink) error {
		return sink.SendStatusPing(ctx, payload)
	}, "status ping", payload.Component)
}

// NotifyJobEvent fans the job lifecycle event out to all sinks.
func (s *Service) NotifyJobEvent(ctx context.Context, payload notify.JobEventPayload) {
	s.fanOut(ctx, func(sink notify.Sink) error {
		return sink.SendJobEvent(ctx, payload)
	}, "job event", payload.JobID)
}

func (s *Service) fanOut(ctx context.Context, send func(notify.Sink) error, kind, subject string) {
	if len(s.sinks) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := send(entry.Sink); err != nil {
				s.logger.Error("status notifier delivery error",
					"sink", entry.Name,
					"kind", kind,
					"subject", subject,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}
