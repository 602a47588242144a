package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/parkngo/parkngo-api/config"
	"github.com/parkngo/parkngo-api/internal/core"
	"github.com/parkngo/parkngo-api/internal/data"
	"github.com/parkngo/parkngo-api/internal/domain/model"
	"github.com/parkngo/parkngo-api/internal/observability/metrics"
	"github.com/parkngo/parkngo-api/internal/observability/statsd"
	"golang.org/x/sync/errgroup"
)

// sweepConcurrency bounds how many sessions a sweep closes in parallel.
const sweepConcurrency = 4

// SessionReaperOptions groups dependencies for SessionReaper.
type SessionReaperOptions struct {
	Sessions     core.SessionRepository // Required: session persistence
	Bookings     core.BookingRepository // Required: booked durations
	Config       config.ReaperConfig    // Required: reaper tuning
	Logger       *slog.Logger           // Optional: structured logger
	Metrics      statsd.Sink            // Optional: metrics sink (StatsD-compatible)
	TimeProvider data.TimeProvider      // Optional: clock, defaults to real time
}

// SessionReaper closes billing sessions that have outlived their booked
// duration. The sensor feed normally ends sessions when a vehicle leaves;
// the reaper is the backstop for sensors that die while a spot is occupied.
//
// A reaped session is closed at its booked deadline, not at sweep time, so
// accrual never grows past what the booking paid for.
type SessionReaper struct {
	sessions     core.SessionRepository
	bookings     core.BookingRepository
	config       config.ReaperConfig
	logger       *slog.Logger
	metrics      statsd.Sink
	timeProvider data.TimeProvider
}

// NewSessionReaper constructs a new SessionReaper.
func NewSessionReaper(opts SessionReaperOptions) (*SessionReaper, error) {
	if opts.Sessions == nil {
		return nil, errors.New("SessionRepository is required")
	}
	if opts.Bookings == nil {
		return nil, errors.New("BookingRepository is required")
	}

	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "session_reaper")
		logger.Debug("SessionReaper initialized",
			"interval", opts.Config.Interval,
			"grace_window", opts.Config.GraceWindow,
		)
	}

	return &SessionReaper{
		sessions:     opts.Sessions,
		bookings:     opts.Bookings,
		config:       opts.Config,
		logger:       logger,
		metrics:      opts.Metrics,
		timeProvider: timeProvider,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *SessionReaper) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting session reaper", "interval", s.config.Interval)
	}

	s.waitWithJitter(ctx)
	if ctx.Err() != nil {
		return nil
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.Sweep(ctx); err != nil {
		s.logSweepError(ctx, err)
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "session reaper stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logSweepError(ctx, err)
				// Keep running despite errors
			}
		}
	}
}

// waitWithJitter delays startup by a random duration up to the configured
// jitter to prevent thundering herd when multiple instances start together.
func (s *SessionReaper) waitWithJitter(ctx context.Context) {
	if s.config.Jitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(s.config.Jitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by config.Jitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// Sweep closes every active session whose booked duration, plus the grace
// window, has elapsed. Returns the number of sessions closed.
func (s *SessionReaper) Sweep(ctx context.Context) (int, error) {
	start := s.timeProvider.Now()

	active, err := s.sessions.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	var closedCount atomic.Int64
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(sweepConcurrency)
	for _, session := range active {
		group.Go(func() error {
			deadline, err := s.sessionDeadline(gctx, session)
			if err != nil {
				return err
			}
			if start.Before(deadline.Add(s.config.GraceWindow)) {
				return nil
			}

			didClose, err := s.closeOverdue(gctx, session, deadline)
			if err != nil {
				return err
			}
			if didClose {
				closedCount.Add(1)
			}
			return nil
		})
	}
	err = group.Wait()
	closed := int(closedCount.Load())

	if s.metrics != nil {
		s.metrics.Count("reaper.closed", int64(closed), nil)
		s.metrics.Timing("reaper.sweep", s.timeProvider.Now().Sub(start), nil)
	}
	if s.logger != nil && closed > 0 {
		s.logger.InfoContext(ctx, "reaped overdue sessions", "closed", closed, "active", len(active))
	}

	return closed, err
}

// sessionDeadline resolves when a session's booked time runs out.
func (s *SessionReaper) sessionDeadline(ctx context.Context, session *model.BillingSession) (time.Time, error) {
	duration := time.Duration(model.AutoBookingDurationHours * float64(time.Hour))
	if session.BookingID != "" {
		booking, err := s.bookings.GetByID(ctx, session.BookingID)
		if err != nil {
			return time.Time{}, err
		}
		duration = time.Duration(booking.DurationHours * float64(time.Hour))
	}
	return session.StartedAt.Add(duration), nil
}

// closeOverdue ends a session at its booked deadline. Idempotent against a
// concurrent close by the sensor path.
func (s *SessionReaper) closeOverdue(ctx context.Context, session *model.BillingSession, deadline time.Time) (bool, error) {
	finalAmount := session.Accrued(deadline)
	didClose, err := s.sessions.Close(ctx, core.CloseSessionParams{
		SessionID:   session.SessionID,
		EndedAt:     deadline,
		EndReason:   model.EndReasonMaxDuration,
		FinalAmount: finalAmount,
	})
	if err != nil || !didClose {
		return false, err
	}

	metrics.EmitSessionEvent(s.metrics, metrics.SessionMetric{
		Event:       "closed",
		EndReason:   model.EndReasonMaxDuration,
		AutoCreated: session.AutoCreated,
		Accrued:     finalAmount,
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "closed over-duration session",
			"session_id", session.SessionID,
			"spot_id", session.SpotID,
			"deadline", deadline,
			"accrued_lovelace", finalAmount,
		)
	}
	return true, nil
}

func (s *SessionReaper) logSweepError(ctx context.Context, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	if s.logger != nil {
		s.logger.ErrorContext(ctx, "reaper sweep failed", "error", err)
	}
}
