package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/parkngo/parkngo-api/config"
	"github.com/parkngo/parkngo-api/internal/core"
	"github.com/parkngo/parkngo-api/internal/data"
	"github.com/parkngo/parkngo-api/internal/domain/model"
	apperrors "github.com/parkngo/parkngo-api/internal/errors"
	"github.com/parkngo/parkngo-api/internal/observability/metrics"
	"github.com/parkngo/parkngo-api/internal/observability/statsd"
)

// BillingServiceOptions groups dependencies for BillingService.
type BillingServiceOptions struct {
	Bookings     core.BookingRepository // Required: booking persistence
	Sessions     core.SessionRepository // Required: session persistence
	Spots        core.SpotRepository    // Required: spot state
	Payments     core.PaymentGateway    // Required: per-step agent charges
	Detector     core.VehicleDetector   // Required: occupancy gate check
	Config       config.BillingConfig   // Required: rate and wallet settings
	Logger       *slog.Logger           // Optional: structured logger
	Metrics      statsd.Sink            // Optional: metrics sink (StatsD-compatible)
	TimeProvider data.TimeProvider      // Optional: clock, defaults to real time
}

// BillingService runs the gated booking pipeline and meters occupancy-driven
// billing sessions.
//
// Accrual is lazy: a session stores only its start instant and rate, and
// every read recomputes elapsed time and the accrued total. The sensor feed
// is the sole authority on when metering starts and stops.
type BillingService struct {
	bookings     core.BookingRepository
	sessions     core.SessionRepository
	spots        core.SpotRepository
	payments     core.PaymentGateway
	detector     core.VehicleDetector
	config       config.BillingConfig
	logger       *slog.Logger
	metrics      statsd.Sink
	timeProvider data.TimeProvider
}

// NewBillingService constructs a new BillingService.
func NewBillingService(opts BillingServiceOptions) (*BillingService, error) {
	if opts.Bookings == nil {
		return nil, errors.New("BookingRepository is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("SessionRepository is required")
	}
	if opts.Spots == nil {
		return nil, errors.New("SpotRepository is required")
	}
	if opts.Payments == nil {
		return nil, errors.New("PaymentGateway is required")
	}
	if opts.Detector == nil {
		return nil, errors.New("VehicleDetector is required")
	}

	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "billing_service")
	}

	return &BillingService{
		bookings:     opts.Bookings,
		sessions:     opts.Sessions,
		spots:        opts.Spots,
		payments:     opts.Payments,
		detector:     opts.Detector,
		config:       opts.Config,
		logger:       logger,
		metrics:      opts.Metrics,
		timeProvider: timeProvider,
	}, nil
}

// BookSlot runs the three-step agent pipeline: spot selection, occupancy
// gate check, then booking and session creation. Each executed step charges
// its fixed agent fee; a step failure aborts the pipeline but charges
// already incurred are kept. The gate check requires both a detected vehicle
// and a license match before any payment session is opened.
func (s *BillingService) BookSlot(ctx context.Context, req *model.BookSlotRequest) (*model.BookSlotResult, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	result := &model.BookSlotResult{AgentsCharged: []string{}}

	// Step 1: spot selection.
	spot, err := s.selectSpot(ctx, req.SpotID)
	s.chargeStep(ctx, result, req.UserID, model.StepSpotFinder, model.SpotFinderCostLovelace)
	if err != nil {
		metrics.EmitPipelineStep(s.metrics, model.StepSpotFinder, metrics.ResultError, model.SpotFinderCostLovelace)
		return s.failStep(result, model.StepSpotFinder, err), nil
	}
	result.SpotID = spot.SpotID
	metrics.EmitPipelineStep(s.metrics, model.StepSpotFinder, metrics.ResultSuccess, model.SpotFinderCostLovelace)

	// Step 2: occupancy validation.
	validation, err := s.detector.Validate(ctx, spot.SpotID, req.VehicleID)
	s.chargeStep(ctx, result, req.UserID, model.StepVehicleDetector, model.VehicleDetectorCostLovelace)
	if err != nil {
		metrics.EmitPipelineStep(s.metrics, model.StepVehicleDetector, metrics.ResultError, model.VehicleDetectorCostLovelace)
		return s.failStep(result, model.StepVehicleDetector, err), nil
	}
	result.VehicleValidation = *validation
	if !validation.Detected || !validation.Correct {
		metrics.EmitPipelineStep(s.metrics, model.StepVehicleDetector, "gate_rejected", model.VehicleDetectorCostLovelace)
		if s.logger != nil {
			s.logger.WarnContext(ctx, "occupancy gate rejected booking",
				"spot_id", spot.SpotID,
				"vehicle_id", req.VehicleID,
				"detected", validation.Detected,
				"correct", validation.Correct,
			)
		}
		result.Error = "vehicle validation failed, cannot proceed to payment"
		result.FailedStep = model.StepVehicleDetector
		return result, nil
	}
	metrics.EmitPipelineStep(s.metrics, model.StepVehicleDetector, metrics.ResultSuccess, model.VehicleDetectorCostLovelace)

	// Step 3: payment agent opens the booking and its metered session.
	booking, session, err := s.openSession(ctx, req, spot, *validation)
	s.chargeStep(ctx, result, req.UserID, model.StepPaymentAgent, model.PaymentAgentCostLovelace)
	if err != nil {
		metrics.EmitPipelineStep(s.metrics, model.StepPaymentAgent, metrics.ResultError, model.PaymentAgentCostLovelace)
		return s.failStep(result, model.StepPaymentAgent, err), nil
	}
	metrics.EmitPipelineStep(s.metrics, model.StepPaymentAgent, metrics.ResultSuccess, model.PaymentAgentCostLovelace)
	metrics.EmitSessionEvent(s.metrics, metrics.SessionMetric{Event: "opened"})

	result.Success = true
	result.PaymentStarted = true
	result.BookingID = booking.BookingID
	result.SessionID = session.SessionID
	result.RatePerMinute = session.RatePerMinute

	if s.logger != nil {
		s.logger.InfoContext(ctx, "booking pipeline completed",
			"booking_id", booking.BookingID,
			"session_id", session.SessionID,
			"spot_id", spot.SpotID,
			"total_charged", result.TotalCharged,
		)
	}
	return result, nil
}

// selectSpot resolves the requested spot, or picks the first free one when
// the request names none.
func (s *BillingService) selectSpot(ctx context.Context, spotID string) (*model.ParkingSpot, error) {
	if spotID != "" {
		spot, err := s.spots.Get(ctx, spotID)
		if err != nil {
			if errors.Is(err, data.ErrSpotNotFound) {
				return nil, apperrors.NotFoundf("spot %s not found", spotID)
			}
			return nil, err
		}
		return spot, nil
	}

	available, err := s.spots.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}
	if len(available) == 0 {
		return nil, apperrors.NotFound("no available spot")
	}
	return available[0], nil
}

// openSession creates the booking and its billing session atomically. A
// concurrent active session on the same spot wins the race; the caller's
// insert loses cleanly.
func (s *BillingService) openSession(
	ctx context.Context,
	req *model.BookSlotRequest,
	spot *model.ParkingSpot,
	validation model.VehicleValidation,
) (*model.Booking, *model.BillingSession, error) {
	now := s.timeProvider.Now()
	totalCost := model.SpotFinderCostLovelace + model.VehicleDetectorCostLovelace + model.PaymentAgentCostLovelace

	booking := &model.Booking{
		BookingID:     uuid.NewString(),
		SessionID:     uuid.NewString(),
		UserID:        req.UserID,
		VehicleID:     req.VehicleID,
		SpotID:        spot.SpotID,
		DurationHours: req.DurationHours,
		Status:        model.BookingStatusActive,
		OrchestrationSummary: model.OrchestrationSummary{
			SpotFinderCost:      model.SpotFinderCostLovelace,
			VehicleDetectorCost: model.VehicleDetectorCostLovelace,
			PaymentAgentCost:    model.PaymentAgentCostLovelace,
			TotalCost:           totalCost,
		},
		VehicleValidation: validation,
		CreatedAt:         now,
	}

	ownerWallet := s.config.OwnerWallet
	if req.WalletAddress != "" {
		ownerWallet = req.WalletAddress
	}
	session := &model.BillingSession{
		SessionID:     booking.SessionID,
		BookingID:     booking.BookingID,
		SpotID:        spot.SpotID,
		UserID:        req.UserID,
		OwnerWallet:   ownerWallet,
		RatePerMinute: s.config.RatePerMinute,
		Status:        model.SessionStatusActive,
		StartedAt:     now,
		Transactions:  []model.SessionTransaction{},
	}

	if err := s.sessions.CreateWithBooking(ctx, booking, session); err != nil {
		if errors.Is(err, data.ErrActiveSessionExists) {
			return nil, nil, apperrors.Conflictf("spot %s already has an active session", spot.SpotID)
		}
		return nil, nil, fmt.Errorf("create booking pair: %w", err)
	}

	if err := s.spots.AssignVehicle(ctx, spot.SpotID, req.VehicleID); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to register vehicle on spot",
			"spot_id", spot.SpotID, "error", err)
	}

	return booking, session, nil
}

// chargeStep debits the fixed fee for one executed pipeline step and records
// it in the result breakdown. The debit is best effort: the step already ran,
// so a gateway failure is logged rather than unwinding the pipeline.
func (s *BillingService) chargeStep(ctx context.Context, result *model.BookSlotResult, userID, step string, cost int64) {
	result.AgentsCharged = append(result.AgentsCharged, step)
	result.Costs = append(result.Costs, model.StepCost{Step: step, Cost: cost, Executed: true})
	result.TotalCharged += cost

	_, err := s.payments.CreateCharge(ctx, core.ChargeRequest{
		PayerID:  userID,
		Amount:   cost,
		Unit:     model.DefaultPaymentUnit,
		Memo:     fmt.Sprintf("parking pipeline step %s", step),
		StepName: step,
	})
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "agent step charge failed",
			"step", step, "user_id", userID, "cost", cost, "error", err)
	}
}

func (s *BillingService) failStep(result *model.BookSlotResult, step string, err error) *model.BookSlotResult {
	result.FailedStep = step
	result.Error = err.Error()
	return result
}

// PaymentSession returns the live view of a billing session, recomputing
// elapsed minutes and the accrued total at read time.
func (s *BillingService) PaymentSession(ctx context.Context, sessionID string) (*model.PaymentSessionResponse, error) {
	if sessionID == "" {
		return nil, apperrors.Validation("session_id is required")
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, data.ErrSessionNotFound) {
			return nil, apperrors.NotFoundf("session %s not found", sessionID)
		}
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	now := s.timeProvider.Now()
	return &model.PaymentSessionResponse{
		SessionID:      session.SessionID,
		BookingID:      session.BookingID,
		SpotID:         session.SpotID,
		Status:         session.Status,
		MinutesElapsed: session.ElapsedMinutes(now),
		TotalAccrued:   session.Accrued(now),
		RatePerMinute:  session.RatePerMinute,
		Transactions:   session.Transactions,
	}, nil
}

// UserBookings returns a user's booking history, newest first.
func (s *BillingService) UserBookings(ctx context.Context, userID string, limit int) ([]*model.Booking, error) {
	if userID == "" {
		return nil, apperrors.Validation("user_id is required")
	}

	bookings, err := s.bookings.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list bookings for user %s: %w", userID, err)
	}
	return bookings, nil
}

// HandleSensorUpdate persists a spot occupancy change and drives session
// lifecycle from it: an occupied event confirms or auto-creates the spot's
// active session, a vacant event closes it.
func (s *BillingService) HandleSensorUpdate(ctx context.Context, upd *model.SensorUpdate) (*model.SensorUpdateResult, error) {
	if err := upd.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	now := s.timeProvider.Now()
	seenAt := now
	if upd.Timestamp > 0 {
		seenAt = time.Unix(upd.Timestamp, 0)
	}

	params := core.SetOccupancyParams{
		SpotID:   upd.SpotID,
		Occupied: upd.Occupied,
		SensorID: upd.SensorID,
		SeenAt:   seenAt,
	}
	if upd.DistanceCM > 0 {
		distance := upd.DistanceCM
		params.DistanceCM = &distance
	}

	spot, err := s.spots.SetOccupancy(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("persist sensor state for spot %s: %w", upd.SpotID, err)
	}

	result := &model.SensorUpdateResult{SpotID: spot.SpotID, Occupied: upd.Occupied}
	if upd.Occupied {
		return s.handleSpotOccupied(ctx, spot, result, now)
	}
	return s.handleSpotVacated(ctx, spot, result, now)
}

// handleSpotOccupied confirms the spot's active session or auto-creates a
// booking/session pair for the default user. Duplicate concurrent occupied
// events race on the conditional insert; the loser re-reads the winner.
func (s *BillingService) handleSpotOccupied(
	ctx context.Context,
	spot *model.ParkingSpot,
	result *model.SensorUpdateResult,
	now time.Time,
) (*model.SensorUpdateResult, error) {
	existing, err := s.sessions.FindActiveBySpot(ctx, spot.SpotID)
	if err == nil {
		result.PaymentTriggered = true
		result.SessionID = existing.SessionID
		return result, nil
	}
	if !errors.Is(err, data.ErrSessionNotFound) {
		return nil, fmt.Errorf("find active session for spot %s: %w", spot.SpotID, err)
	}

	vehicleID := spot.RegisteredVehicle
	if vehicleID == "" {
		vehicleID = "unknown"
	}

	booking := &model.Booking{
		BookingID:       uuid.NewString(),
		SessionID:       uuid.NewString(),
		UserID:          model.DefaultUserID,
		VehicleID:       vehicleID,
		SpotID:          spot.SpotID,
		DurationHours:   s.config.AutoBookingHours,
		Status:          model.BookingStatusActive,
		AutoCreated:     true,
		SensorTriggered: true,
		CreatedAt:       now,
	}
	session := &model.BillingSession{
		SessionID:     booking.SessionID,
		BookingID:     booking.BookingID,
		SpotID:        spot.SpotID,
		UserID:        model.DefaultUserID,
		OwnerWallet:   s.config.OwnerWallet,
		RatePerMinute: s.config.RatePerMinute,
		Status:        model.SessionStatusActive,
		StartedAt:     now,
		AutoCreated:   true,
		Transactions:  []model.SessionTransaction{},
	}

	if err := s.sessions.CreateWithBooking(ctx, booking, session); err != nil {
		if errors.Is(err, data.ErrActiveSessionExists) {
			winner, readErr := s.sessions.FindActiveBySpot(ctx, spot.SpotID)
			if readErr != nil {
				return nil, fmt.Errorf("re-read winning session for spot %s: %w", spot.SpotID, readErr)
			}
			result.PaymentTriggered = true
			result.SessionID = winner.SessionID
			return result, nil
		}
		return nil, fmt.Errorf("auto-create session for spot %s: %w", spot.SpotID, err)
	}

	metrics.EmitSessionEvent(s.metrics, metrics.SessionMetric{Event: "opened", AutoCreated: true})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "auto-created session from sensor event",
			"spot_id", spot.SpotID, "session_id", session.SessionID)
	}

	result.PaymentTriggered = true
	result.SessionID = session.SessionID
	result.AutoCreated = true
	return result, nil
}

// handleSpotVacated closes the spot's active session, if any. A vacant event
// with no session is a benign no-op.
func (s *BillingService) handleSpotVacated(
	ctx context.Context,
	spot *model.ParkingSpot,
	result *model.SensorUpdateResult,
	now time.Time,
) (*model.SensorUpdateResult, error) {
	session, err := s.sessions.FindActiveBySpot(ctx, spot.SpotID)
	if err != nil {
		if errors.Is(err, data.ErrSessionNotFound) {
			return result, nil
		}
		return nil, fmt.Errorf("find active session for spot %s: %w", spot.SpotID, err)
	}

	finalAmount := session.Accrued(now)
	closed, err := s.sessions.Close(ctx, core.CloseSessionParams{
		SessionID:   session.SessionID,
		EndedAt:     now,
		EndReason:   model.EndReasonVehicleLeft,
		FinalAmount: finalAmount,
	})
	if err != nil {
		return nil, fmt.Errorf("close session %s: %w", session.SessionID, err)
	}
	if !closed {
		return result, nil
	}

	if err := s.spots.ClearVehicle(ctx, spot.SpotID); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to clear vehicle from spot",
			"spot_id", spot.SpotID, "error", err)
	}

	metrics.EmitSessionEvent(s.metrics, metrics.SessionMetric{
		Event:       "closed",
		EndReason:   model.EndReasonVehicleLeft,
		AutoCreated: session.AutoCreated,
		Accrued:     finalAmount,
	})
	if s.logger != nil {
		s.logger.InfoContext(ctx, "session closed by vacancy event",
			"spot_id", spot.SpotID,
			"session_id", session.SessionID,
			"accrued_lovelace", finalAmount,
		)
	}

	result.SessionID = session.SessionID
	return result, nil
}

// AvailableSpots lists spots currently reported vacant by the sensor feed.
func (s *BillingService) AvailableSpots(ctx context.Context) ([]*model.ParkingSpot, error) {
	spots, err := s.spots.ListAvailable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list available spots: %w", err)
	}
	return spots, nil
}
