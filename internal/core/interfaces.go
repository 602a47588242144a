package core

import (
	"context"
	"time"

	"github.com/parkngo/parkngo-api/internal/domain/model"
)

// This file contains the port definitions (hexagonal architecture).
// Services depend on these interfaces, never on concrete implementations.

// JobStore defines the contract for paid job persistence. Implementations
// are expected to expire awaiting-payment jobs after a TTL and to survive
// backend outages in a degraded, non-durable mode.
type JobStore interface {
	Save(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	Update(ctx context.Context, id string, upd model.JobUpdate) (*model.Job, error)
	// CountActive returns the number of jobs in a non-terminal status.
	CountActive(ctx context.Context) (int, error)
	// Durable reports whether writes reach the backing store or only the
	// in-process cache.
	Durable() bool
}

// BookingRepository defines the read contract for parking bookings. Bookings
// are written through SessionRepository, which pairs them with a session.
type BookingRepository interface {
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	// ListByUser returns a user's bookings, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*model.Booking, error)
}

// SessionRepository defines the contract for billing session persistence.
type SessionRepository interface {
	// CreateWithBooking inserts a booking and its session in one transaction.
	// When another active session already holds the same spot it returns a
	// conflict error and the caller re-reads the winner via FindActiveBySpot.
	CreateWithBooking(ctx context.Context, b *model.Booking, s *model.BillingSession) error
	GetByID(ctx context.Context, id string) (*model.BillingSession, error)
	FindActiveBySpot(ctx context.Context, spotID string) (*model.BillingSession, error)
	ListActive(ctx context.Context) ([]*model.BillingSession, error)
	// Close ends an active session. It is idempotent: closing an already
	// closed session reports false with no error.
	Close(ctx context.Context, params CloseSessionParams) (bool, error)
	AppendTransaction(ctx context.Context, sessionID string, entry *model.SessionTransaction) error
}

// CloseSessionParams groups parameters for SessionRepository.Close.
type CloseSessionParams struct {
	SessionID   string
	EndedAt     time.Time
	EndReason   string
	FinalAmount int64
}

// SpotRepository defines the contract for parking spot state.
type SpotRepository interface {
	Get(ctx context.Context, spotID string) (*model.ParkingSpot, error)
	ListAvailable(ctx context.Context) ([]*model.ParkingSpot, error)
	SetOccupancy(ctx context.Context, params SetOccupancyParams) (*model.ParkingSpot, error)
	AssignVehicle(ctx context.Context, spotID, vehicleID string) error
	ClearVehicle(ctx context.Context, spotID string) error
}

// SetOccupancyParams groups parameters for SpotRepository.SetOccupancy.
type SetOccupancyParams struct {
	SpotID     string
	Occupied   bool
	DistanceCM *float64
	SensorID   string
	SeenAt     time.Time
}

// PaymentGateway defines the contract for the payment network facade.
type PaymentGateway interface {
	// Health reports whether the payment service is reachable and ready.
	Health(ctx context.Context) error
	// CreateCharge debits a payer for an agent step and returns a
	// settlement reference.
	CreateCharge(ctx context.Context, req ChargeRequest) (*ChargeReceipt, error)
	// PaymentStatus looks up the settlement state of a job payment.
	PaymentStatus(ctx context.Context, jobID string) (string, error)
}

// ChargeRequest describes one debit against a payer.
type ChargeRequest struct {
	PayerID  string
	Amount   int64
	Unit     string
	Memo     string
	StepName string
}

// ChargeReceipt is the settlement reference returned by the gateway.
type ChargeReceipt struct {
	Reference string
	Amount    int64
	ChargedAt time.Time
}

// AgentDirectory defines the contract for the agent registry used for
// liveness checks and lifecycle event reporting.
type AgentDirectory interface {
	// EnsureLive verifies the orchestration agent is registered and live.
	EnsureLive(ctx context.Context) error
	// NotifyJobEvent reports a job lifecycle transition upstream. Failures
	// are advisory and must not affect job state.
	NotifyJobEvent(ctx context.Context, jobID string, status model.JobStatus) error
}

// Reasoner defines the contract for the reasoning backend that produces
// job summaries from free-form input.
type Reasoner interface {
	Summarize(ctx context.Context, input model.JobInput) (string, error)
}

// VehicleDetector defines the contract for verifying that the vehicle
// occupying a spot matches the one registered to it.
type VehicleDetector interface {
	Validate(ctx context.Context, spotID, vehicleID string) (*model.VehicleValidation, error)
}

