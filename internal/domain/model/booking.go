package model

import (
	"encoding/json"
	"errors"
	"time"
)

// Billing constants. All amounts are lovelace.
const (
	// RatePerMinuteLovelace is the metered parking rate (1.2 ADA per hour).
	RatePerMinuteLovelace int64 = 20_000

	// Per-step costs of the book-slot pipeline.
	SpotFinderCostLovelace      int64 = 300_000
	VehicleDetectorCostLovelace int64 = 200_000
	PaymentAgentCostLovelace    int64 = 400_000

	// AutoBookingDurationHours is the duration assigned to sensor-created
	// bookings; the session reaper closes anything that outlives it.
	AutoBookingDurationHours = 24.0

	// DefaultUserID is the payer for sensor-created sessions when no explicit
	// booking exists (single-tenant fallback).
	DefaultUserID = "default_user"
)

// Pipeline step names, reported in cost breakdowns and gate rejections.
const (
	StepSpotFinder      = "spot_finder"
	StepVehicleDetector = "vehicle_detector"
	StepPaymentAgent    = "payment_agent"
)

// BookingStatus is the lifecycle status of a booking.
type BookingStatus string

const (
	// BookingStatusActive indicates the booking's billing session is running.
	BookingStatusActive BookingStatus = "active"
	// BookingStatusCompleted indicates the booking's session has ended.
	BookingStatusCompleted BookingStatus = "completed"
)

// SessionStatus is the lifecycle status of a billing session.
type SessionStatus string

const (
	// SessionStatusActive indicates time is being metered.
	SessionStatusActive SessionStatus = "active"
	// SessionStatusCompleted indicates the session was closed.
	SessionStatusCompleted SessionStatus = "completed"
)

// Session end reasons.
const (
	EndReasonVehicleLeft = "vehicle_left"
	EndReasonMaxDuration = "max_duration_reached"
)

// VehicleValidation records the outcome of the occupancy gate check taken at
// booking time.
type VehicleValidation struct {
	Detected bool `json:"detected"`
	Correct  bool `json:"correct"`
}

// OrchestrationSummary records the per-step agent costs charged while
// creating a booking.
type OrchestrationSummary struct {
	SpotFinderCost      int64 `json:"spot_finder_cost_lovelace"`
	VehicleDetectorCost int64 `json:"vehicle_detector_cost_lovelace"`
	PaymentAgentCost    int64 `json:"payment_agent_cost_lovelace"`
	TotalCost           int64 `json:"total_agent_cost_lovelace"`
}

// Booking is the durable record pairing a user/vehicle/spot to a billing
// session. It is created once at the end of a successful gated pipeline (or
// by the sensor auto-create fallback) and mutated only to complete it.
type Booking struct {
	BookingID            string               `json:"booking_id"             db:"booking_id"`
	SessionID            string               `json:"session_id"             db:"session_id"`
	UserID               string               `json:"user_id"                db:"user_id"`
	VehicleID            string               `json:"vehicle_id"             db:"vehicle_id"`
	SpotID               string               `json:"spot_id"                db:"spot_id"`
	DurationHours        float64              `json:"duration_hours"         db:"duration_hours"`
	Status               BookingStatus        `json:"status"                 db:"status"`
	AutoCreated          bool                 `json:"auto_created"           db:"auto_created"`
	SensorTriggered      bool                 `json:"sensor_triggered"       db:"sensor_triggered"`
	OrchestrationSummary OrchestrationSummary `json:"orchestration_summary"  db:"orchestration_summary"`
	VehicleValidation    VehicleValidation    `json:"vehicle_validation"     db:"vehicle_validation"`
	CreatedAt            time.Time            `json:"created_at"             db:"created_at"`
	EndedAt              *time.Time           `json:"ended_at,omitempty"     db:"ended_at"`
}

// SessionTransaction is one settlement entry in a billing session's ledger.
// The ledger is append-only and written by the external settlement
// collaborator, never computed by this engine.
type SessionTransaction struct {
	TxHash   string    `json:"tx_hash"`
	Amount   int64     `json:"amount_lovelace"`
	Settled  time.Time `json:"settled_at"`
	Metadata string    `json:"metadata,omitempty"`
}

// BillingSession is a metered, time-based charge accrual tied to physical
// spot occupancy. At most one session per spot may be active at a time.
type BillingSession struct {
	SessionID     string               `json:"session_id"            db:"session_id"`
	BookingID     string               `json:"booking_id"            db:"booking_id"`
	SpotID        string               `json:"spot_id"               db:"spot_id"`
	UserID        string               `json:"user_id"               db:"user_id"`
	OwnerWallet   string               `json:"owner_wallet"          db:"owner_wallet"`
	RatePerMinute int64                `json:"rate_per_minute"       db:"rate_per_minute"`
	Status        SessionStatus        `json:"status"                db:"status"`
	StartedAt     time.Time            `json:"started_at"            db:"started_at"`
	EndedAt       *time.Time           `json:"ended_at,omitempty"    db:"ended_at"`
	EndReason     string               `json:"end_reason,omitempty"  db:"end_reason"`
	AutoCreated   bool                 `json:"auto_created"          db:"auto_created"`
	Transactions  []SessionTransaction `json:"transactions"          db:"transactions"`
}

// meterReference returns the instant accrual should be measured against: the
// session's end for closed sessions, the caller's clock otherwise.
func (s *BillingSession) meterReference(now time.Time) time.Time {
	if s.EndedAt != nil {
		return *s.EndedAt
	}
	return now
}

// ElapsedMinutes returns the fractional minutes metered so far. A pure
// function of time; any number of concurrent readers observe a consistent,
// monotonically non-decreasing value without ticking processes or counters.
func (s *BillingSession) ElapsedMinutes(now time.Time) float64 {
	elapsed := s.meterReference(now).Sub(s.StartedAt)
	if elapsed < 0 {
		return 0
	}
	return elapsed.Minutes()
}

// Accrued returns the total lovelace accrued at the given instant:
// floor(elapsed_minutes * rate_per_minute). Integer arithmetic keeps the
// floor exact for sub-minute elapsed fractions.
func (s *BillingSession) Accrued(now time.Time) int64 {
	elapsed := s.meterReference(now).Sub(s.StartedAt)
	if elapsed < 0 {
		return 0
	}
	return int64(elapsed.Seconds()) * s.RatePerMinute / 60
}

// BookSlotRequest is a request to run the gated booking pipeline.
type BookSlotRequest struct {
	UserID        string          `json:"user_id"`
	VehicleID     string          `json:"vehicle_id"`
	DurationHours float64         `json:"duration_hours"`
	SpotID        string          `json:"spot_id,omitempty"`
	UserLocation  json.RawMessage `json:"user_location,omitempty"`
	WalletAddress string          `json:"wallet_address,omitempty"`
}

// Validate checks the required fields of a BookSlotRequest.
func (r *BookSlotRequest) Validate() error {
	if r.UserID == "" {
		return errors.New("user_id is required")
	}
	if r.VehicleID == "" {
		return errors.New("vehicle_id is required")
	}
	if r.DurationHours <= 0 {
		return errors.New("duration_hours must be positive")
	}
	return nil
}

// StepCost reports the cost attributed to one pipeline step.
type StepCost struct {
	Step     string `json:"step"`
	Cost     int64  `json:"cost_lovelace"`
	Executed bool   `json:"executed"`
}

// BookSlotResult is the per-step outcome of the booking pipeline. On gate
// rejection or step failure, Success is false and the breakdown reports which
// steps were charged; charges already incurred are not refunded.
type BookSlotResult struct {
	Success       bool       `json:"success"`
	Error         string     `json:"error,omitempty"`
	FailedStep    string     `json:"step,omitempty"`
	AgentsCharged []string   `json:"agents_charged"`
	Costs         []StepCost `json:"costs_breakdown"`
	TotalCharged  int64      `json:"total_charged_lovelace"`

	SpotID            string            `json:"spot_id,omitempty"`
	VehicleValidation VehicleValidation `json:"vehicle_validation"`
	PaymentStarted    bool              `json:"payment_started"`

	BookingID     string `json:"booking_id,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	RatePerMinute int64  `json:"rate_per_minute,omitempty"`
}

// PaymentSessionResponse is the live, recomputed view of a billing session.
type PaymentSessionResponse struct {
	SessionID      string               `json:"session_id"`
	BookingID      string               `json:"booking_id"`
	SpotID         string               `json:"spot_id"`
	Status         SessionStatus        `json:"status"`
	MinutesElapsed float64              `json:"minutes_elapsed"`
	TotalAccrued   int64                `json:"total_deducted_lovelace"`
	RatePerMinute  int64                `json:"rate_per_minute"`
	Transactions   []SessionTransaction `json:"transactions"`
}
