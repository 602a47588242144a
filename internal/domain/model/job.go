// Package model defines the core data types used throughout the parkngo
// orchestration system.
package model

import (
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the current status of an orchestration job.
type JobStatus string

const (
	// JobStatusAwaitingPayment indicates a job is waiting for its payment to
	// be confirmed by the payment gateway.
	JobStatusAwaitingPayment JobStatus = "awaiting_payment"
	// JobStatusRunning indicates payment was received and the job is executing.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates a job finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates a job failed (payment rejected or execution error).
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates a job was cancelled because payment never arrived.
	JobStatusCancelled JobStatus = "cancelled"
)

// Payment constants for job admission. Amounts are in lovelace, the smallest
// unit of the payment network.
const (
	// DefaultPaymentAmountLovelace is the flat price of one orchestration job.
	DefaultPaymentAmountLovelace int64 = 10_000_000
	// DefaultPaymentUnit is the unit the payment amount is denominated in.
	DefaultPaymentUnit = "lovelace"
)

// Valid returns true if the JobStatus is one of the known states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusAwaitingPayment, JobStatusRunning, JobStatusCompleted,
		JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transition is allowed out of s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the forward-only state graph permits moving
// from s to next. Terminal states permit nothing; transitions never move
// backwards.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusAwaitingPayment:
		return next == JobStatusRunning || next == JobStatusFailed || next == JobStatusCancelled
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// JobInput is the typed input of an orchestration job. Text is the task to
// analyze; ParkingContext is an opaque passthrough for telemetry the
// reasoning backend may use.
type JobInput struct {
	Text            string          `json:"text"`
	ParkingContext  json.RawMessage `json:"parking_context,omitempty"`
	ExpectedOutputs []string        `json:"expected_outputs,omitempty"`
}

// Validate checks the required fields of a JobInput.
func (in *JobInput) Validate() error {
	if in.Text == "" {
		return errors.New("text is required")
	}
	return nil
}

// Job is a unit of paid asynchronous work tracked through payment and
// execution phases.
type Job struct {
	ID          string          `json:"job_id"`
	PurchaserID string          `json:"purchaser_id"`
	Input       JobInput        `json:"input"`
	Status      JobStatus       `json:"status"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// JobUpdate describes a partial mutation of a job. Nil fields are left
// untouched.
type JobUpdate struct {
	Status *JobStatus
	Result json.RawMessage
	Error  *string
}

// StartJobRequest is a request to admit a new orchestration job.
type StartJobRequest struct {
	PurchaserID string   `json:"identifier_from_purchaser"`
	Input       JobInput `json:"input_data"`
}

// Validate checks the required fields of a StartJobRequest.
func (r *StartJobRequest) Validate() error {
	if r.PurchaserID == "" {
		return errors.New("identifier_from_purchaser is required")
	}
	return r.Input.Validate()
}

// StartJobResponse is returned on successful job admission. The payment
// amount and unit tell the purchaser what the gateway expects.
type StartJobResponse struct {
	JobID         string    `json:"job_id"`
	PaymentAmount int64     `json:"payment_amount"`
	PaymentUnit   string    `json:"payment_unit"`
	Status        JobStatus `json:"status"`
}

// JobStatusResponse reports the live state of a job.
type JobStatusResponse struct {
	JobID     string          `json:"job_id"`
	Status    JobStatus       `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PaymentWebhook is the payload delivered by the payment gateway when a
// charge settles (or fails to).
type PaymentWebhook struct {
	JobID            string    `json:"job_id"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	Status           JobStatus `json:"status"`
}

// AvailabilityResponse reports whether the orchestrator can admit new work.
type AvailabilityResponse struct {
	Available       bool   `json:"available"`
	Reason          string `json:"reason,omitempty"`
	Network         string `json:"network"`
	AgentIdentifier string `json:"agent_identifier"`
}
