package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/parkngo/parkngo-api/internal/domain/model"
)

// NewJob returns a JobBuilder seeded with sensible defaults.
func NewJob() *JobBuilder {
	now := time.Now().UTC()
	return &JobBuilder{job: model.Job{
		ID:          uuid.NewString(),
		PurchaserID: "purchaser-" + uuid.NewString()[:8],
		Input:       model.JobInput{Text: "find me a covered spot near the entrance"},
		Status:      model.JobStatusAwaitingPayment,
		StartedAt:   now,
		UpdatedAt:   now,
	}}
}

// JobBuilder builds model.Job values for tests.
type JobBuilder struct {
	job model.Job
}

// WithID sets the job ID.
func (b *JobBuilder) WithID(id string) *JobBuilder {
	b.job.ID = id
	return b
}

// WithStatus sets the job status.
func (b *JobBuilder) WithStatus(status model.JobStatus) *JobBuilder {
	b.job.Status = status
	return b
}

// WithResult sets the job result payload.
func (b *JobBuilder) WithResult(result []byte) *JobBuilder {
	b.job.Result = result
	return b
}

// WithText sets the job input text.
func (b *JobBuilder) WithText(text string) *JobBuilder {
	b.job.Input.Text = text
	return b
}

// Build returns the built job.
func (b *JobBuilder) Build() *model.Job {
	job := b.job
	return &job
}

// NewBookingPair returns an active booking and its billing session wired to
// each other, suitable for CreateWithBooking.
func NewBookingPair(spotID string) (*model.Booking, *model.BillingSession) {
	now := time.Now().UTC()
	bookingID := uuid.NewString()
	sessionID := uuid.NewString()

	booking := &model.Booking{
		BookingID:     bookingID,
		SessionID:     sessionID,
		UserID:        "user-" + uuid.NewString()[:8],
		VehicleID:     "EV-" + uuid.NewString()[:8],
		SpotID:        spotID,
		DurationHours: 2,
		Status:        model.BookingStatusActive,
		CreatedAt:     now,
	}
	session := &model.BillingSession{
		SessionID:     sessionID,
		BookingID:     bookingID,
		SpotID:        spotID,
		UserID:        booking.UserID,
		RatePerMinute: model.RatePerMinuteLovelace,
		Status:        model.SessionStatusActive,
		StartedAt:     now,
		Transactions:  []model.SessionTransaction{},
	}
	return booking, session
}
