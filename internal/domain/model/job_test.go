package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatusValid(t *testing.T) {
	for _, s := range []JobStatus{
		JobStatusAwaitingPayment, JobStatusRunning, JobStatusCompleted,
		JobStatusFailed, JobStatusCancelled,
	} {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, JobStatus("queued").Valid())
	assert.False(t, JobStatus("").Valid())
}

func TestJobStatusTerminal(t *testing.T) {
	assert.False(t, JobStatusAwaitingPayment.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
	assert.True(t, JobStatusCompleted.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.True(t, JobStatusCancelled.Terminal())
}

func TestJobStatusCanTransition(t *testing.T) {
	t.Run("awaiting_payment moves forward only", func(t *testing.T) {
		assert.True(t, JobStatusAwaitingPayment.CanTransition(JobStatusRunning))
		assert.True(t, JobStatusAwaitingPayment.CanTransition(JobStatusFailed))
		assert.True(t, JobStatusAwaitingPayment.CanTransition(JobStatusCancelled))
		assert.False(t, JobStatusAwaitingPayment.CanTransition(JobStatusCompleted))
	})

	t.Run("running completes or fails", func(t *testing.T) {
		assert.True(t, JobStatusRunning.CanTransition(JobStatusCompleted))
		assert.True(t, JobStatusRunning.CanTransition(JobStatusFailed))
		assert.False(t, JobStatusRunning.CanTransition(JobStatusCancelled))
		assert.False(t, JobStatusRunning.CanTransition(JobStatusAwaitingPayment))
	})

	t.Run("terminal states permit nothing", func(t *testing.T) {
		for _, terminal := range []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled} {
			for _, next := range []JobStatus{
				JobStatusAwaitingPayment, JobStatusRunning, JobStatusCompleted,
				JobStatusFailed, JobStatusCancelled,
			} {
				assert.False(t, terminal.CanTransition(next), "%s -> %s", terminal, next)
			}
		}
	})
}

func TestStartJobRequestValidate(t *testing.T) {
	req := StartJobRequest{
		PurchaserID: "abc123def456",
		Input:       JobInput{Text: "analyze spot A1"},
	}
	assert.NoError(t, req.Validate())

	missing := StartJobRequest{Input: JobInput{Text: "x"}}
	assert.Error(t, missing.Validate())

	noText := StartJobRequest{PurchaserID: "abc"}
	assert.Error(t, noText.Validate())
}
