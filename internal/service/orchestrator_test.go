package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/parkngo/parkngo-api/config"
	"github.com/parkngo/parkngo-api/internal/backoff"
	"github.com/parkngo/parkngo-api/internal/data"
	"github.com/parkngo/parkngo-api/internal/domain/model"
	apperrors "github.com/parkngo/parkngo-api/internal/errors"
	"github.com/parkngo/parkngo-api/internal/mocks"
	"github.com/parkngo/parkngo-api/internal/testutil"
)

type orchestratorFixture struct {
	svc      *JobOrchestrator
	store    *data.RedisJobStore
	payments *mocks.MockPaymentGateway
	agents   *mocks.MockAgentDirectory
	reasoner *mocks.MockReasoner
}

func testOrchestratorConfig() config.OrchestratorConfig {
	return config.OrchestratorConfig{
		AgentIdentifier:   "test-agent",
		Network:           "Preprod",
		MaxParallelJobs:   3,
		PaymentAmount:     10_000_000,
		PaymentUnit:       "lovelace",
		ExecutionAttempts: 3,
		HeartbeatInterval: time.Minute,
	}
}

func newOrchestratorFixture(t *testing.T, cfg config.OrchestratorConfig) *orchestratorFixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &orchestratorFixture{
		store:    data.NewRedisJobStore(data.JobStoreOptions{Logger: logger}),
		payments: mocks.NewMockPaymentGateway(ctrl),
		agents:   mocks.NewMockAgentDirectory(ctrl),
		reasoner: mocks.NewMockReasoner(ctrl),
	}

	svc, err := NewJobOrchestrator(JobOrchestratorOptions{
		Store:    f.store,
		Payments: f.payments,
		Reasoner: f.reasoner,
		Agents:   f.agents,
		Config:   cfg,
		Logger:   logger,
		Backoff:  backoff.NewConstant(time.Millisecond),
	})
	require.NoError(t, err)
	t.Cleanup(svc.Stop)

	f.svc = svc
	return f
}

func (f *orchestratorFixture) allowHealthyBackends() {
	f.payments.EXPECT().Health(gomock.Any()).Return(nil).AnyTimes()
	f.agents.EXPECT().EnsureLive(gomock.Any()).Return(nil).AnyTimes()
}

func (f *orchestratorFixture) allowJobEvents() {
	f.agents.EXPECT().
		NotifyJobEvent(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil).
		AnyTimes()
}

func startJobRequest() *model.StartJobRequest {
	return &model.StartJobRequest{
		PurchaserID: "purchaser-1",
		Input:       model.JobInput{Text: "find me the cheapest spot near the station"},
	}
}

func TestNewJobOrchestrator_RequiresCollaborators(t *testing.T) {
	_, err := NewJobOrchestrator(JobOrchestratorOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JobStore")
}

func TestJobOrchestrator_Availability(t *testing.T) {
	ctx := context.Background()

	t.Run("available when all probes pass", func(t *testing.T) {
		f := newOrchestratorFixture(t, testOrchestratorConfig())
		f.payments.EXPECT().Health(gomock.Any()).Return(nil)
		f.agents.EXPECT().EnsureLive(gomock.Any()).Return(nil)

		resp, err := f.svc.Availability(ctx)
		require.NoError(t, err)
		assert.True(t, resp.Available)
		assert.Empty(t, resp.Reason)
		assert.Equal(t, "Preprod", resp.Network)
		assert.Equal(t, "test-agent", resp.AgentIdentifier)
	})

	t.Run("unavailable at capacity", func(t *testing.T) {
		cfg := testOrchestratorConfig()
		cfg.MaxParallelJobs = 1
		f := newOrchestratorFixture(t, cfg)

		require.NoError(t, f.store.Save(ctx, &model.Job{
			ID:     "busy",
			Status: model.JobStatusRunning,
		}))

		resp, err := f.svc.Availability(ctx)
		require.NoError(t, err)
		assert.False(t, resp.Available)
		assert.Contains(t, resp.Reason, "at capacity")
	})

	t.Run("unavailable when payment gateway is down", func(t *testing.T) {
		f := newOrchestratorFixture(t, testOrchestratorConfig())
		f.payments.EXPECT().Health(gomock.Any()).Return(apperrors.External("payment node syncing"))

		resp, err := f.svc.Availability(ctx)
		require.NoError(t, err)
		assert.False(t, resp.Available)
		assert.Equal(t, "payment service unavailable", resp.Reason)
	})

	t.Run("unavailable when agent registry probe fails", func(t *testing.T) {
		f := newOrchestratorFixture(t, testOrchestratorConfig())
		f.payments.EXPECT().Health(gomock.Any()).Return(nil)
		f.agents.EXPECT().EnsureLive(gomock.Any()).Return(apperrors.External("agent not live"))

		resp, err := f.svc.Availability(ctx)
		require.NoError(t, err)
		assert.False(t, resp.Available)
		assert.Equal(t, "agent registry unavailable", resp.Reason)
	})
}

func TestJobOrchestrator_StartJob(t *testing.T) {
	ctx := context.Background()

	t.Run("admits a job awaiting payment", func(t *testing.T) {
		f := newOrchestratorFixture(t, testOrchestratorConfig())
		f.allowHealthyBackends()

		resp, err := f.svc.StartJob(ctx, startJobRequest())
		require.NoError(t, err)
		assert.NotEmpty(t, resp.JobID)
		assert.Equal(t, int64(10_000_000), resp.PaymentAmount)
		assert.Equal(t, "lovelace", resp.PaymentUnit)
		assert.Equal(t, model.JobStatusAwaitingPayment, resp.Status)

		job, err := f.store.Get(ctx, resp.JobID)
		require.NoError(t, err)
		assert.Equal(t, "purchaser-1", job.PurchaserID)
		assert.Equal(t, model.JobStatusAwaitingPayment, job.Status)
	})

	t.Run("rejects invalid input with no side effects", func(t *testing.T) {
		f := newOrchestratorFixture(t, testOrchestratorConfig())
		f.allowHealthyBackends()

		_, err := f.svc.StartJob(ctx, &model.StartJobRequest{PurchaserID: "p"})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))

		count, err := f.store.CountActive(ctx)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("rejects admission at capacity with conflict", func(t *testing.T) {
		cfg := testOrchestratorConfig()
		cfg.MaxParallelJobs = 1
		f := newOrchestratorFixture(t, cfg)
		f.allowHealthyBackends()

		_, err := f.svc.StartJob(ctx, startJobRequest())
		require.NoError(t, err)

		_, err = f.svc.StartJob(ctx, startJobRequest())
		require.Error(t, err)
		assert.True(t, apperrors.IsConflict(err))

		count, err := f.store.CountActive(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestJobOrchestrator_HandlePaymentWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown job", func(t *testing.T) {
		f := newOrchestratorFixture(t, testOrchestratorConfig())

		_, err := f.svc.HandlePaymentWebhook(ctx, "nope", "completed")
		require.Error(t, err)
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("failed payment fails the job", func(t *testing.T) {
		f := newOrchestratorFixture(t, testOrchestratorConfig())
		f.allowHealthyBackends()
		f.allowJobEvents()

		admitted, err := f.svc.StartJob(ctx, startJobRequest())
		require.NoError(t, err)

		resp, err := f.svc.HandlePaymentWebhook(ctx, admitted.JobID, "error")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, resp.Status)
		assert.Equal(t, "payment unsuccessful", resp.Error)
	})

	t.Run("completed payment runs the job to completion", func(t *testing.T) {
		f := newOrchestratorFixture(t, testOrchestratorConfig())
		f.allowHealthyBackends()
		f.allowJobEvents()
		f.reasoner.EXPECT().
			Summarize(gomock.Any(), gomock.Any()).
			Return("spot A1 is closest and cheapest", nil)

		admitted, err := f.svc.StartJob(ctx, startJobRequest())
		require.NoError(t, err)

		resp, err := f.svc.HandlePaymentWebhook(ctx, admitted.JobID, "completed")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusRunning, resp.Status)

		require.Eventually(t, func() bool {
			status, err := f.svc.JobStatus(ctx, admitted.JobID)
			return err == nil && status.Status == model.JobStatusCompleted
		}, 2*time.Second, 10*time.Millisecond)

		status, err := f.svc.JobStatus(ctx, admitted.JobID)
		require.NoError(t, err)

		var result map[string]any
		require.NoError(t, json.Unmarshal(status.Result, &result))
		assert.Equal(t, "spot A1 is closest and cheapest", result["summary"])
		assert.Equal(t, "0.1.0", result["version"])
	})

	t.Run("duplicate webhook does not dispatch twice", func(t *testing.T) {
		f := newOrchestratorFixture(t, testOrchestratorConfig())
		f.allowHealthyBackends()
		f.allowJobEvents()
		f.reasoner.EXPECT().
			Summarize(gomock.Any(), gomock.Any()).
			Return("done", nil).
			Times(1)

		admitted, err := f.svc.StartJob(ctx, startJobRequest())
		require.NoError(t, err)

		_, err = f.svc.HandlePaymentWebhook(ctx, admitted.JobID, "completed")
		require.NoError(t, err)

		// Second delivery sees running or completed and must not re-execute.
		resp, err := f.svc.HandlePaymentWebhook(ctx, admitted.JobID, "completed")
		require.NoError(t, err)
		assert.Contains(t,
			[]model.JobStatus{model.JobStatusRunning, model.JobStatusCompleted},
			resp.Status,
		)

		require.Eventually(t, func() bool {
			status, err := f.svc.JobStatus(ctx, admitted.JobID)
			return err == nil && status.Status == model.JobStatusCompleted
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("webhook after terminal status is a no-op", func(t *testing.T) {
		f := newOrchestratorFixture(t, testOrchestratorConfig())
		f.allowHealthyBackends()
		f.allowJobEvents()

		admitted, err := f.svc.StartJob(ctx, startJobRequest())
		require.NoError(t, err)

		_, err = f.svc.HandlePaymentWebhook(ctx, admitted.JobID, "error")
		require.NoError(t, err)

		resp, err := f.svc.HandlePaymentWebhook(ctx, admitted.JobID, "completed")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, resp.Status)
	})
}

func TestJobOrchestrator_Execute_RetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, testOrchestratorConfig())
	f.allowJobEvents()

	require.NoError(t, f.store.Save(ctx, &model.Job{
		ID:     "job-retry",
		Status: model.JobStatusRunning,
		Input:  model.JobInput{Text: "retry me"},
	}))

	gomock.InOrder(
		f.reasoner.EXPECT().Summarize(gomock.Any(), gomock.Any()).Return("", apperrors.External("backend flaked")),
		f.reasoner.EXPECT().Summarize(gomock.Any(), gomock.Any()).Return("", apperrors.External("backend flaked")),
		f.reasoner.EXPECT().Summarize(gomock.Any(), gomock.Any()).Return("third time lucky", nil),
	)

	require.NoError(t, f.svc.Execute(ctx, "job-retry"))

	job, err := f.store.Get(ctx, "job-retry")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
}

func TestJobOrchestrator_Execute_ExhaustsAttempts(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, testOrchestratorConfig())
	f.allowJobEvents()

	require.NoError(t, f.store.Save(ctx, &model.Job{
		ID:     "job-doomed",
		Status: model.JobStatusRunning,
		Input:  model.JobInput{Text: "doomed"},
	}))

	f.reasoner.EXPECT().
		Summarize(gomock.Any(), gomock.Any()).
		Return("", apperrors.External("backend down")).
		Times(3)

	err := f.svc.Execute(ctx, "job-doomed")
	require.Error(t, err)

	job, getErr := f.store.Get(ctx, "job-doomed")
	require.NoError(t, getErr)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "3 attempts")
}

func TestJobOrchestrator_Execute_TerminalJobIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, testOrchestratorConfig())

	require.NoError(t, f.store.Save(ctx, &model.Job{
		ID:     "job-done",
		Status: model.JobStatusCompleted,
	}))

	require.NoError(t, f.svc.Execute(ctx, "job-done"))
}

func TestJobOrchestrator_PaymentWindowExpiry(t *testing.T) {
	ctx := context.Background()
	cfg := testOrchestratorConfig()
	cfg.PaymentWindow = 25 * time.Millisecond
	f := newOrchestratorFixture(t, cfg)
	f.allowHealthyBackends()
	f.allowJobEvents()

	admitted, err := f.svc.StartJob(ctx, startJobRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, err := f.store.Get(ctx, admitted.JobID)
		return err == nil && job.Status == model.JobStatusCancelled
	}, 2*time.Second, 10*time.Millisecond)

	job, err := f.store.Get(ctx, admitted.JobID)
	require.NoError(t, err)
	assert.Equal(t, "payment timed out", job.Error)
}

func TestJobOrchestrator_ExpiryIsCancelledByPayment(t *testing.T) {
	ctx := context.Background()
	cfg := testOrchestratorConfig()
	cfg.PaymentWindow = 50 * time.Millisecond
	f := newOrchestratorFixture(t, cfg)
	f.allowHealthyBackends()
	f.allowJobEvents()
	f.reasoner.EXPECT().Summarize(gomock.Any(), gomock.Any()).Return("ok", nil)

	admitted, err := f.svc.StartJob(ctx, startJobRequest())
	require.NoError(t, err)

	_, err = f.svc.HandlePaymentWebhook(ctx, admitted.JobID, "completed")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)

	require.Eventually(t, func() bool {
		job, err := f.store.Get(ctx, admitted.JobID)
		return err == nil && job.Status == model.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestJobOrchestrator_ProvideInput(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, testOrchestratorConfig())
	f.allowHealthyBackends()
	f.allowJobEvents()

	admitted, err := f.svc.StartJob(ctx, startJobRequest())
	require.NoError(t, err)

	payload := json.RawMessage(`{"license_plate":"KA-01-HH-1234"}`)
	require.NoError(t, f.svc.ProvideInput(ctx, admitted.JobID, payload))

	status, err := f.svc.JobStatus(ctx, admitted.JobID)
	require.NoError(t, err)

	var result map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(status.Result, &result))
	assert.JSONEq(t, string(payload), string(result["additional_input"]))

	err = f.svc.ProvideInput(ctx, "missing", payload)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestJobOrchestrator_ProvideInputAfterCompletion(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t, testOrchestratorConfig())

	done := testutil.NewJob().
		WithStatus(model.JobStatusCompleted).
		WithResult([]byte(`{"summary":"spot A1 booked"}`)).
		Build()
	require.NoError(t, f.store.Save(ctx, done))

	err := f.svc.ProvideInput(ctx, done.ID, json.RawMessage(`{"license_plate":"KA-01-HH-1234"}`))
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))

	job, err := f.store.Get(ctx, done.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"spot A1 booked"}`, string(job.Result))
}
