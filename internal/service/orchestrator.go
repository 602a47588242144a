package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parkngo/parkngo-api/config"
	"github.com/parkngo/parkngo-api/internal/backoff"
	"github.com/parkngo/parkngo-api/internal/core"
	"github.com/parkngo/parkngo-api/internal/data"
	"github.com/parkngo/parkngo-api/internal/domain/model"
	apperrors "github.com/parkngo/parkngo-api/internal/errors"
	"github.com/parkngo/parkngo-api/internal/observability/metrics"
	"github.com/parkngo/parkngo-api/internal/observability/notify"
	"github.com/parkngo/parkngo-api/internal/observability/statsd"
	"github.com/parkngo/parkngo-api/internal/service/statusnotifier"
)

// orchestratorVersion is reported in job results and capability payloads.
const orchestratorVersion = "0.1.0"

// expiryOpTimeout bounds the store work done when an expiry timer fires.
const expiryOpTimeout = 10 * time.Second

// JobOrchestratorOptions groups dependencies for JobOrchestrator.
type JobOrchestratorOptions struct {
	Store    core.JobStore             // Required: job persistence
	Payments core.PaymentGateway       // Required: payment network facade
	Reasoner core.Reasoner             // Required: reasoning backend
	Agents   core.AgentDirectory       // Optional: registry liveness probe and event feed
	Notifier *statusnotifier.Service   // Optional: status ping fan-out
	Config   config.OrchestratorConfig // Required: admission and execution tuning
	// PaymentWindow is how long a job may await payment before cancellation.
	// Used when Config.PaymentWindow is zero; typically the job store TTL.
	PaymentWindow time.Duration
	Logger        *slog.Logger      // Optional: structured logger
	Metrics       statsd.Sink       // Optional: metrics sink (StatsD-compatible)
	Backoff       backoff.Strategy  // Optional: retry delays for execution
	TimeProvider  data.TimeProvider // Optional: clock, defaults to real time
}

// JobOrchestrator admits paid jobs, tracks them through the payment gate,
// and executes them against the reasoning backend once payment settles.
//
// Jobs that never receive payment are cancelled by a per-job expiry timer.
// Execution is dispatched exactly once, by whichever webhook delivery wins
// the awaiting_payment -> running transition.
type JobOrchestrator struct {
	store        core.JobStore
	payments     core.PaymentGateway
	reasoner     core.Reasoner
	agents       core.AgentDirectory
	notifier     *statusnotifier.Service
	config       config.OrchestratorConfig
	window       time.Duration
	logger       *slog.Logger
	metrics      statsd.Sink
	backoff      backoff.Strategy
	timeProvider data.TimeProvider

	mu       sync.Mutex
	expiries map[string]*time.Timer
	stopped  bool

	execWG sync.WaitGroup
}

// NewJobOrchestrator constructs a new JobOrchestrator.
func NewJobOrchestrator(opts JobOrchestratorOptions) (*JobOrchestrator, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Payments == nil {
		return nil, errors.New("PaymentGateway is required")
	}
	if opts.Reasoner == nil {
		return nil, errors.New("Reasoner is required")
	}

	window := opts.Config.PaymentWindow
	if window <= 0 {
		window = opts.PaymentWindow
	}
	if window <= 0 {
		window = time.Hour
	}

	strategy := opts.Backoff
	if strategy == nil {
		strategy = backoff.DefaultExecution()
	}

	timeProvider := opts.TimeProvider
	if timeProvider == nil {
		timeProvider = &data.RealTimeProvider{}
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "job_orchestrator")
		logger.Debug("JobOrchestrator initialized",
			"max_parallel_jobs", opts.Config.MaxParallelJobs,
			"payment_window", window,
			"execution_attempts", opts.Config.ExecutionAttempts,
		)
	}

	return &JobOrchestrator{
		store:        opts.Store,
		payments:     opts.Payments,
		reasoner:     opts.Reasoner,
		agents:       opts.Agents,
		notifier:     opts.Notifier,
		config:       opts.Config,
		window:       window,
		logger:       logger,
		metrics:      opts.Metrics,
		backoff:      strategy,
		timeProvider: timeProvider,
		expiries:     make(map[string]*time.Timer),
	}, nil
}

// Availability reports whether the orchestrator can admit a new job. It is
// unavailable when the active job count has reached the parallelism limit,
// when the payment gateway health probe fails, or when the agent registry
// does not report this orchestrator as live.
func (s *JobOrchestrator) Availability(ctx context.Context) (*model.AvailabilityResponse, error) {
	resp := &model.AvailabilityResponse{
		Network:         s.config.Network,
		AgentIdentifier: s.config.AgentIdentifier,
	}

	active, err := s.store.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("count active jobs: %w", err)
	}
	if active >= s.config.MaxParallelJobs {
		resp.Reason = fmt.Sprintf("at capacity: %d active jobs", active)
		return resp, nil
	}

	if err := s.payments.Health(ctx); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "payment gateway health probe failed", "error", err)
		}
		resp.Reason = "payment service unavailable"
		return resp, nil
	}

	if s.agents != nil {
		if err := s.agents.EnsureLive(ctx); err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "agent registry liveness probe failed", "error", err)
			}
			resp.Reason = "agent registry unavailable"
			return resp, nil
		}
	}

	resp.Available = true
	return resp, nil
}

// StartJob admits a new job in awaiting_payment status and schedules its
// payment expiry timer. Admission is refused with a conflict error when the
// orchestrator is unavailable; a refused request has no side effects.
func (s *JobOrchestrator) StartJob(ctx context.Context, req *model.StartJobRequest) (*model.StartJobResponse, error) {
	avail, err := s.Availability(ctx)
	if err != nil {
		return nil, err
	}
	if !avail.Available {
		return nil, apperrors.Conflictf("cannot accept job: %s", avail.Reason)
	}

	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	now := s.timeProvider.Now()
	job := &model.Job{
		ID:          uuid.NewString(),
		PurchaserID: req.PurchaserID,
		Input:       req.Input,
		Status:      model.JobStatusAwaitingPayment,
		StartedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}

	s.scheduleExpiry(job.ID)
	s.notifyJob(ctx, job.ID, model.JobStatusAwaitingPayment, "job admitted, awaiting payment")
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Status: string(model.JobStatusAwaitingPayment),
		Result: metrics.ResultSuccess,
	})

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job admitted",
			"job_id", job.ID,
			"purchaser_id", job.PurchaserID,
			"payment_amount", s.config.PaymentAmount,
		)
	}

	return &model.StartJobResponse{
		JobID:         job.ID,
		PaymentAmount: s.config.PaymentAmount,
		PaymentUnit:   s.config.PaymentUnit,
		Status:        job.Status,
	}, nil
}

// HandlePaymentWebhook applies a settlement notification from the payment
// gateway. Terminal jobs are left untouched and their current status is
// returned. A non-completed settlement fails the job; a completed one moves
// it to running and dispatches execution in the background, exactly once.
func (s *JobOrchestrator) HandlePaymentWebhook(ctx context.Context, jobID, paymentStatus string) (*model.JobStatusResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status.Terminal() || job.Status == model.JobStatusRunning {
		return jobStatusResponse(job), nil
	}

	if paymentStatus != string(model.JobStatusCompleted) {
		failed, err := s.failJob(ctx, jobID, "payment unsuccessful")
		if err != nil {
			return nil, err
		}
		s.cancelExpiry(jobID)
		return jobStatusResponse(failed), nil
	}

	running := model.JobStatusRunning
	updated, err := s.store.Update(ctx, jobID, model.JobUpdate{Status: &running})
	if err != nil {
		if apperrors.IsConflict(err) {
			// Lost the transition race; report whatever state won.
			return s.JobStatus(ctx, jobID)
		}
		return nil, fmt.Errorf("mark job running: %w", err)
	}

	s.cancelExpiry(jobID)
	s.notifyJob(ctx, jobID, model.JobStatusRunning, "payment confirmed")
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Status: string(model.JobStatusRunning),
		Result: metrics.ResultSuccess,
	})

	s.execWG.Add(1)
	go func() {
		defer s.execWG.Done()
		if err := s.Execute(context.WithoutCancel(ctx), jobID); err != nil {
			if s.logger != nil {
				s.logger.Error("job execution failed", "job_id", jobID, "error", err)
			}
		}
	}()

	return jobStatusResponse(updated), nil
}

// Execute runs the reasoning backend for a job, retrying transient failures
// with exponential backoff. It is a no-op for terminal jobs.
func (s *JobOrchestrator) Execute(ctx context.Context, jobID string) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Status: string(job.Status),
			Result: metrics.ResultNoop,
		})
		return nil
	}

	start := s.timeProvider.Now()
	summary, execErr := s.summarizeWithRetry(ctx, job)
	duration := s.timeProvider.Now().Sub(start)

	if execErr != nil {
		if _, err := s.failJob(ctx, jobID, execErr.Error()); err != nil {
			return err
		}
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Status:   string(model.JobStatusFailed),
			Result:   metrics.ResultError,
			Duration: duration,
			Err:      execErr,
		})
		return fmt.Errorf("execute job %s: %w", jobID, execErr)
	}

	result, err := json.Marshal(map[string]any{
		"summary": summary,
		"inputs":  job.Input,
		"version": orchestratorVersion,
	})
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}

	completed := model.JobStatusCompleted
	if _, err := s.store.Update(ctx, jobID, model.JobUpdate{Status: &completed, Result: result}); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	s.notifyJob(ctx, jobID, model.JobStatusCompleted, "")
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Status:   string(model.JobStatusCompleted),
		Result:   metrics.ResultSuccess,
		Duration: duration,
	})

	if s.logger != nil {
		s.logger.InfoContext(ctx, "job completed", "job_id", jobID, "duration", duration)
	}
	return nil
}

// summarizeWithRetry calls the reasoning backend up to the configured number
// of attempts, sleeping per the backoff strategy between failures.
func (s *JobOrchestrator) summarizeWithRetry(ctx context.Context, job *model.Job) (string, error) {
	attempts := s.config.ExecutionAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		summary, err := s.reasoner.Summarize(ctx, job.Input)
		if err == nil {
			return summary, nil
		}
		lastErr = err

		if s.logger != nil {
			s.logger.WarnContext(ctx, "reasoning attempt failed",
				"job_id", job.ID,
				"attempt", attempt,
				"max_attempts", attempts,
				"error", err,
			)
		}

		if attempt == attempts {
			break
		}
		select {
		case <-time.After(s.backoff.Delay(attempt)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("reasoning failed after %d attempts: %w", attempts, lastErr)
}

// ProvideInput merges supplementary purchaser data into the job result under
// the additional_input key. Jobs in a terminal status reject further input.
func (s *JobOrchestrator) ProvideInput(ctx context.Context, jobID string, input json.RawMessage) error {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return apperrors.Conflictf("job %s is %s and no longer accepts input", jobID, job.Status)
	}

	merged := map[string]json.RawMessage{}
	if len(job.Result) > 0 {
		if err := json.Unmarshal(job.Result, &merged); err != nil {
			return apperrors.Wrapf(err, apperrors.ErrCodeInternal, "job %s has a non-object result", jobID)
		}
	}
	merged["additional_input"] = input

	result, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal merged result: %w", err)
	}

	if _, err := s.store.Update(ctx, jobID, model.JobUpdate{Result: result}); err != nil {
		return fmt.Errorf("store additional input: %w", err)
	}
	return nil
}

// JobStatus reports the live state of a job.
func (s *JobOrchestrator) JobStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return jobStatusResponse(job), nil
}

// Run sends periodic status pings to the monitor until the context is
// cancelled. Returns nil on graceful shutdown.
func (s *JobOrchestrator) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting orchestrator heartbeat", "interval", s.config.HeartbeatInterval)
	}

	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	s.heartbeat(ctx)

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.heartbeat(ctx)
		}
	}
}

// Stop cancels all pending expiry timers and waits for in-flight executions.
func (s *JobOrchestrator) Stop() {
	s.mu.Lock()
	s.stopped = true
	for id, timer := range s.expiries {
		timer.Stop()
		delete(s.expiries, id)
	}
	s.mu.Unlock()

	s.execWG.Wait()
}

func (s *JobOrchestrator) heartbeat(ctx context.Context) {
	active, err := s.store.CountActive(ctx)
	healthy := err == nil
	detail := ""
	if err != nil {
		detail = err.Error()
	}

	if s.notifier != nil {
		s.notifier.NotifyStatus(ctx, notify.StatusPing{
			Component:  "job_orchestrator",
			Healthy:    healthy,
			Detail:     detail,
			ActiveJobs: active,
			OccurredAt: s.timeProvider.Now(),
		})
	}
	if s.metrics != nil {
		s.metrics.Gauge("job.active", float64(active), nil)
	}
}

// scheduleExpiry registers a cancellable timer that cancels the job when the
// payment window elapses without settlement.
func (s *JobOrchestrator) scheduleExpiry(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if prev, ok := s.expiries[jobID]; ok {
		prev.Stop()
	}
	s.expiries[jobID] = time.AfterFunc(s.window, func() {
		s.expireJob(jobID)
	})
}

func (s *JobOrchestrator) cancelExpiry(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.expiries[jobID]; ok {
		timer.Stop()
		delete(s.expiries, jobID)
	}
}

// expireJob fires when a payment window lapses. Only jobs still awaiting
// payment are cancelled; anything else is a no-op.
func (s *JobOrchestrator) expireJob(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), expiryOpTimeout)
	defer cancel()

	s.mu.Lock()
	delete(s.expiries, jobID)
	s.mu.Unlock()

	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		if !errors.Is(err, data.ErrJobNotFound) && s.logger != nil {
			s.logger.Error("expiry read failed", "job_id", jobID, "error", err)
		}
		return
	}
	if job.Status != model.JobStatusAwaitingPayment {
		return
	}

	cancelled := model.JobStatusCancelled
	msg := "payment timed out"
	if _, err := s.store.Update(ctx, jobID, model.JobUpdate{Status: &cancelled, Error: &msg}); err != nil {
		if !apperrors.IsConflict(err) && s.logger != nil {
			s.logger.Error("expiry cancel failed", "job_id", jobID, "error", err)
		}
		return
	}

	s.notifyJob(ctx, jobID, model.JobStatusCancelled, msg)
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Status: string(model.JobStatusCancelled),
		Result: metrics.ResultSuccess,
	})
	if s.logger != nil {
		s.logger.Info("job cancelled after payment window lapsed", "job_id", jobID, "window", s.window)
	}
}

// failJob moves a job to failed with the given message.
func (s *JobOrchestrator) failJob(ctx context.Context, jobID, msg string) (*model.Job, error) {
	failed := model.JobStatusFailed
	job, err := s.store.Update(ctx, jobID, model.JobUpdate{Status: &failed, Error: &msg})
	if err != nil {
		return nil, fmt.Errorf("fail job: %w", err)
	}
	s.notifyJob(ctx, jobID, model.JobStatusFailed, msg)
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Status: string(model.JobStatusFailed),
		Result: metrics.ResultError,
		Err:    errors.New(msg),
	})
	return job, nil
}

// notifyJob fans a lifecycle event out to the registered sinks. Best effort;
// delivery failures never affect job state.
func (s *JobOrchestrator) notifyJob(ctx context.Context, jobID string, status model.JobStatus, detail string) {
	if s.notifier == nil || !s.notifier.Enabled() {
		return
	}
	s.notifier.NotifyJobEvent(ctx, notify.JobEventPayload{
		JobID:      jobID,
		Status:     string(status),
		Detail:     detail,
		OccurredAt: s.timeProvider.Now(),
	})
}

func (s *JobOrchestrator) getJob(ctx context.Context, jobID string) (*model.Job, error) {
	if jobID == "" {
		return nil, apperrors.Validation("job_id is required")
	}
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, apperrors.NotFoundf("job %s not found", jobID)
		}
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

func jobStatusResponse(job *model.Job) *model.JobStatusResponse {
	return &model.JobStatusResponse{
		JobID:     job.ID,
		Status:    job.Status,
		Result:    job.Result,
		Error:     job.Error,
		StartedAt: job.StartedAt,
		UpdatedAt: job.UpdatedAt,
	}
}
