package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/parkngo/parkngo-api/internal/errors"
	"github.com/parkngo/parkngo-api/internal/domain/model"
)

const (
	jobKeyPrefix  = "parkngo:job:"
	defaultJobTTL = 24 * time.Hour

	// pingTimeout bounds the reachability probe at construction.
	pingTimeout = 2 * time.Second

	// scanBatchSize is the SCAN page size and the pipeline batch for
	// CountActive reads.
	scanBatchSize = 100
)

// RedisJobStore persists jobs in Redis with a TTL and keeps a write-through
// in-process cache in front of it. When Redis is unreachable at construction
// the store runs in a degraded cache-only mode: jobs survive only for the
// lifetime of the process and Durable reports false.
type RedisJobStore struct {
	client       redis.UniversalClient
	ttl          time.Duration
	durable      bool
	logger       *slog.Logger
	timeProvider TimeProvider

	mu    sync.RWMutex
	cache map[string]*model.Job
}

// JobStoreOptions groups dependencies for NewRedisJobStore.
type JobStoreOptions struct {
	Client       redis.UniversalClient
	TTL          time.Duration
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// NewRedisJobStore creates a job store backed by the given Redis client. A
// nil client or a failed reachability probe yields a degraded store rather
// than an error so the service can keep accepting jobs through an outage.
func NewRedisJobStore(opts JobStoreOptions) *RedisJobStore {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "job_store")

	tp := opts.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultJobTTL
	}

	s := &RedisJobStore{
		client:       opts.Client,
		ttl:          ttl,
		logger:       logger,
		timeProvider: tp,
		cache:        make(map[string]*model.Job),
	}

	if opts.Client == nil {
		logger.Warn("no redis client configured, running in cache-only mode")
		return s
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := opts.Client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, running in cache-only mode", "err", err)
		return s
	}

	s.durable = true
	return s
}

// Durable reports whether writes reach Redis or only the in-process cache.
func (s *RedisJobStore) Durable() bool {
	return s.durable
}

// Save writes the job to the cache and, when durable, to Redis with the
// store TTL.
func (s *RedisJobStore) Save(ctx context.Context, job *model.Job) error {
	if job == nil {
		return errors.New("job is required")
	}
	if job.ID == "" {
		return ErrJobIDRequired
	}

	s.mu.Lock()
	s.cache[job.ID] = cloneJob(job)
	s.mu.Unlock()

	if !s.durable {
		return nil
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if err := s.client.Set(ctx, jobKeyPrefix+job.ID, payload, s.ttl).Err(); err != nil {
		// The cache already holds the write; surface the loss of durability
		// but keep serving.
		s.logger.Error("redis write failed, job held in cache only", "job_id", job.ID, "err", err)
		return nil
	}
	return nil
}

// Get retrieves a job by ID, trying the cache first and falling back to
// Redis. A Redis hit repopulates the cache.
func (s *RedisJobStore) Get(ctx context.Context, id string) (*model.Job, error) {
	if id == "" {
		return nil, ErrJobIDRequired
	}

	s.mu.RLock()
	cached, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return cloneJob(cached), nil
	}

	if !s.durable {
		return nil, ErrJobNotFound
	}

	payload, err := s.client.Get(ctx, jobKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("redis get job %s: %w", id, err)
	}

	var job model.Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}

	s.mu.Lock()
	s.cache[id] = cloneJob(&job)
	s.mu.Unlock()

	return &job, nil
}

// Update applies a partial update to a job and saves the result. Status
// changes must follow the job state machine; an illegal transition is
// rejected with a conflict error. A job in a terminal status is immutable:
// any further mutation, status-bearing or not, is a conflict.
func (s *RedisJobStore) Update(ctx context.Context, id string, upd model.JobUpdate) (*model.Job, error) {
	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if job.Status.Terminal() {
		return nil, apperrors.Conflictf("job %s is %s and can no longer change", id, job.Status)
	}

	if upd.Status != nil && *upd.Status != job.Status {
		if !job.Status.CanTransition(*upd.Status) {
			return nil, apperrors.Conflictf(
				"illegal status transition %s -> %s for job %s", job.Status, *upd.Status, id)
		}
		job.Status = *upd.Status
	}
	if upd.Result != nil {
		job.Result = upd.Result
	}
	if upd.Error != nil {
		job.Error = *upd.Error
	}
	job.UpdatedAt = s.timeProvider.Now().UTC()

	if err := s.Save(ctx, job); err != nil {
		return nil, err
	}
	return cloneJob(job), nil
}

// CountActive returns the number of jobs in a non-terminal status. In
// durable mode Redis is the source of truth so counts survive restarts; in
// cache-only mode the in-process cache is all there is.
func (s *RedisJobStore) CountActive(ctx context.Context) (int, error) {
	if !s.durable {
		s.mu.RLock()
		defer s.mu.RUnlock()
		count := 0
		for _, job := range s.cache {
			if !job.Status.Terminal() {
				count++
			}
		}
		return count, nil
	}

	count := 0
	keys := make([]string, 0, scanBatchSize)
	iter := s.client.Scan(ctx, 0, jobKeyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == scanBatchSize {
			n, err := s.countActiveBatch(ctx, keys)
			if err != nil {
				return 0, err
			}
			count += n
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan jobs: %w", err)
	}

	n, err := s.countActiveBatch(ctx, keys)
	if err != nil {
		return 0, err
	}
	return count + n, nil
}

// countActiveBatch fetches one batch of job records in a single pipelined
// round trip and counts the non-terminal ones. Pipelined GETs stay valid in
// cluster mode, where a cross-slot MGET would not.
func (s *RedisJobStore) countActiveBatch(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("redis batch get jobs: %w", err)
	}

	count := 0
	for i, cmd := range cmds {
		payload, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Expired between SCAN and GET.
				continue
			}
			return 0, fmt.Errorf("redis get job %s: %w",
				strings.TrimPrefix(keys[i], jobKeyPrefix), err)
		}
		var job model.Job
		if err := json.Unmarshal(payload, &job); err != nil {
			return 0, fmt.Errorf("unmarshal job %s: %w",
				strings.TrimPrefix(keys[i], jobKeyPrefix), err)
		}
		if !job.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

func cloneJob(job *model.Job) *model.Job {
	clone := *job
	if job.Result != nil {
		clone.Result = append(json.RawMessage(nil), job.Result...)
	}
	return &clone
}
