package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ContestHub/internal/pkg/apperror"
	"github.com/ManuelReschke/ContestHub/internal/pkg/cache"
)

const (
	// Redis keys
	JobKeyPrefix     = "job:"
	JobQueueKey      = "job_queue"
	JobProcessingKey = "job_processing"
	JobDelayedKey    = "job_delayed" // sorted set, score = unix time the retry is due
	JobStatsKey      = "job_stats"
	JobDedupePrefix  = "job_dedupe:"

	DefaultMaxRetries = 3
	JobTTL            = 24 * time.Hour

	// StuckAfter is how long a job may sit in processing before it is requeued.
	StuckAfter = 10 * time.Minute

	promoteInterval = 5 * time.Second
	stuckInterval   = time.Minute
)

// Queue runs background jobs stored in Redis. Pending ids live in a list,
// in-flight ids in a second list so a crashed worker's job can be recovered,
// and retries wait in a sorted set until they are due.
type Queue struct {
	client     *redis.Client
	workers    int
	processors Processors
	backoff    func(attempt int) time.Duration
	now        func() time.Time

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewQueue creates a job queue on the shared cache connection.
func NewQueue(workers int) *Queue {
	return NewQueueWithClient(workers, cache.GetClient())
}

// NewQueueWithClient creates a job queue on client. Non-positive worker
// counts fall back to 3.
func NewQueueWithClient(workers int, client *redis.Client) *Queue {
	if workers <= 0 {
		workers = 3
	}
	return &Queue{
		client:  client,
		workers: workers,
		backoff: linearBackoff,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

func linearBackoff(attempt int) time.Duration {
	return time.Duration(attempt) * time.Minute
}

// SetProcessors installs the job handlers. Call before Start.
func (q *Queue) SetProcessors(p Processors) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processors = p
}

// Start launches the workers and the maintenance loop.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true

	log.Infof("[JobQueue] Starting %d workers", q.workers)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.wg.Add(1)
	go q.maintain()
}

// Stop signals all goroutines and waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return
	}

	log.Info("[JobQueue] Stopping workers...")
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[JobQueue] All workers stopped")
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			log.Debugf("[JobQueue] Worker %d stopping", id)
			return
		default:
		}

		job, err := q.dequeueJob(ctx)
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Errorf("[JobQueue] Worker %d: dequeue failed: %v", id, err)
				q.pause(time.Second)
			}
			continue
		}
		log.Debugf("[JobQueue] Worker %d processing job %s (%s)", id, job.ID, job.Type)
		q.processJob(ctx, job)
	}
}

// pause waits for d or until the queue stops.
func (q *Queue) pause(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-q.stopCh:
	case <-t.C:
	}
}

// maintain promotes due retries and recovers jobs left in processing by a
// crashed worker.
func (q *Queue) maintain() {
	defer q.wg.Done()
	ctx := context.Background()
	promote := time.NewTicker(promoteInterval)
	defer promote.Stop()
	stuck := time.NewTicker(stuckInterval)
	defer stuck.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-promote.C:
			if _, err := q.PromoteDueRetries(ctx); err != nil {
				log.Errorf("[JobQueue] Promoting retries failed: %v", err)
			}
		case <-stuck.C:
			if _, err := q.RecoverStuckJobs(ctx, StuckAfter); err != nil {
				log.Errorf("[JobQueue] Stuck job recovery failed: %v", err)
			}
		}
	}
}

// EnqueueJob stores a new job and pushes it onto the pending list.
func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload map[string]interface{}) (*Job, error) {
	now := q.now()
	job := &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
		MaxRetries: DefaultMaxRetries,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL)
	pipe.LPush(ctx, JobQueueKey, job.ID)
	pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	log.Infof("[JobQueue] Enqueued job %s (%s)", job.ID, job.Type)
	return job, nil
}

// EnqueueUniqueJob enqueues a job unless one with the same dedupe key was
// enqueued within ttl. It returns nil, nil when the job was skipped.
func (q *Queue) EnqueueUniqueJob(ctx context.Context, jobType JobType, dedupeKey string, payload map[string]interface{}, ttl time.Duration) (*Job, error) {
	key := JobDedupePrefix + string(jobType) + ":" + dedupeKey
	ok, err := q.client.SetNX(ctx, key, q.now().Unix(), ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve job key %s: %w", key, err)
	}
	if !ok {
		log.Debugf("[JobQueue] Skipping duplicate job %s", key)
		return nil, nil
	}

	job, err := q.EnqueueJob(ctx, jobType, payload)
	if err != nil {
		_ = q.client.Del(ctx, key).Err()
		return nil, err
	}
	return job, nil
}

// dequeueJob moves the next id onto the processing list and loads it. A
// timeout with nothing queued returns redis.Nil.
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	id, err := q.client.BRPopLPush(ctx, JobQueueKey, JobProcessingKey, time.Second).Result()
	if err != nil {
		return nil, err
	}
	job, err := q.loadJob(ctx, id)
	if err != nil {
		q.removeFromProcessing(ctx, id)
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	return job, nil
}

func (q *Queue) loadJob(ctx context.Context, id string) (*Job, error) {
	raw, err := q.client.Get(ctx, JobKeyPrefix+id).Bytes()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

func (q *Queue) handler(t JobType) (func(context.Context, *Job) error, bool) {
	switch t {
	case JobTypeApplyParticipation:
		return q.processApplyParticipationJob, true
	case JobTypeLedgerExport:
		return q.processLedgerExportJob, true
	}
	return nil, false
}

func (q *Queue) processJob(ctx context.Context, job *Job) {
	job.MarkAsProcessing()
	q.saveJob(ctx, job)

	var err error
	if run, ok := q.handler(job.Type); ok {
		err = run(ctx, job)
	} else {
		err = apperror.New(apperror.KindValidation, "unknown_job_type", fmt.Sprintf("unknown job type %q", job.Type))
	}

	if err == nil {
		job.MarkAsCompleted()
		log.Infof("[JobQueue] Job %s completed", job.ID)
		q.incrStat(ctx, JobStatusCompleted)
		if derr := q.client.Del(ctx, JobKeyPrefix+job.ID).Err(); derr != nil {
			log.Errorf("[JobQueue] Could not remove completed job %s: %v", job.ID, derr)
		}
		q.removeFromProcessing(ctx, job.ID)
		return
	}

	log.Errorf("[JobQueue] Job %s failed: %v", job.ID, err)
	job.MarkAsFailed(err.Error())
	if isPermanent(err) {
		job.RetryCount = job.MaxRetries
	}

	if job.IsRetryable() {
		job.MarkAsRetrying()
		due := q.now().Add(q.backoff(job.RetryCount))
		log.Infof("[JobQueue] Retrying job %s at %s (attempt %d/%d)", job.ID, due.Format(time.RFC3339), job.RetryCount, job.MaxRetries)
		if zerr := q.client.ZAdd(ctx, JobDelayedKey, redis.Z{Score: float64(due.Unix()), Member: job.ID}).Err(); zerr != nil {
			log.Errorf("[JobQueue] Could not schedule retry of %s: %v", job.ID, zerr)
		}
	} else {
		log.Errorf("[JobQueue] Job %s gave up after %d attempts", job.ID, job.RetryCount)
		q.incrStat(ctx, JobStatusFailed)
	}
	q.saveJob(ctx, job)
	q.removeFromProcessing(ctx, job.ID)
}

// isPermanent reports errors that a retry cannot fix, such as a job whose
// ledger entry does not exist.
func isPermanent(err error) bool {
	kind := apperror.KindOf(err)
	return kind != "" && !apperror.Retryable(err)
}

// PromoteDueRetries moves retries whose time has come back onto the pending
// list and returns how many were moved.
func (q *Queue) PromoteDueRetries(ctx context.Context) (int, error) {
	ids, err := q.client.ZRangeByScore(ctx, JobDelayedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().Unix(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, id := range ids {
		// ZRem decides which instance owns the promotion.
		n, err := q.client.ZRem(ctx, JobDelayedKey, id).Result()
		if err != nil {
			return moved, err
		}
		if n == 0 {
			continue
		}
		if err := q.client.LPush(ctx, JobQueueKey, id).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// RecoverStuckJobs requeues jobs that have been processing for longer than
// maxAge and drops processing entries whose job record is gone.
func (q *Queue) RecoverStuckJobs(ctx context.Context, maxAge time.Duration) (int, error) {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	now := q.now()
	recovered := 0
	for _, id := range ids {
		job, err := q.loadJob(ctx, id)
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Warnf("[JobQueue] Dropping unreadable processing entry %s: %v", id, err)
			}
			q.removeFromProcessing(ctx, id)
			continue
		}
		if job.Status != JobStatusProcessing {
			q.removeFromProcessing(ctx, id)
			continue
		}

		started := job.UpdatedAt
		if job.ProcessedAt != nil && !job.ProcessedAt.IsZero() {
			started = *job.ProcessedAt
		}
		if now.Sub(started) <= maxAge {
			continue
		}

		log.Warnf("[JobQueue] Recovering stuck job %s (%s), processing for %s", job.ID, job.Type, now.Sub(started).Round(time.Second))
		job.Status = JobStatusPending
		job.ErrorMsg = "recovered after worker timeout"
		job.UpdatedAt = now
		q.saveJob(ctx, job)

		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, JobProcessingKey, 1, id)
		pipe.RPush(ctx, JobQueueKey, id)
		if _, err := pipe.Exec(ctx); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

func (q *Queue) saveJob(ctx context.Context, job *Job) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Failed to marshal job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to save job %s: %v", job.ID, err)
	}
}

func (q *Queue) removeFromProcessing(ctx context.Context, id string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, id).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to remove job %s from processing: %v", id, err)
	}
}

func (q *Queue) incrStat(ctx context.Context, status JobStatus) {
	if err := q.client.HIncrBy(ctx, JobStatsKey, string(status), 1).Err(); err != nil {
		log.Errorf("[JobQueue] Failed to update job stats: %v", err)
	}
}

// GetJob loads a job by id. Completed jobs are deleted, so they return
// redis.Nil.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	return q.loadJob(ctx, id)
}

// GetJobStats returns the lifetime counters per status.
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	raw, err := q.client.HGetAll(ctx, JobStatsKey).Result()
	if err != nil {
		return nil, err
	}
	stats := make(map[JobStatus]int64, len(raw))
	for status, v := range raw {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			stats[JobStatus(status)] = n
		}
	}
	return stats, nil
}

// GetQueueSize returns the number of pending jobs.
func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobQueueKey).Result()
}

// GetProcessingSize returns the number of jobs being processed.
func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobProcessingKey).Result()
}

// GetDelayedSize returns the number of jobs waiting for a retry.
func (q *Queue) GetDelayedSize(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, JobDelayedKey).Result()
}
