package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueUnavailable is returned when the backing Redis store cannot be
// reached. Callers treat it as fatal at startup and transient mid-loop.
var ErrQueueUnavailable = errors.New("queue unavailable")

// Stats holds the current lengths of both queues.
type Stats struct {
	MainQueueLength  int64     `json:"main_queue_length"`
	RetryQueueLength int64     `json:"retry_queue_length"`
	TotalPending     int64     `json:"total_pending"`
	Timestamp        time.Time `json:"timestamp"`
}

// Queue is the durable job queue pair (main + retry) over Redis lists.
//
// Ordering: RPUSH appends normal jobs to the tail, LPUSH inserts priority jobs
// at the head, and BLPOP removes from the head, so FIFO holds within each
// priority tier and a priority job always precedes previously queued normal
// jobs. BLPOP is atomic, so each waiting job is delivered to exactly one of
// any number of concurrent consumers.
type Queue struct {
	rdb       *redis.Client
	queueName string
	retryName string
	logger    *slog.Logger
}

// New creates a Queue over the given Redis client and list names.
func New(rdb *redis.Client, queueName, retryQueueName string, logger *slog.Logger) *Queue {
	return &Queue{
		rdb:       rdb,
		queueName: queueName,
		retryName: retryQueueName,
		logger:    logger,
	}
}

// QueueName returns the main queue's list name.
func (q *Queue) QueueName() string { return q.queueName }

// RetryQueueName returns the retry queue's list name.
func (q *Queue) RetryQueueName() string { return q.retryName }

// Push enqueues a job on the main queue. priority=true inserts at the head so
// the job is delivered before all normal-priority jobs already waiting.
func (q *Queue) Push(ctx context.Context, job *Job, priority bool) error {
	record, err := job.Encode()
	if err != nil {
		return err
	}

	if priority {
		err = q.rdb.LPush(ctx, q.queueName, record).Err()
	} else {
		err = q.rdb.RPush(ctx, q.queueName, record).Err()
	}
	if err != nil {
		return fmt.Errorf("%w: failed to push job %s: %v", ErrQueueUnavailable, job.JobID, err)
	}

	q.logger.Info("Job pushed to queue",
		slog.String("job_id", job.JobID),
		slog.String("queue", q.queueName),
		slog.Bool("priority", priority),
	)

	return nil
}

// PushRetry enqueues a job on the retry queue at normal priority.
func (q *Queue) PushRetry(ctx context.Context, job *Job) error {
	record, err := job.Encode()
	if err != nil {
		return err
	}

	if err := q.rdb.RPush(ctx, q.retryName, record).Err(); err != nil {
		return fmt.Errorf("%w: failed to push retry job %s: %v", ErrQueueUnavailable, job.JobID, err)
	}

	q.logger.Info("Job pushed to retry queue",
		slog.String("job_id", job.JobID),
		slog.String("queue", q.retryName),
		slog.Int("attempt_count", job.AttemptCount),
	)

	return nil
}

// Pop blocks until a job is available on the main queue or the timeout
// elapses. A timeout returns (nil, nil); it is the idle path, not an error.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	return q.pop(ctx, q.queueName, timeout)
}

// PopRetry blocks on the retry queue with the given timeout.
func (q *Queue) PopRetry(ctx context.Context, timeout time.Duration) (*Job, error) {
	return q.pop(ctx, q.retryName, timeout)
}

func (q *Queue) pop(ctx context.Context, name string, timeout time.Duration) (*Job, error) {
	vals, err := q.rdb.BLPop(ctx, timeout, name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Timed out with no job available.
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to pop from %s: %v", ErrQueueUnavailable, name, err)
	}
	if len(vals) < 2 {
		return nil, fmt.Errorf("unexpected BLPOP response from %s: %v", name, vals)
	}

	job, err := DecodeJob(vals[1])
	if err != nil {
		// The entry is already removed from the list; all we can do is report it.
		return nil, err
	}

	q.logger.Debug("Job popped from queue",
		slog.String("job_id", job.JobID),
		slog.String("queue", name),
		slog.Int("attempt_count", job.AttemptCount),
	)

	return job, nil
}

// Stats returns the current lengths of both queues. It never blocks on jobs;
// transient unreachability is surfaced as an error value.
func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	mainLen, err := q.rdb.LLen(ctx, q.queueName).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read queue stats: %v", ErrQueueUnavailable, err)
	}

	retryLen, err := q.rdb.LLen(ctx, q.retryName).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read retry queue stats: %v", ErrQueueUnavailable, err)
	}

	return &Stats{
		MainQueueLength:  mainLen,
		RetryQueueLength: retryLen,
		TotalPending:     mainLen + retryLen,
		Timestamp:        time.Now().UTC(),
	}, nil
}

// Clear removes all entries from the named queue and returns the entry count.
// Maintenance only; never used in the processing hot path.
func (q *Queue) Clear(ctx context.Context, name string) (int64, error) {
	count, err := q.rdb.LLen(ctx, name).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read queue length: %v", ErrQueueUnavailable, err)
	}

	if err := q.rdb.Del(ctx, name).Err(); err != nil {
		return 0, fmt.Errorf("%w: failed to clear queue %s: %v", ErrQueueUnavailable, name, err)
	}

	q.logger.Info("Queue cleared",
		slog.String("queue", name),
		slog.Int64("jobs_removed", count),
	)

	return count, nil
}

// HealthCheck verifies the backing store is reachable.
func (q *Queue) HealthCheck(ctx context.Context) error {
	if err := q.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}
