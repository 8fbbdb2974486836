package queue

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(rdb, "test_queue", "test_retry_queue", logger), mr
}

func TestJobRoundTrip(t *testing.T) {
	payload := []byte("fake image bytes")
	job := NewJob("garment-1", "user-1", payload, "shirt.jpg", "image/jpeg", false)

	record, err := job.Encode()
	require.NoError(t, err)

	decoded, err := DecodeJob(record)
	require.NoError(t, err)

	assert.Equal(t, job.JobID, decoded.JobID)
	assert.Equal(t, job.OwnerID, decoded.OwnerID)
	assert.Equal(t, job.FileName, decoded.FileName)
	assert.Equal(t, job.ContentType, decoded.ContentType)
	assert.Equal(t, 0, decoded.AttemptCount)
	assert.False(t, decoded.Priority)
	assert.Nil(t, decoded.RetryAt)

	content, err := decoded.DecodePayload()
	require.NoError(t, err)
	assert.Equal(t, payload, content)
}

func TestDecodeJob_Malformed(t *testing.T) {
	_, err := DecodeJob("not json at all")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode job record")
}

func TestJob_MarkRetry(t *testing.T) {
	job := NewJob("garment-1", "user-1", []byte("x"), "a.png", "image/png", false)

	require.Equal(t, 0, job.AttemptCount)
	require.Nil(t, job.RetryAt)

	job.MarkRetry()
	assert.Equal(t, 1, job.AttemptCount)
	require.NotNil(t, job.RetryAt)

	job.MarkRetry()
	assert.Equal(t, 2, job.AttemptCount)
}

func TestQueue_FIFOOrder(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		job := NewJob(id, "user-1", []byte("img"), id+".jpg", "image/jpeg", false)
		require.NoError(t, q.Push(ctx, job, false))
	}

	for _, want := range []string{"a", "b", "c"} {
		job, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, want, job.JobID)
	}
}

func TestQueue_PriorityBeforeNormal(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	// J1 enqueued normal, then J2 enqueued priority. J2 must be delivered first.
	j1 := NewJob("j1", "user-1", []byte("img"), "j1.jpg", "image/jpeg", false)
	require.NoError(t, q.Push(ctx, j1, false))

	j2 := NewJob("j2", "user-1", []byte("img"), "j2.jpg", "image/jpeg", true)
	require.NoError(t, q.Push(ctx, j2, true))

	first, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "j2", first.JobID)

	second, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "j1", second.JobID)
}

func TestQueue_PriorityJobsAreLIFOAmongThemselves(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	// Head insertion means the most recent priority job is delivered first.
	for _, id := range []string{"p1", "p2"} {
		job := NewJob(id, "user-1", []byte("img"), id+".jpg", "image/jpeg", true)
		require.NoError(t, q.Push(ctx, job, true))
	}

	first, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "p2", first.JobID)
}

func TestQueue_PopTimeout(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	start := time.Now()
	job, err := q.Pop(ctx, time.Second)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Nil(t, job)
	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond)
	assert.Less(t, elapsed, 3*time.Second)
}

func TestQueue_ExactlyOneConsumerReceivesJob(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	type result struct {
		job *Job
		err error
	}
	results := make(chan result, 2)

	for i := 0; i < 2; i++ {
		go func() {
			job, err := q.Pop(ctx, 3*time.Second)
			results <- result{job, err}
		}()
	}

	// Give both consumers time to block, then enqueue a single job.
	time.Sleep(100 * time.Millisecond)
	job := NewJob("only-job", "user-1", []byte("img"), "a.jpg", "image/jpeg", false)
	require.NoError(t, q.Push(ctx, job, false))

	var received int
	for i := 0; i < 2; i++ {
		r := <-results
		require.NoError(t, r.err)
		if r.job != nil {
			received++
			assert.Equal(t, "only-job", r.job.JobID)
		}
	}

	assert.Equal(t, 1, received)
}

func TestQueue_RetryQueue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	job := NewJob("retry-me", "user-1", []byte("img"), "a.jpg", "image/jpeg", false)
	job.MarkRetry()
	require.NoError(t, q.PushRetry(ctx, job))

	// Main queue stays empty.
	main, err := q.Pop(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, main)

	popped, err := q.PopRetry(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, "retry-me", popped.JobID)
	assert.Equal(t, 1, popped.AttemptCount)
	assert.NotNil(t, popped.RetryAt)
}

func TestQueue_Stats(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.MainQueueLength)
	assert.Zero(t, stats.RetryQueueLength)
	assert.Zero(t, stats.TotalPending)

	for i := 0; i < 3; i++ {
		job := NewJob("m", "user-1", []byte("img"), "a.jpg", "image/jpeg", false)
		require.NoError(t, q.Push(ctx, job, false))
	}
	retryJob := NewJob("r", "user-1", []byte("img"), "a.jpg", "image/jpeg", false)
	require.NoError(t, q.PushRetry(ctx, retryJob))

	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.MainQueueLength)
	assert.Equal(t, int64(1), stats.RetryQueueLength)
	assert.Equal(t, int64(4), stats.TotalPending)
	assert.False(t, stats.Timestamp.IsZero())
}

func TestQueue_Clear(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		job := NewJob("x", "user-1", []byte("img"), "a.jpg", "image/jpeg", false)
		require.NoError(t, q.Push(ctx, job, false))
	}

	removed, err := q.Clear(ctx, q.QueueName())
	require.NoError(t, err)
	assert.Equal(t, int64(5), removed)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.MainQueueLength)

	// Clearing an empty queue removes nothing.
	removed, err = q.Clear(ctx, q.QueueName())
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestQueue_UnavailableBackend(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	mr.Close()

	job := NewJob("x", "user-1", []byte("img"), "a.jpg", "image/jpeg", false)

	err := q.Push(ctx, job, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueUnavailable)

	_, err = q.Pop(ctx, 100*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueUnavailable)

	_, err = q.Stats(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueueUnavailable)

	require.Error(t, q.HealthCheck(ctx))
}
