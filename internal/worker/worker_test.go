package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wardroberry/wardroberry/internal/events"
	"github.com/wardroberry/wardroberry/internal/queue"
	"github.com/wardroberry/wardroberry/internal/worker/domain"
)

// fakeStatusStore records every status transition applied to each garment.
type fakeStatusStore struct {
	mu          sync.Mutex
	transitions map[string][]domain.ProcessingStatus
	errorMsgs   map[string]string
	attrs       map[string]*domain.Attributes
	assetRefs   map[string]string
	healthErr   error
}

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{
		transitions: make(map[string][]domain.ProcessingStatus),
		errorMsgs:   make(map[string]string),
		attrs:       make(map[string]*domain.Attributes),
		assetRefs:   make(map[string]string),
	}
}

func (f *fakeStatusStore) SetProcessing(ctx context.Context, garmentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions[garmentID] = append(f.transitions[garmentID], domain.StatusProcessing)
	return nil
}

func (f *fakeStatusStore) SetCompleted(ctx context.Context, garmentID, assetRef string, attrs *domain.Attributes) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions[garmentID] = append(f.transitions[garmentID], domain.StatusCompleted)
	f.attrs[garmentID] = attrs
	f.assetRefs[garmentID] = assetRef
	f.errorMsgs[garmentID] = ""
	return nil
}

func (f *fakeStatusStore) SetFailed(ctx context.Context, garmentID, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions[garmentID] = append(f.transitions[garmentID], domain.StatusFailed)
	f.errorMsgs[garmentID] = errorMessage
	return nil
}

func (f *fakeStatusStore) HealthCheck(ctx context.Context) error {
	return f.healthErr
}

func (f *fakeStatusStore) history(garmentID string) []domain.ProcessingStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ProcessingStatus(nil), f.transitions[garmentID]...)
}

func (f *fakeStatusStore) lastStatus(garmentID string) domain.ProcessingStatus {
	h := f.history(garmentID)
	if len(h) == 0 {
		return ""
	}
	return h[len(h)-1]
}

func (f *fakeStatusStore) errorMessage(garmentID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errorMsgs[garmentID]
}

// fakeProcessor fails the first failCount invocations, then succeeds.
type fakeProcessor struct {
	mu        sync.Mutex
	calls     int
	failCount int
}

func (f *fakeProcessor) RemoveBackground(ctx context.Context, image []byte, contentType string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failCount {
		return nil, errors.New("vision service unavailable")
	}
	return append([]byte("processed:"), image...), nil
}

func (f *fakeProcessor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClassifier struct {
	attrs *domain.Attributes
	err   error
}

func (f *fakeClassifier) Classify(ctx context.Context, image []byte) (*domain.Attributes, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.attrs, nil
}

type fakeBlobStore struct {
	mu      sync.Mutex
	uploads map[string][]byte
	err     error
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{uploads: make(map[string][]byte)}
}

func (f *fakeBlobStore) UploadProcessed(ctx context.Context, ownerID, garmentID string, data []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads[garmentID] = data
	return "https://storage.local/processed/" + garmentID, nil
}

type fakeEventPublisher struct {
	mu     sync.Mutex
	events []*events.GarmentProcessed
}

func (f *fakeEventPublisher) PublishGarmentProcessed(ctx context.Context, event *events.GarmentProcessed) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEventPublisher) published() []*events.GarmentProcessed {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*events.GarmentProcessed(nil), f.events...)
}

type workerFixture struct {
	worker    *Worker
	queue     *queue.Queue
	status    *fakeStatusStore
	processor *fakeProcessor
	blobs     *fakeBlobStore
	publisher *fakeEventPublisher
}

func newWorkerFixture(t *testing.T, mutate func(cfg *Config)) *workerFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := queue.New(rdb, "jobs", "jobs_retry", logger)

	status := newFakeStatusStore()
	processor := &fakeProcessor{}
	blobs := newFakeBlobStore()
	publisher := &fakeEventPublisher{}

	cfg := &Config{
		Logger:         logger,
		Queue:          q,
		StatusStore:    status,
		ImageProcessor: processor,
		Classifier: &fakeClassifier{attrs: &domain.Attributes{
			Category:   "top",
			Color:      "blue",
			Style:      "casual",
			Season:     "all-season",
			Material:   "cotton",
			Occasion:   "everyday",
			Confidence: 0.92,
		}},
		BlobStore: blobs,
		Events:    publisher,

		MaxRetries:        3,
		PollTimeout:       200 * time.Millisecond,
		RetryDrainTimeout: 50 * time.Millisecond,
		IdleSleep:         10 * time.Millisecond,
		ErrorBackoff:      50 * time.Millisecond,
		MarkFailedOnRetry: true,
	}
	if mutate != nil {
		mutate(cfg)
	}

	return &workerFixture{
		worker:    NewWorker(cfg),
		queue:     q,
		status:    status,
		processor: processor,
		blobs:     blobs,
		publisher: publisher,
	}
}

func newTestJob(garmentID string) *queue.Job {
	return queue.NewJob(garmentID, "user-1", []byte("image bytes"), "shirt.jpg", "image/jpeg", false)
}

// runUntil runs the worker loop until the condition holds or the deadline
// passes, then cancels and waits for the loop to exit.
func runUntil(t *testing.T, w *Worker, deadline time.Duration, cond func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx)
	}()

	waitFor := time.After(deadline)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

poll:
	for {
		select {
		case <-waitFor:
			break poll
		case <-tick.C:
			if cond() {
				break poll
			}
		}
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestWorker_ProcessesJobToCompleted(t *testing.T) {
	f := newWorkerFixture(t, nil)
	ctx := context.Background()

	job := newTestJob("garment-1")
	require.NoError(t, f.queue.Push(ctx, job, false))

	runUntil(t, f.worker, 5*time.Second, func() bool {
		return f.status.lastStatus("garment-1") == domain.StatusCompleted
	})

	history := f.status.history("garment-1")
	require.Equal(t, []domain.ProcessingStatus{domain.StatusProcessing, domain.StatusCompleted}, history)

	assert.Equal(t, "", f.status.errorMessage("garment-1"))
	assert.Equal(t, "blue", f.status.attrs["garment-1"].Color)
	assert.Equal(t, "https://storage.local/processed/garment-1", f.status.assetRefs["garment-1"])

	events := f.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, "completed", events[0].Status)
	assert.Equal(t, "garment-1", events[0].GarmentID)
}

func TestWorker_FailureSchedulesRetry(t *testing.T) {
	f := newWorkerFixture(t, func(cfg *Config) {
		cfg.ImageProcessor = &fakeProcessor{failCount: 1000}
	})
	ctx := context.Background()

	job := newTestJob("garment-2")
	require.NoError(t, f.queue.Push(ctx, job, false))

	runUntil(t, f.worker, 5*time.Second, func() bool {
		return f.status.lastStatus("garment-2") == domain.StatusFailed
	})

	assert.Equal(t, domain.StatusFailed, f.status.lastStatus("garment-2"))
	assert.Contains(t, f.status.errorMessage("garment-2"), "vision service unavailable")
}

func TestWorker_RetrySucceedsOnThirdAttempt(t *testing.T) {
	// Two failures, then success. With max_retries 3 the job completes without
	// ever being abandoned.
	f := newWorkerFixture(t, func(cfg *Config) {
		cfg.ImageProcessor = &fakeProcessor{failCount: 2}
	})
	processor := f.worker.imageProcessor.(*fakeProcessor)
	ctx := context.Background()

	job := newTestJob("garment-3")
	require.NoError(t, f.queue.Push(ctx, job, false))

	runUntil(t, f.worker, 10*time.Second, func() bool {
		return f.status.lastStatus("garment-3") == domain.StatusCompleted
	})

	require.Equal(t, domain.StatusCompleted, f.status.lastStatus("garment-3"))
	assert.Equal(t, 3, processor.callCount())

	// Transient failed states were visible along the way.
	history := f.status.history("garment-3")
	assert.Contains(t, history, domain.StatusFailed)

	// Both queues drained.
	stats, err := f.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalPending)

	// Only the terminal outcome is published.
	events := f.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, "completed", events[0].Status)
}

func TestWorker_RetriesExhaustedAbandonsJob(t *testing.T) {
	f := newWorkerFixture(t, func(cfg *Config) {
		cfg.MaxRetries = 2
		cfg.ImageProcessor = &fakeProcessor{failCount: 1000}
	})
	processor := f.worker.imageProcessor.(*fakeProcessor)
	ctx := context.Background()

	job := newTestJob("garment-4")
	require.NoError(t, f.queue.Push(ctx, job, false))

	runUntil(t, f.worker, 10*time.Second, func() bool {
		stats, err := f.queue.Stats(ctx)
		if err != nil {
			return false
		}
		return processor.callCount() >= 3 && stats.TotalPending == 0 &&
			f.status.lastStatus("garment-4") == domain.StatusFailed
	})

	assert.Equal(t, domain.StatusFailed, f.status.lastStatus("garment-4"))
	assert.Equal(t, 3, processor.callCount())

	// The job is gone from both queues once abandoned.
	stats, err := f.queue.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalPending)

	events := f.publisher.published()
	require.Len(t, events, 1)
	assert.Equal(t, "failed", events[0].Status)
	assert.Contains(t, events[0].ErrorMessage, "vision service unavailable")
}

func TestWorker_DeferFailedUntilExhausted(t *testing.T) {
	// With mark_failed_on_retry disabled the failed status only appears after
	// the final attempt.
	f := newWorkerFixture(t, func(cfg *Config) {
		cfg.MaxRetries = 1
		cfg.MarkFailedOnRetry = false
		cfg.ImageProcessor = &fakeProcessor{failCount: 1000}
	})
	ctx := context.Background()

	job := newTestJob("garment-5")
	require.NoError(t, f.queue.Push(ctx, job, false))

	runUntil(t, f.worker, 10*time.Second, func() bool {
		return f.status.lastStatus("garment-5") == domain.StatusFailed
	})

	history := f.status.history("garment-5")
	var failedWrites int
	for _, s := range history {
		if s == domain.StatusFailed {
			failedWrites++
		}
	}
	assert.Equal(t, 1, failedWrites)
}

func TestWorker_MalformedPayloadConsumesRetries(t *testing.T) {
	f := newWorkerFixture(t, func(cfg *Config) {
		cfg.MaxRetries = 1
	})
	ctx := context.Background()

	job := newTestJob("garment-6")
	job.FileContent = "%%% not base64 %%%"
	require.NoError(t, f.queue.Push(ctx, job, false))

	runUntil(t, f.worker, 10*time.Second, func() bool {
		stats, err := f.queue.Stats(ctx)
		if err != nil {
			return false
		}
		return f.status.lastStatus("garment-6") == domain.StatusFailed && stats.TotalPending == 0
	})

	assert.Equal(t, domain.StatusFailed, f.status.lastStatus("garment-6"))
	assert.Contains(t, f.status.errorMessage("garment-6"), "invalid job payload")
}

func TestWorker_RetryQueueDrainedBeforeMainQueue(t *testing.T) {
	f := newWorkerFixture(t, nil)
	ctx := context.Background()

	var order []string
	var mu sync.Mutex
	f.worker.statusStore = &orderRecordingStore{fakeStatusStore: f.status, onProcessing: func(id string) {
		mu.Lock()
		order = append(order, id)
		mu.Unlock()
	}}

	mainJob := newTestJob("main-job")
	require.NoError(t, f.queue.Push(ctx, mainJob, false))

	retryJob := newTestJob("retry-job")
	retryJob.MarkRetry()
	require.NoError(t, f.queue.PushRetry(ctx, retryJob))

	runUntil(t, f.worker, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) >= 2
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
	assert.Equal(t, []string{"retry-job", "main-job"}, order)
}

type orderRecordingStore struct {
	*fakeStatusStore
	onProcessing func(id string)
}

func (o *orderRecordingStore) SetProcessing(ctx context.Context, garmentID string) error {
	o.onProcessing(garmentID)
	return o.fakeStatusStore.SetProcessing(ctx, garmentID)
}

func TestWorker_StopsOnContextCancel(t *testing.T) {
	f := newWorkerFixture(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.worker.Run(ctx)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestWorker_StartupHealthCheckFailure(t *testing.T) {
	f := newWorkerFixture(t, nil)
	f.status.healthErr = errors.New("database unreachable")

	err := f.worker.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup health check failed")
}

func TestWorker_NilEventPublisher(t *testing.T) {
	f := newWorkerFixture(t, func(cfg *Config) {
		cfg.Events = nil
	})
	ctx := context.Background()

	job := newTestJob("garment-7")
	require.NoError(t, f.queue.Push(ctx, job, false))

	runUntil(t, f.worker, 5*time.Second, func() bool {
		return f.status.lastStatus("garment-7") == domain.StatusCompleted
	})

	assert.Equal(t, domain.StatusCompleted, f.status.lastStatus("garment-7"))
}

func TestNewWorker_AppliesDefaults(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := NewWorker(&Config{Logger: logger})

	assert.Equal(t, DefaultMaxRetries, w.maxRetries)
	assert.Equal(t, DefaultPollTimeout, w.pollTimeout)
	assert.Equal(t, DefaultRetryDrainTimeout, w.retryDrainTimeout)
	assert.Equal(t, DefaultIdleSleep, w.idleSleep)
	assert.Equal(t, DefaultErrorBackoff, w.errorBackoff)
}
