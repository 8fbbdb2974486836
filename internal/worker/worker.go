package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wardroberry/wardroberry/internal/events"
	"github.com/wardroberry/wardroberry/internal/queue"
	"github.com/wardroberry/wardroberry/internal/worker/domain"
)

// StatusStore persists per-garment processing state. The worker only ever
// updates the one status record a garment owns; it never deletes it.
type StatusStore interface {
	SetProcessing(ctx context.Context, garmentID string) error
	SetCompleted(ctx context.Context, garmentID, assetRef string, attrs *domain.Attributes) error
	SetFailed(ctx context.Context, garmentID, errorMessage string) error
	HealthCheck(ctx context.Context) error
}

// ImageProcessor extracts the garment from its background.
type ImageProcessor interface {
	RemoveBackground(ctx context.Context, image []byte, contentType string) ([]byte, error)
}

// Classifier derives garment attributes from the extracted image.
type Classifier interface {
	Classify(ctx context.Context, image []byte) (*domain.Attributes, error)
}

// BlobStore persists the processed image and returns its reference.
type BlobStore interface {
	UploadProcessed(ctx context.Context, ownerID, garmentID string, data []byte, contentType string) (string, error)
}

// EventPublisher emits terminal processing outcomes. Optional.
type EventPublisher interface {
	PublishGarmentProcessed(ctx context.Context, event *events.GarmentProcessed) error
}

// HealthChecker is implemented by collaborators that can report reachability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

const (
	// DefaultMaxRetries is the number of re-attempts a failed job gets.
	DefaultMaxRetries = 3
	// DefaultPollTimeout bounds the blocking pop on the main queue.
	DefaultPollTimeout = 5 * time.Second
	// DefaultRetryDrainTimeout bounds the retry-queue drain at the top of
	// each iteration.
	DefaultRetryDrainTimeout = 1 * time.Second
	// DefaultIdleSleep is the fixed pause between iterations.
	DefaultIdleSleep = 100 * time.Millisecond
	// DefaultErrorBackoff is slept after a transient queue error mid-loop.
	DefaultErrorBackoff = 5 * time.Second
)

// Config holds worker configuration and injected collaborators.
type Config struct {
	Logger         *slog.Logger
	Queue          *queue.Queue
	StatusStore    StatusStore
	ImageProcessor ImageProcessor
	Classifier     Classifier
	BlobStore      BlobStore
	Events         EventPublisher // nil disables event publishing

	MaxRetries        int
	PollTimeout       time.Duration
	RetryDrainTimeout time.Duration
	IdleSleep         time.Duration
	ErrorBackoff      time.Duration

	// MarkFailedOnRetry mirrors the observed behavior: the status record goes
	// to failed on every failed attempt, even when a retry follows, so a
	// polling client can see a transient failed that later completes. Set
	// false to defer the failed write until retries are exhausted.
	MarkFailedOnRetry bool
}

// Worker is a single consumer instance against the job and retry queues.
// Processing inside one instance is strictly sequential; run more instances
// for cross-job parallelism.
type Worker struct {
	logger         *slog.Logger
	queue          *queue.Queue
	statusStore    StatusStore
	imageProcessor ImageProcessor
	classifier     Classifier
	blobStore      BlobStore
	events         EventPublisher

	maxRetries        int
	pollTimeout       time.Duration
	retryDrainTimeout time.Duration
	idleSleep         time.Duration
	errorBackoff      time.Duration
	markFailedOnRetry bool
}

// NewWorker creates a worker instance, applying defaults for unset timings.
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:            cfg.Logger,
		queue:             cfg.Queue,
		statusStore:       cfg.StatusStore,
		imageProcessor:    cfg.ImageProcessor,
		classifier:        cfg.Classifier,
		blobStore:         cfg.BlobStore,
		events:            cfg.Events,
		maxRetries:        cfg.MaxRetries,
		pollTimeout:       cfg.PollTimeout,
		retryDrainTimeout: cfg.RetryDrainTimeout,
		idleSleep:         cfg.IdleSleep,
		errorBackoff:      cfg.ErrorBackoff,
		markFailedOnRetry: cfg.MarkFailedOnRetry,
	}

	if w.maxRetries <= 0 {
		w.maxRetries = DefaultMaxRetries
	}
	if w.pollTimeout <= 0 {
		w.pollTimeout = DefaultPollTimeout
	}
	if w.retryDrainTimeout <= 0 {
		w.retryDrainTimeout = DefaultRetryDrainTimeout
	}
	if w.idleSleep <= 0 {
		w.idleSleep = DefaultIdleSleep
	}
	if w.errorBackoff <= 0 {
		w.errorBackoff = DefaultErrorBackoff
	}

	return w
}

// Run executes the consumer loop until ctx is canceled. Cancellation is
// cooperative: it is checked once per iteration and an in-flight job is not
// interrupted. Queue or status store unreachability at startup is fatal;
// mid-loop queue errors are logged and backed off.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.startupHealthCheck(ctx); err != nil {
		return fmt.Errorf("worker startup health check failed: %w", err)
	}

	w.logger.Info("Worker started, waiting for jobs",
		slog.String("queue", w.queue.QueueName()),
		slog.String("retry_queue", w.queue.RetryQueueName()),
		slog.Int("max_retries", w.maxRetries),
		slog.Duration("poll_timeout", w.pollTimeout),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker stopping - context canceled")
			return nil
		default:
		}

		// Retry-ready jobs get the first bounded drain attempt.
		job, err := w.queue.PopRetry(ctx, w.retryDrainTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("Retry queue pop failed",
				slog.Any("error", err),
			)
			w.pause(ctx, w.errorBackoff)
			continue
		}
		if job != nil {
			w.logger.Info("Retry job received",
				slog.String("job_id", job.JobID),
				slog.Int("attempt_count", job.AttemptCount),
			)
			w.handleJob(ctx, job)
			w.pause(ctx, w.idleSleep)
			continue
		}

		// Blocking pop on the main queue; a timeout is the idle path.
		job, err = w.queue.Pop(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("Queue pop failed",
				slog.Any("error", err),
			)
			w.pause(ctx, w.errorBackoff)
			continue
		}
		if job != nil {
			w.logger.Info("Job received",
				slog.String("job_id", job.JobID),
				slog.String("owner_id", job.OwnerID),
			)
			w.handleJob(ctx, job)
		}

		w.pause(ctx, w.idleSleep)
	}
}

// handleJob runs one job through the processing pipeline and applies the
// retry-eligibility rule on failure. No error escapes to the loop.
func (w *Worker) handleJob(ctx context.Context, job *queue.Job) {
	if err := w.process(ctx, job); err != nil {
		w.handleFailure(ctx, job, err)
	}
}

// startupHealthCheck gates Run. The queue and the status store must be
// reachable; other collaborators are checked if they can be, but only warned
// about, since their calls are retried per job anyway.
func (w *Worker) startupHealthCheck(ctx context.Context) error {
	if err := w.queue.HealthCheck(ctx); err != nil {
		return err
	}
	if err := w.statusStore.HealthCheck(ctx); err != nil {
		return err
	}

	for name, c := range map[string]interface{}{
		"image_processor": w.imageProcessor,
		"classifier":      w.classifier,
		"blob_store":      w.blobStore,
	} {
		hc, ok := c.(HealthChecker)
		if !ok {
			continue
		}
		if err := hc.HealthCheck(ctx); err != nil {
			w.logger.Warn("Collaborator health check failed",
				slog.String("collaborator", name),
				slog.Any("error", err),
			)
		}
	}

	w.logger.Info("Startup health check passed")
	return nil
}

// pause sleeps for d but returns early on cancellation.
func (w *Worker) pause(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// publishOutcome emits a terminal outcome event, best effort.
func (w *Worker) publishOutcome(ctx context.Context, job *queue.Job, status domain.ProcessingStatus, errorMessage string) {
	if w.events == nil {
		return
	}

	event := &events.GarmentProcessed{
		GarmentID:    job.JobID,
		OwnerID:      job.OwnerID,
		Status:       status.String(),
		ErrorMessage: errorMessage,
		AttemptCount: job.AttemptCount,
		OccurredAt:   time.Now().UTC(),
	}

	if err := w.events.PublishGarmentProcessed(ctx, event); err != nil {
		w.logger.Warn("Failed to publish processing outcome event",
			slog.String("garment_id", job.JobID),
			slog.Any("error", err),
		)
	}
}
