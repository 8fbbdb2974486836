package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wardroberry/wardroberry/internal/queue"
	"github.com/wardroberry/wardroberry/internal/worker/domain"
)

// process drives one job through the pipeline:
// status -> processing, decode payload, extract garment, upload the processed
// image, classify, then status -> completed with all attributes persisted and
// any prior error message cleared. Every failure is returned to the caller;
// the retry decision is not made here.
func (w *Worker) process(ctx context.Context, job *queue.Job) error {
	w.logger.Info("Processing garment",
		slog.String("garment_id", job.JobID),
		slog.String("owner_id", job.OwnerID),
		slog.Int("attempt_count", job.AttemptCount),
	)

	if err := w.statusStore.SetProcessing(ctx, job.JobID); err != nil {
		return fmt.Errorf("failed to mark garment as processing: %w", err)
	}

	// A malformed payload is handled like any other processing exception; it
	// consumes a retry attempt identically to a transient collaborator error.
	image, err := job.DecodePayload()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	w.logger.Debug("Extracting garment from background",
		slog.String("garment_id", job.JobID),
		slog.Int("image_size", len(image)),
	)

	extracted, err := w.imageProcessor.RemoveBackground(ctx, image, job.ContentType)
	if err != nil {
		return fmt.Errorf("background extraction failed: %w", err)
	}

	assetRef, err := w.blobStore.UploadProcessed(ctx, job.OwnerID, job.JobID, extracted, job.ContentType)
	if err != nil {
		return fmt.Errorf("failed to upload processed image: %w", err)
	}

	w.logger.Debug("Classifying garment",
		slog.String("garment_id", job.JobID),
	)

	attrs, err := w.classifier.Classify(ctx, extracted)
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	if err := w.statusStore.SetCompleted(ctx, job.JobID, assetRef, attrs); err != nil {
		return fmt.Errorf("failed to mark garment as completed: %w", err)
	}

	w.logger.Info("Garment processing completed",
		slog.String("garment_id", job.JobID),
		slog.String("category", attrs.Category),
		slog.String("color", attrs.Color),
		slog.Float64("confidence", attrs.Confidence),
	)

	w.publishOutcome(ctx, job, domain.StatusCompleted, "")

	return nil
}

// handleFailure records the error on the status record and evaluates retry
// eligibility: attempts remaining puts the job on the retry queue with its
// attempt count incremented; otherwise the job is terminally abandoned and
// the garment stays failed.
func (w *Worker) handleFailure(ctx context.Context, job *queue.Job, procErr error) {
	errorMessage := procErr.Error()

	w.logger.Error("Garment processing failed",
		slog.String("garment_id", job.JobID),
		slog.Int("attempt_count", job.AttemptCount),
		slog.String("error", errorMessage),
	)

	exhausted := job.AttemptCount >= w.maxRetries

	if w.markFailedOnRetry || exhausted {
		if err := w.statusStore.SetFailed(ctx, job.JobID, errorMessage); err != nil {
			w.logger.Error("Failed to mark garment as failed",
				slog.String("garment_id", job.JobID),
				slog.Any("error", err),
			)
		}
	}

	if exhausted {
		w.logger.Error("Garment processing abandoned, retries exhausted",
			slog.String("garment_id", job.JobID),
			slog.Int("attempt_count", job.AttemptCount),
			slog.Int("max_retries", w.maxRetries),
		)
		w.publishOutcome(ctx, job, domain.StatusFailed, errorMessage)
		return
	}

	job.MarkRetry()
	if err := w.queue.PushRetry(ctx, job); err != nil {
		// The job is lost; the status record already carries the error.
		w.logger.Error("Failed to schedule retry, job dropped",
			slog.String("garment_id", job.JobID),
			slog.Any("error", err),
		)
		return
	}

	w.logger.Warn("Garment scheduled for retry",
		slog.String("garment_id", job.JobID),
		slog.Int("attempt", job.AttemptCount),
		slog.Int("max_retries", w.maxRetries),
	)
}
