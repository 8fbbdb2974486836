package domain

import "fmt"

// ProcessingStatus is the lifecycle state of a garment's processing record.
// The set is closed; values coming back from the status store are parsed
// through ParseProcessingStatus and unknown strings are rejected.
type ProcessingStatus string

const (
	// StatusPending is set by the producer before the job is enqueued.
	StatusPending ProcessingStatus = "pending"
	// StatusProcessing is set by the worker when it picks the job up.
	StatusProcessing ProcessingStatus = "processing"
	// StatusCompleted is terminal: the pipeline ran to the end.
	StatusCompleted ProcessingStatus = "completed"
	// StatusFailed is set after a processing error. It is terminal only once
	// retry attempts are exhausted; a retried job moves back to processing.
	StatusFailed ProcessingStatus = "failed"
)

// ParseProcessingStatus validates a raw status string from the store boundary.
func ParseProcessingStatus(s string) (ProcessingStatus, error) {
	switch ProcessingStatus(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return ProcessingStatus(s), nil
	default:
		return "", fmt.Errorf("unknown processing status %q", s)
	}
}

// String returns the store representation of the status.
func (s ProcessingStatus) String() string {
	return string(s)
}

// Terminal reports whether no further transition can leave this status.
// failed is only conditionally terminal, so it is not reported here; the
// worker decides based on the job's remaining attempts.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted
}
