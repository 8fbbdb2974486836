package domain

import "errors"

// Processing status values as stored on the garment record. The worker owns
// the transitions; the API only creates records as pending and reads the rest.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var (
	ErrGarmentNotFound = errors.New("garment not found")
)
