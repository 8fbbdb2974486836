package domain

import "errors"

var (
	// ErrGarmentNotFound is returned when a status record does not exist for
	// the garment referenced by a job.
	ErrGarmentNotFound = errors.New("garment not found")

	// ErrInvalidPayload is returned when a job's image payload cannot be decoded.
	ErrInvalidPayload = errors.New("invalid job payload")
)
