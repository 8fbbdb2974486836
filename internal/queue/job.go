package queue

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// Job is a single queue entry referencing one garment to process. The image
// payload travels base64-encoded inside the wire record, so a job is fully
// self-contained: a worker needs nothing but the job and the status store.
//
// Jobs are immutable once constructed, except for AttemptCount and RetryAt,
// which MarkRetry advances exactly once per failed attempt.
type Job struct {
	JobID        string     `json:"job_id"`
	OwnerID      string     `json:"owner_id"`
	FileContent  string     `json:"file_content_b64"`
	FileName     string     `json:"file_name"`
	ContentType  string     `json:"content_type"`
	CreatedAt    time.Time  `json:"created_at"`
	AttemptCount int        `json:"attempt_count"`
	Priority     bool       `json:"priority"`
	RetryAt      *time.Time `json:"retry_at,omitempty"`
}

// NewJob builds a job for a garment. The job ID equals the garment's ID.
func NewJob(garmentID, ownerID string, fileContent []byte, fileName, contentType string, priority bool) *Job {
	return &Job{
		JobID:       garmentID,
		OwnerID:     ownerID,
		FileContent: base64.StdEncoding.EncodeToString(fileContent),
		FileName:    fileName,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
		Priority:    priority,
	}
}

// DecodePayload decodes the base64 image content.
func (j *Job) DecodePayload() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(j.FileContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode job payload: %w", err)
	}
	return data, nil
}

// MarkRetry records one failed attempt and stamps the retry timestamp.
func (j *Job) MarkRetry() {
	j.AttemptCount++
	now := time.Now().UTC()
	j.RetryAt = &now
}

// Encode serializes the job into its wire record.
func (j *Job) Encode() (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", fmt.Errorf("failed to encode job: %w", err)
	}
	return string(data), nil
}

// DecodeJob parses a wire record back into a job.
func DecodeJob(raw string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job record: %w", err)
	}
	return &job, nil
}
