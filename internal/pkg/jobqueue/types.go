package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeApplyParticipation JobType = "apply_participation"
	JobTypeLedgerExport       JobType = "ledger_export"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// ApplyParticipationJobPayload asks a worker to consume one ledger entry.
type ApplyParticipationJobPayload struct {
	TransactionID string `json:"transaction_id"`
	ContestID     uint   `json:"contest_id"`
}

// ToMap converts the payload to a map for storage
func (p ApplyParticipationJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"transaction_id": p.TransactionID,
		"contest_id":     p.ContestID,
	}
}

// ApplyParticipationJobPayloadFromMap creates a payload from a map
func ApplyParticipationJobPayloadFromMap(data map[string]interface{}) (*ApplyParticipationJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload ApplyParticipationJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// LedgerExportDayLayout is the date format of LedgerExportJobPayload.Day.
const LedgerExportDayLayout = "2006-01-02"

// LedgerExportJobPayload names the UTC day to export.
type LedgerExportJobPayload struct {
	Day string `json:"day"`
}

func (p LedgerExportJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"day": p.Day,
	}
}

func LedgerExportJobPayloadFromMap(data map[string]interface{}) (*LedgerExportJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var payload LedgerExportJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// ParseDay returns the start of the payload's UTC day.
func (p LedgerExportJobPayload) ParseDay() (time.Time, error) {
	return time.ParseInLocation(LedgerExportDayLayout, p.Day, time.UTC)
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
