package jobqueue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobTypesAndStatus(t *testing.T) {
	assert.Equal(t, "apply_participation", string(JobTypeApplyParticipation))
	assert.Equal(t, "ledger_export", string(JobTypeLedgerExport))

	assert.Equal(t, "pending", string(JobStatusPending))
	assert.Equal(t, "processing", string(JobStatusProcessing))
	assert.Equal(t, "completed", string(JobStatusCompleted))
	assert.Equal(t, "failed", string(JobStatusFailed))
	assert.Equal(t, "retrying", string(JobStatusRetrying))
}

func TestJob_StatusTransitions(t *testing.T) {
	job := &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3}
	assert.True(t, job.IsRetryable())

	job.RetryCount = 3
	assert.False(t, job.IsRetryable())

	before := time.Now()
	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)
	assert.False(t, job.UpdatedAt.Before(before))
	assert.False(t, job.IsRetryable(), "only failed jobs are retryable")

	job.MarkAsFailed("boom")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "boom", job.ErrorMsg)
	assert.Equal(t, 4, job.RetryCount)

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)
}

func TestApplyParticipationPayload_SurvivesJobEncoding(t *testing.T) {
	job := &Job{
		ID:      "j1",
		Type:    JobTypeApplyParticipation,
		Payload: ApplyParticipationJobPayload{TransactionID: "pi_1", ContestID: 42}.ToMap(),
	}

	// Jobs round-trip through Redis as JSON, which turns numbers into float64.
	data, err := json.Marshal(job)
	require.NoError(t, err)
	var stored Job
	require.NoError(t, json.Unmarshal(data, &stored))

	payload, err := ApplyParticipationJobPayloadFromMap(stored.Payload)
	require.NoError(t, err)
	assert.Equal(t, "pi_1", payload.TransactionID)
	assert.Equal(t, uint(42), payload.ContestID)
}

func TestPayloadFromMap_InvalidData(t *testing.T) {
	invalid := map[string]interface{}{"invalid": make(chan int)}

	p1, err := ApplyParticipationJobPayloadFromMap(invalid)
	assert.Error(t, err)
	assert.Nil(t, p1)

	p2, err := LedgerExportJobPayloadFromMap(invalid)
	assert.Error(t, err)
	assert.Nil(t, p2)
}

func TestLedgerExportPayload_ParseDay(t *testing.T) {
	payload, err := LedgerExportJobPayloadFromMap(LedgerExportJobPayload{Day: "2026-03-09"}.ToMap())
	require.NoError(t, err)

	day, err := payload.ParseDay()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), day)

	_, err = LedgerExportJobPayload{Day: "09.03.2026"}.ParseDay()
	assert.Error(t, err)
}
