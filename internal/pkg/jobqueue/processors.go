package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ContestHub/app/models"
)

// ParticipationApplier consumes a ledger entry into its contest counter.
// Applying the same transaction twice must be a no-op.
type ParticipationApplier interface {
	ApplyParticipationByTransactionID(ctx context.Context, transactionID string) error
}

// LedgerExporter writes one UTC day of ledger entries to external storage.
type LedgerExporter interface {
	ExportDay(ctx context.Context, day time.Time) (string, int, error)
}

// Processors are the handlers jobs are dispatched to.
type Processors struct {
	Participation ParticipationApplier
	LedgerExport  LedgerExporter
}

const participationDedupeTTL = 10 * time.Minute

var errNoProcessor = errors.New("no processor configured")

// EnqueueParticipation schedules ApplyParticipation for entry. Repeated
// calls within a short window collapse into one job.
func (q *Queue) EnqueueParticipation(ctx context.Context, entry *models.LedgerEntry) error {
	payload := ApplyParticipationJobPayload{
		TransactionID: entry.TransactionID,
		ContestID:     entry.ContestID,
	}
	_, err := q.EnqueueUniqueJob(ctx, JobTypeApplyParticipation, entry.TransactionID, payload.ToMap(), participationDedupeTTL)
	return err
}

func (q *Queue) processApplyParticipationJob(ctx context.Context, job *Job) error {
	if q.processors.Participation == nil {
		return fmt.Errorf("apply participation: %w", errNoProcessor)
	}
	payload, err := ApplyParticipationJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid apply participation payload: %w", err)
	}
	if payload.TransactionID == "" {
		return errors.New("apply participation payload has no transaction id")
	}

	if err := q.processors.Participation.ApplyParticipationByTransactionID(ctx, payload.TransactionID); err != nil {
		return err
	}
	log.Infof("[JobQueue] Participation applied for transaction %s (contest %d)", payload.TransactionID, payload.ContestID)
	return nil
}

func (q *Queue) processLedgerExportJob(ctx context.Context, job *Job) error {
	if q.processors.LedgerExport == nil {
		return fmt.Errorf("ledger export: %w", errNoProcessor)
	}
	payload, err := LedgerExportJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid ledger export payload: %w", err)
	}
	day, err := payload.ParseDay()
	if err != nil {
		return fmt.Errorf("invalid ledger export day %q: %w", payload.Day, err)
	}

	key, n, err := q.processors.LedgerExport.ExportDay(ctx, day)
	if err != nil {
		return err
	}
	log.Infof("[JobQueue] Exported %d ledger entries for %s to %s", n, payload.Day, key)
	return nil
}
