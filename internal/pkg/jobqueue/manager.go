package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ContestHub/app/models"
)

// PendingParticipationSource lists ledger entries the participation updater
// has not consumed yet.
type PendingParticipationSource interface {
	PendingParticipations(ctx context.Context, grace time.Duration, limit int) ([]models.LedgerEntry, error)
}

// ManagerConfig configures the background tasks.
type ManagerConfig struct {
	SweepInterval time.Duration
	// SweepGrace keeps the sweep away from entries whose request is still
	// applying participation.
	SweepGrace time.Duration
	SweepBatch int
	Pending    PendingParticipationSource

	ExportEnabled  bool
	ExportInterval time.Duration
}

func (c *ManagerConfig) withDefaults() {
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Minute
	}
	if c.SweepGrace <= 0 {
		c.SweepGrace = 2 * time.Minute
	}
	if c.SweepBatch <= 0 {
		c.SweepBatch = 100
	}
	if c.ExportInterval <= 0 {
		c.ExportInterval = time.Hour
	}
}

// Manager manages the job queue and its periodic producers
type Manager struct {
	queue        *Queue
	config       ManagerConfig
	sweepTicker  *time.Ticker
	exportTicker *time.Ticker
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	running      bool
	now          func() time.Time
}

// NewManager creates a manager around queue
func NewManager(queue *Queue, cfg ManagerConfig) *Manager {
	cfg.withDefaults()
	return &Manager{
		queue:  queue,
		config: cfg,
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.config.Pending != nil {
		m.sweepTicker = time.NewTicker(m.config.SweepInterval)
		m.wg.Add(1)
		go m.participationSweepWorker(m.sweepTicker, m.stopCh)
	}

	if m.config.ExportEnabled {
		m.exportTicker = time.NewTicker(m.config.ExportInterval)
		m.wg.Add(1)
		go m.ledgerExportWorker(m.exportTicker, m.stopCh)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	if m.exportTicker != nil {
		m.exportTicker.Stop()
	}

	// Signal workers to stop
	close(m.stopCh)
	m.running = false

	// Wait for background workers to finish
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// participationSweepWorker re-enqueues ledger entries whose participation
// was never applied, e.g. after a crash between the two writes.
func (m *Manager) participationSweepWorker(ticker *time.Ticker, stopCh chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started participation sweep (interval: %s)", m.config.SweepInterval)

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Participation sweep stopping")
			return
		case <-ticker.C:
			if _, err := m.RunParticipationSweepOnce(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] Participation sweep error: %v", err)
			}
		}
	}
}

// RunParticipationSweepOnce enqueues one batch of pending participations and
// returns how many entries were found.
func (m *Manager) RunParticipationSweepOnce(ctx context.Context) (int, error) {
	entries, err := m.config.Pending.PendingParticipations(ctx, m.config.SweepGrace, m.config.SweepBatch)
	if err != nil {
		return 0, err
	}
	for i := range entries {
		if err := m.queue.EnqueueParticipation(ctx, &entries[i]); err != nil {
			return i, err
		}
	}
	if len(entries) > 0 {
		log.Warnf("[JobQueue Manager] Sweep found %d unapplied ledger entries", len(entries))
	}
	return len(entries), nil
}

func (m *Manager) ledgerExportWorker(ticker *time.Ticker, stopCh chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started ledger export scheduler (interval: %s)", m.config.ExportInterval)

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Ledger export scheduler stopping")
			return
		case <-ticker.C:
			if _, err := m.ScheduleLedgerExport(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] Ledger export scheduling error: %v", err)
			}
		}
	}
}

// ScheduleLedgerExport enqueues the export of the previous UTC day once
// across all instances. It reports whether this call enqueued the job.
func (m *Manager) ScheduleLedgerExport(ctx context.Context) (bool, error) {
	day := m.now().UTC().AddDate(0, 0, -1).Format(LedgerExportDayLayout)
	job, err := m.queue.EnqueueUniqueJob(ctx, JobTypeLedgerExport, day, LedgerExportJobPayload{Day: day}.ToMap(), 48*time.Hour)
	if err != nil {
		return false, err
	}
	return job != nil, nil
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
