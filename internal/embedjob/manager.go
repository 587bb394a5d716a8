// Package embedjob owns the background job that embeds journal entries into
// the vector index. At most one job runs at a time; callers poll Status for
// progress instead of blocking on completion.
package embedjob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quillback/quillback/internal/storage"
	"github.com/quillback/quillback/internal/vectorindex"
)

// ErrAlreadyRunning is returned by Start while a job is in flight. The request
// is rejected, not queued, so the caller can surface an explicit "already
// importing" message.
var ErrAlreadyRunning = errors.New("embedding job already running")

// Embedder generates the embedding vector for one text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Status is the lifecycle state of the singleton job.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusFailed     Status = "failed"
)

// Snapshot is a point-in-time view of the job, safe to hand to pollers.
type Snapshot struct {
	JobID     string
	Status    Status
	Total     int
	Completed int
	StartedAt time.Time
	Error     string
}

// defaultConcurrency bounds parallel embed calls so the engine isn't
// overwhelmed.
const defaultConcurrency = 4

// Manager runs embedding jobs over journal entries. State transitions are
// guarded by a mutex; the completed counter is atomic so workers update it and
// pollers read it without contending on the lock.
type Manager struct {
	embedder    Embedder
	index       *vectorindex.Index
	concurrency int
	logger      *slog.Logger

	mu        sync.Mutex
	jobID     string
	status    Status
	total     int
	startedAt time.Time
	errMsg    string
	completed atomic.Int64
}

// NewManager creates a Manager in the Idle state.
// If concurrency <= 0, it defaults to 4.
func NewManager(embedder Embedder, index *vectorindex.Index, concurrency int) *Manager {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Manager{
		embedder:    embedder,
		index:       index,
		concurrency: concurrency,
		status:      StatusIdle,
		logger:      slog.Default(),
	}
}

// Start schedules an embedding job over the given entries and returns
// immediately with the new job's id. Only entries missing a current-version
// record are embedded, so re-running after success is a no-op and re-running
// after a partial failure retries just the remainder. Returns
// ErrAlreadyRunning while a job is processing.
func (m *Manager) Start(entries []storage.Entry) (string, error) {
	m.mu.Lock()
	if m.status == StatusProcessing {
		m.mu.Unlock()
		return "", ErrAlreadyRunning
	}

	byID := make(map[int64]storage.Entry, len(entries))
	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	// Missing returns ids in ascending order, which fixes the processing
	// order across retries.
	missing := m.index.Missing(ids)
	work := make([]storage.Entry, 0, len(missing))
	for _, id := range missing {
		work = append(work, byID[id])
	}

	m.jobID = uuid.New().String()
	m.status = StatusProcessing
	m.total = len(work)
	m.startedAt = time.Now().UTC()
	m.errMsg = ""
	m.completed.Store(0)
	jobID := m.jobID
	m.mu.Unlock()

	go m.run(jobID, work)
	return jobID, nil
}

// Status returns a snapshot of the current (or last) job. It never blocks on
// in-flight embedding work and never mutates state.
func (m *Manager) Status() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		JobID:     m.jobID,
		Status:    m.status,
		Total:     m.total,
		Completed: int(m.completed.Load()),
		StartedAt: m.startedAt,
		Error:     m.errMsg,
	}
}

// run embeds the work set and records the terminal state. Jobs run to
// completion or failure; there is no cancellation contract, hence the
// background context.
func (m *Manager) run(jobID string, work []storage.Entry) {
	ctx := context.Background()

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for _, entry := range work {
		g.Go(func() error {
			vec, err := m.embedder.Embed(gCtx, entry.Content)
			if err != nil {
				return fmt.Errorf("embedding entry %d: %w", entry.ID, err)
			}
			// Install the record only after the vector is fully
			// computed; readers never see partial state.
			m.index.Upsert(entry.ID, vec, m.index.ModelVersion())
			m.completed.Add(1)
			return nil
		})
	}

	err := g.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.jobID != jobID {
		return
	}
	if err != nil {
		// Already-embedded entries stay valid; the next Start retries
		// only what's missing.
		m.status = StatusFailed
		m.errMsg = err.Error()
		m.logger.Error("embedding job failed", "job_id", jobID, "completed", m.completed.Load(), "total", m.total, "error", err)
		return
	}
	m.status = StatusIdle
	m.logger.Info("embedding job finished", "job_id", jobID, "embedded", m.total)
}
