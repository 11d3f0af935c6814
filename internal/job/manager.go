package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/walletscope/backend/internal/cluster"
)

var (
	// ErrEmptyBatch rejects submissions with no items.
	ErrEmptyBatch = errors.New("batch contains no items")
	// ErrBatchTooLarge rejects submissions above ManagerConfig.MaxBatchSize.
	ErrBatchTooLarge = errors.New("batch exceeds maximum size")
	// ErrShuttingDown rejects submissions after Shutdown has begun.
	ErrShuttingDown = errors.New("manager is shutting down")
)

// Broadcaster delivers a message to every observer of a channel. The ws hub
// implements it; NopBroadcaster serves tests and headless runs.
type Broadcaster interface {
	Broadcast(channel string, message any)
}

type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(string, any) {}

// ProgressEvent is sent on job:{id} after every processed item.
type ProgressEvent struct {
	Type      string    `json:"type"`
	JobID     string    `json:"job_id"`
	Progress  int       `json:"progress"`
	Total     int       `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// CompletedEvent is the terminal broadcast for a successful job.
type CompletedEvent struct {
	Type      string                    `json:"type"`
	JobID     string                    `json:"job_id"`
	Progress  int                       `json:"progress"`
	Total     int                       `json:"total"`
	Results   map[string]cluster.Result `json:"results"`
	Timestamp time.Time                 `json:"timestamp"`
}

// ErrorEvent is the terminal broadcast for a failed job.
type ErrorEvent struct {
	Type      string    `json:"type"`
	JobID     string    `json:"job_id"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// ManagerConfig holds the batch tunables. The checkpoint cadence bounds how
// far in-memory progress may run ahead of the persisted record.
type ManagerConfig struct {
	MaxBatchSize    int
	ChunkSize       int
	CheckpointEvery int
}

func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxBatchSize:    1000,
		ChunkSize:       10,
		CheckpointEvery: 10,
	}
}

// Manager owns the batch job lifecycle: it creates jobs, runs one execution
// loop per job, checkpoints progress to the store and broadcasts events.
// The in-memory cache is a write-through shadow of the store.
type Manager struct {
	cfg       ManagerConfig
	store     Store
	hub       Broadcaster
	clusterFn cluster.Func
	log       *zap.Logger

	mu    sync.RWMutex
	cache map[string]*Job

	wg      sync.WaitGroup
	runCtx  context.Context
	stopRun context.CancelFunc

	closedMu sync.Mutex
	closed   bool
}

func NewManager(cfg ManagerConfig, store Store, hub Broadcaster, fn cluster.Func, log *zap.Logger) *Manager {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultManagerConfig().MaxBatchSize
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultManagerConfig().ChunkSize
	}
	if cfg.CheckpointEvery <= 0 {
		cfg.CheckpointEvery = DefaultManagerConfig().CheckpointEvery
	}
	if hub == nil {
		hub = NopBroadcaster{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:       cfg,
		store:     store,
		hub:       hub,
		clusterFn: fn,
		log:       log,
		cache:     make(map[string]*Job),
		runCtx:    ctx,
		stopRun:   cancel,
	}
}

// Create validates the batch, persists a pending job and schedules its
// execution loop. The record is durable before Create returns, so a status
// poll straight after sees at least pending.
func (m *Manager) Create(items []string) (*Job, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(items) > m.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(items), m.cfg.MaxBatchSize)
	}

	m.closedMu.Lock()
	if m.closed {
		m.closedMu.Unlock()
		return nil, ErrShuttingDown
	}

	j := New(items)
	if err := m.store.Save(j); err != nil {
		m.closedMu.Unlock()
		return nil, fmt.Errorf("persist job: %w", err)
	}

	m.mu.Lock()
	m.cache[j.ID] = j
	m.mu.Unlock()

	m.wg.Add(1)
	m.closedMu.Unlock()

	go m.run(j.ID)

	return j.Clone(), nil
}

// Get returns a snapshot of the job, reading the cache first and falling
// back to the store after a restart.
func (m *Manager) Get(id string) (*Job, error) {
	m.mu.RLock()
	j, ok := m.cache[id]
	if ok {
		c := j.Clone()
		m.mu.RUnlock()
		return c, nil
	}
	m.mu.RUnlock()

	j, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if cached, ok := m.cache[id]; ok {
		j = cached
	} else {
		m.cache[id] = j
	}
	c := j.Clone()
	m.mu.Unlock()
	return c, nil
}

// Cleanup removes aged-out terminal records from the store and evicts the
// matching cache entries, so reads never resurrect a cleaned-up job.
func (m *Manager) Cleanup(maxAge time.Duration) (int, error) {
	deleted, err := m.store.Cleanup(maxAge)

	cutoff := time.Now().UTC().Add(-maxAge)
	m.mu.Lock()
	for id, j := range m.cache {
		if j.CompletedAt != nil && j.CompletedAt.Before(cutoff) {
			delete(m.cache, id)
		}
	}
	m.mu.Unlock()

	return deleted, err
}

// Stats counts cached jobs by status.
func (m *Manager) Stats() (pending, processing, completed, failed int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, j := range m.cache {
		switch j.Status {
		case StatusPending:
			pending++
		case StatusProcessing:
			processing++
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
	}
	return
}

// Shutdown stops accepting new jobs and waits for in-flight loops to drain.
// If ctx expires first, the remaining loops are cancelled and will persist
// their last checkpoint no further.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.closedMu.Lock()
	m.closed = true
	m.closedMu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.stopRun()
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

// update applies fn to the cached job under the cache lock and returns a
// snapshot taken after the mutation.
func (m *Manager) update(id string, fn func(*Job)) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.cache[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	fn(j)
	return j.Clone(), nil
}

func (m *Manager) checkpoint(j *Job) {
	if err := m.store.Save(j); err != nil {
		m.log.Warn("job checkpoint failed",
			zap.String("job_id", j.ID),
			zap.Int("progress", j.Progress),
			zap.Error(err))
	}
}

// run is the execution loop for one job. Per-item failures are recorded and
// the loop continues; anything else fails only this job.
func (m *Manager) run(id string) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.fail(id, fmt.Sprintf("panic in execution loop: %v", r))
		}
	}()

	snap, err := m.update(id, func(j *Job) {
		j.Status = StatusProcessing
		now := time.Now().UTC()
		j.StartedAt = &now
	})
	if err != nil {
		m.fail(id, fmt.Sprintf("load job: %v", err))
		return
	}
	m.checkpoint(snap)

	items := snap.Items
	total := snap.Total
	channel := snap.Channel()
	processed := 0

	for start := 0; start < len(items); start += m.cfg.ChunkSize {
		end := start + m.cfg.ChunkSize
		if end > len(items) {
			end = len(items)
		}

		for _, item := range items[start:end] {
			if err := m.runCtx.Err(); err != nil {
				m.fail(id, fmt.Sprintf("execution cancelled: %v", err))
				return
			}

			result, clusterErr := m.clusterFn(m.runCtx, item)

			snap, err = m.update(id, func(j *Job) {
				if clusterErr != nil {
					j.Errors = append(j.Errors, ItemError{Item: item, Message: clusterErr.Error()})
				} else {
					j.Results[item] = result
				}
				j.Progress++
			})
			if err != nil {
				m.fail(id, fmt.Sprintf("record progress: %v", err))
				return
			}
			processed++

			m.hub.Broadcast(channel, ProgressEvent{
				Type:      "progress",
				JobID:     id,
				Progress:  snap.Progress,
				Total:     total,
				Timestamp: time.Now().UTC(),
			})

			if processed%m.cfg.CheckpointEvery == 0 || processed == total {
				m.checkpoint(snap)
			}
		}
	}

	snap, err = m.update(id, func(j *Job) {
		j.Status = StatusCompleted
		now := time.Now().UTC()
		j.CompletedAt = &now
	})
	if err != nil {
		m.fail(id, fmt.Sprintf("finalize job: %v", err))
		return
	}
	m.checkpoint(snap)

	m.hub.Broadcast(channel, CompletedEvent{
		Type:      "completed",
		JobID:     id,
		Progress:  snap.Progress,
		Total:     total,
		Results:   snap.Results,
		Timestamp: time.Now().UTC(),
	})

	m.log.Info("job completed",
		zap.String("job_id", id),
		zap.Int("total", total),
		zap.Int("errors", len(snap.Errors)))
}

// fail marks the job failed and reports it; best-effort on persistence.
func (m *Manager) fail(id, reason string) {
	snap, err := m.update(id, func(j *Job) {
		if j.Status.Terminal() {
			return
		}
		j.Status = StatusFailed
		j.FailureReason = reason
		now := time.Now().UTC()
		j.CompletedAt = &now
	})
	if err != nil {
		m.log.Error("job failed and could not be recorded",
			zap.String("job_id", id),
			zap.String("reason", reason),
			zap.Error(err))
		return
	}
	m.checkpoint(snap)

	m.hub.Broadcast(snap.Channel(), ErrorEvent{
		Type:      "error",
		JobID:     id,
		Error:     reason,
		Timestamp: time.Now().UTC(),
	})

	m.log.Error("job failed",
		zap.String("job_id", id),
		zap.String("reason", reason))
}
