package store

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Job is one unit of background persistence work.
type Job struct {
	Name       string
	Run        func(ctx context.Context, s Store) error
	enqueuedAt time.Time
}

// PersisterConfig holds configuration for the persister.
type PersisterConfig struct {
	BufferSize int           // Jobs buffered before Enqueue starts dropping
	Workers    int           // Worker goroutines
	JobTimeout time.Duration // Deadline applied to every job
}

// DefaultPersisterConfig returns sensible defaults for production.
func DefaultPersisterConfig() PersisterConfig {
	return PersisterConfig{
		BufferSize: 256,
		Workers:    2,
		JobTimeout: 5 * time.Second,
	}
}

// Persister runs store writes on a worker pool, decoupled from the caller.
// Enqueue never blocks: when the buffer is full the job is dropped.
type Persister struct {
	store    Store
	jobs     chan Job
	workers  int
	timeout  time.Duration
	wg       sync.WaitGroup
	running  atomic.Bool
	stopChan chan struct{}

	// OnResult is called after every job with its name and error (nil on
	// success). Set it before Start.
	OnResult func(name string, err error)

	// Metrics
	enqueued  atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

// NewPersister creates a persister over s.
func NewPersister(s Store, cfg PersisterConfig) *Persister {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Second
	}

	return &Persister{
		store:    s,
		jobs:     make(chan Job, cfg.BufferSize),
		workers:  cfg.Workers,
		timeout:  cfg.JobTimeout,
		stopChan: make(chan struct{}),
	}
}

// Store returns the underlying store.
func (p *Persister) Store() Store {
	return p.store
}

// Start launches the worker pool.
func (p *Persister) Start() {
	if p.running.Swap(true) {
		return
	}

	log.Printf("💾 Persister starting with %d workers, buffer size %d", p.workers, cap(p.jobs))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Stop signals the workers, lets them drain what is already queued and waits.
func (p *Persister) Stop() {
	if !p.running.Swap(false) {
		return
	}

	close(p.stopChan)
	p.wg.Wait()

	log.Printf("💾 Persister stopped - enqueued: %d, processed: %d, failed: %d, dropped: %d",
		p.enqueued.Load(), p.processed.Load(), p.failed.Load(), p.dropped.Load())
}

// Enqueue adds a job without blocking. Returns false if it was dropped.
// A nil Persister accepts nothing, so callers without a store need no guard.
func (p *Persister) Enqueue(job Job) bool {
	if p == nil {
		return false
	}
	if !p.running.Load() {
		p.dropped.Add(1)
		return false
	}
	job.enqueuedAt = time.Now()

	select {
	case p.jobs <- job:
		p.enqueued.Add(1)
		return true
	default:
		p.dropped.Add(1)
		if p.dropped.Load()%100 == 1 {
			log.Printf("⚠️ Persister queue full, dropped %s (total dropped: %d)", job.Name, p.dropped.Load())
		}
		return false
	}
}

func (p *Persister) worker() {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobs:
			p.run(job)
		case <-p.stopChan:
			for {
				select {
				case job := <-p.jobs:
					p.run(job)
				default:
					return
				}
			}
		}
	}
}

func (p *Persister) run(job Job) {
	if wait := time.Since(job.enqueuedAt); wait > time.Second {
		log.Printf("⚠️ Persist job %s waited %.1fms in queue", job.Name, float64(wait.Microseconds())/1000)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	err := job.Run(ctx, p.store)
	cancel()

	p.processed.Add(1)
	if err != nil {
		p.failed.Add(1)
		log.Printf("⚠️ Persist job %s failed: %v", job.Name, err)
	}
	if p.OnResult != nil {
		p.OnResult(job.Name, err)
	}
}

// SaveSessions queues a bulk session save.
func (p *Persister) SaveSessions(sessions []Session) bool {
	if len(sessions) == 0 {
		return true
	}
	return p.Enqueue(Job{Name: "save_sessions", Run: func(ctx context.Context, s Store) error {
		return s.BulkSaveSessions(ctx, sessions)
	}})
}

// UpdateBankedBalance queues a banked balance write.
func (p *Persister) UpdateBankedBalance(playerID string, banked float64) bool {
	return p.Enqueue(Job{Name: "update_banked", Run: func(ctx context.Context, s Store) error {
		return s.UpdateBankedBalance(ctx, playerID, banked)
	}})
}

// UpdateUpgrades queues an upgrade level write. The map is copied.
func (p *Persister) UpdateUpgrades(playerID string, upgrades map[string]int) bool {
	levels := copyUpgrades(upgrades)
	return p.Enqueue(Job{Name: "update_upgrades", Run: func(ctx context.Context, s Store) error {
		return s.UpdateUpgrades(ctx, playerID, levels)
	}})
}

// IncrementKills queues a kill counter bump.
func (p *Persister) IncrementKills(playerID string, n int) bool {
	return p.Enqueue(Job{Name: "increment_kills", Run: func(ctx context.Context, s Store) error {
		return s.IncrementKills(ctx, playerID, n)
	}})
}

// SetPaid queues a paid flag write.
func (p *Persister) SetPaid(playerID string, paid bool) bool {
	return p.Enqueue(Job{Name: "set_paid", Run: func(ctx context.Context, s Store) error {
		return s.SetPaid(ctx, playerID, paid)
	}})
}

// CleanStaleSessions queues removal of expired sessions.
func (p *Persister) CleanStaleSessions(maxAge time.Duration) bool {
	return p.Enqueue(Job{Name: "clean_sessions", Run: func(ctx context.Context, s Store) error {
		n, err := s.CleanStaleSessions(ctx, maxAge)
		if err == nil && n > 0 {
			log.Printf("🧹 Removed %d stale sessions", n)
		}
		return err
	}})
}

// Stats returns current persister statistics.
func (p *Persister) Stats() PersisterStats {
	return PersisterStats{
		Enqueued:  p.enqueued.Load(),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
		Pending:   uint64(len(p.jobs)),
	}
}

// PersisterStats holds persister metrics.
type PersisterStats struct {
	Enqueued  uint64 `json:"enqueued"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Pending   uint64 `json:"pending"`
}
