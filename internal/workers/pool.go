// Package workers provides a bounded worker pool for concurrent operations in
// portsweep. Submission blocks while every worker is busy, which gives callers
// natural backpressure and a precise point at which to stop handing out work.
package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anstrom/portsweep/internal/logging"
)

// ErrPoolClosed is returned by Submit after Close has been called.
var ErrPoolClosed = errors.New("worker pool is closed")

// Job represents a unit of work to be executed by a worker.
type Job interface {
	// Execute performs the job and returns an error if it fails.
	Execute(ctx context.Context) error
	// ID returns an identifier for the job.
	ID() string
	// Type returns the job type for logging.
	Type() string
}

// Config holds configuration for the worker pool.
type Config struct {
	// Size is the number of worker goroutines to create.
	Size int
	// QueueSize is the number of jobs that may wait for a worker. Zero means
	// a job is only accepted when a worker is ready to run it.
	QueueSize int
}

// DefaultConfig returns a default worker pool configuration.
func DefaultConfig() Config {
	return Config{Size: 10}
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Submitted int64
	Succeeded int64
	Failed    int64
	Panicked  int64
}

// Pool manages a fixed set of worker goroutines.
type Pool struct {
	config Config
	jobs   chan Job
	wg     sync.WaitGroup
	logger *logging.Logger

	mu     sync.RWMutex
	closed bool

	startOnce sync.Once

	submitted atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64
}

// New creates a new worker pool. Sizes below one are raised to one.
func New(config Config) *Pool {
	if config.Size < 1 {
		config.Size = 1
	}
	if config.QueueSize < 0 {
		config.QueueSize = 0
	}
	return &Pool{
		config: config,
		jobs:   make(chan Job, config.QueueSize),
		logger: logging.Default().WithComponent("workers"),
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.config.Size
}

// Start launches the workers. Jobs run with ctx; canceling it does not stop
// the workers, it is only handed to each job.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.logger.Debug("Starting worker pool",
			"worker_count", p.config.Size,
			"queue_size", p.config.QueueSize)

		for i := 0; i < p.config.Size; i++ {
			p.wg.Add(1)
			go p.run(ctx, i)
		}
	})
}

// Submit hands a job to the pool, blocking until it is accepted or ctx is done.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- job:
		p.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits until every accepted job has finished.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug("Worker pool closed",
		"submitted", p.submitted.Load(),
		"failed", p.failed.Load())
}

// Stats returns the pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Panicked:  p.panicked.Load(),
	}
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.execute(ctx, id, job)
	}
}

func (p *Pool) execute(ctx context.Context, workerID int, job Job) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			p.failed.Add(1)
			p.logger.Error("Job panicked",
				"job_id", job.ID(),
				"job_type", job.Type(),
				"worker_id", workerID,
				"panic", fmt.Sprint(r))
		}
	}()

	if err := job.Execute(ctx); err != nil {
		p.failed.Add(1)
		p.logger.Debug("Job failed",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"worker_id", workerID,
			"duration", time.Since(start),
			"error", err)
		return
	}
	p.succeeded.Add(1)
}
