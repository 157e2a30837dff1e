// Package jobs runs scans in the background, persists their lifecycle and
// publishes progress to subscribers.
package jobs

import (
	"context"
	stderrors "errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/logging"
	"github.com/anstrom/portsweep/internal/metrics"
	"github.com/anstrom/portsweep/internal/profiles"
	"github.com/anstrom/portsweep/internal/scanning"
)

// Store is the persistence the manager needs. *db.Store implements it.
type Store interface {
	CreateJob(ctx context.Context, job *db.ScanJob) error
	MarkRunning(ctx context.Context, id uuid.UUID, totalProbes int) error
	UpdateProgress(ctx context.Context, id uuid.UUID, completed, total int) error
	CompleteJob(ctx context.Context, id uuid.UUID, results []scanning.Result, history *db.ScanHistory) error
	CancelJob(ctx context.Context, id uuid.UUID, results []scanning.Result, history *db.ScanHistory) error
	FailJob(ctx context.Context, id uuid.UUID, message string) error
}

// Runner executes a scan. *scanning.Scanner implements it.
type Runner interface {
	Scan(
		ctx context.Context,
		hosts []string,
		ports []int,
		protocols []scanning.Protocol,
		cfg scanning.Config,
		progress scanning.ProgressFunc,
	) ([]scanning.Result, error)
}

// Publisher receives job events.
type Publisher interface {
	Publish(event Event)
}

// Event reports a job's progress or final state.
type Event struct {
	JobID     uuid.UUID    `json:"job_id"`
	Status    db.JobStatus `json:"status"`
	Completed int          `json:"completed"`
	Total     int          `json:"total"`
	Progress  int          `json:"progress"`
	Open      int          `json:"open,omitempty"`
	Error     string       `json:"error,omitempty"`
	Time      time.Time    `json:"time"`
}

// Request describes a background scan. Ports may contain named port sets.
type Request struct {
	Target    string
	Ports     string
	Protocols []scanning.Protocol
	Config    scanning.Config
}

// Options configure a Manager.
type Options struct {
	MaxConcurrent int
	// MaxProbes caps hosts x ports x protocols per job. Zero means
	// scanning.DefaultMaxProbes.
	MaxProbes int
	// ProgressUpdateInterval is the minimum time between progress writes.
	ProgressUpdateInterval time.Duration
	Publisher              Publisher
	Logger                 *logging.Logger
	Metrics                *metrics.PrometheusMetrics
}

type runningJob struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager starts, tracks and stops background scan jobs.
type Manager struct {
	store     Store
	runner    Runner
	slots     *Slots
	publisher Publisher
	logger    *logging.Logger
	metrics   *metrics.PrometheusMetrics
	interval  time.Duration
	maxProbes int

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	running map[uuid.UUID]*runningJob
	closed  bool
}

// NewManager creates a job manager.
func NewManager(store Store, runner Runner, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:     store,
		runner:    runner,
		slots:     NewSlots(opts.MaxConcurrent),
		publisher: opts.Publisher,
		logger:    opts.Logger.WithComponent("jobs"),
		metrics:   opts.Metrics,
		interval:  opts.ProgressUpdateInterval,
		maxProbes: opts.MaxProbes,
		baseCtx:   ctx,
		cancel:    cancel,
		running:   make(map[uuid.UUID]*runningJob),
	}
}

type plan struct {
	hosts     []string
	ports     []int
	protocols []scanning.Protocol
}

func (p plan) total() int {
	return len(p.hosts) * len(p.ports) * len(p.protocols)
}

func buildPlan(req Request, maxProbes int) (plan, error) {
	if strings.TrimSpace(req.Target) == "" {
		return plan{}, errors.NewScanError(errors.CodeTargetInvalid, "target is required")
	}
	if err := req.Config.Validate(); err != nil {
		return plan{}, err
	}
	ports, err := scanning.ExpandPorts(profiles.ResolvePorts(req.Ports))
	if err != nil {
		return plan{}, err
	}
	if len(ports) == 0 {
		return plan{}, errors.NewScanError(errors.CodeValidation, "no ports to scan")
	}
	hostCount := scanning.CountTargets(req.Target)
	if hostCount == 0 {
		return plan{}, errors.NewScanErrorWithTarget(errors.CodeTargetInvalid, "target expands to no hosts", req.Target)
	}
	protocols := scanning.NormalizeProtocols(req.Protocols)
	if err := scanning.CheckProbeLimit(hostCount, len(ports), len(protocols), maxProbes); err != nil {
		return plan{}, err
	}
	hosts := scanning.ExpandTargets(req.Target)
	return plan{hosts: hosts, ports: ports, protocols: protocols}, nil
}

// Submit validates req, persists a pending job and starts it in the background.
// It fails with JOB_CAPACITY when every slot is taken.
func (m *Manager) Submit(ctx context.Context, req Request) (*db.ScanJob, error) {
	p, err := buildPlan(req, m.maxProbes)
	if err != nil {
		return nil, err
	}

	// The job is registered under the same lock that Shutdown holds while it
	// snapshots running jobs, so Shutdown always waits for it.
	id := uuid.New()
	runCtx, cancel := context.WithCancel(m.baseCtx)
	rj := &runningJob{cancel: cancel, done: make(chan struct{})}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return nil, m.slots.errClosed()
	}
	if err := m.slots.TryAcquire(id.String()); err != nil {
		m.mu.Unlock()
		cancel()
		return nil, err
	}
	m.running[id] = rj
	count := len(m.running)
	m.mu.Unlock()
	m.setRunningGauge(count)

	names := make([]string, len(p.protocols))
	for i, protocol := range p.protocols {
		names[i] = protocol.String()
	}
	job := &db.ScanJob{
		ID:             id,
		Target:         req.Target,
		Ports:          req.Ports,
		Protocols:      names,
		TimeoutSeconds: int(req.Config.Timeout.Round(time.Second) / time.Second),
		Concurrency:    req.Config.Concurrency,
		Status:         db.JobPending,
		TotalProbes:    p.total(),
	}
	if job.TimeoutSeconds < 1 {
		job.TimeoutSeconds = 1
	}
	if err := m.store.CreateJob(ctx, job); err != nil {
		m.release(id, rj)
		return nil, err
	}

	go m.run(runCtx, job, req.Config, p, rj)
	return job, nil
}

// release frees the job's slot and unregisters it.
func (m *Manager) release(id uuid.UUID, rj *runningJob) {
	rj.cancel()
	m.slots.Release(id.String())
	m.mu.Lock()
	delete(m.running, id)
	count := len(m.running)
	m.mu.Unlock()
	m.setRunningGauge(count)
	close(rj.done)
}

func (m *Manager) run(ctx context.Context, job *db.ScanJob, cfg scanning.Config, p plan, rj *runningJob) {
	logger := m.logger.WithJobID(job.ID.String()).WithTarget(job.Target)
	storeCtx := context.WithoutCancel(ctx)
	total := p.total()

	defer m.release(job.ID, rj)

	if err := m.store.MarkRunning(storeCtx, job.ID, total); err != nil {
		logger.Error("Failed to mark job running", "error", err)
		m.fail(storeCtx, logger, job.ID, total, err)
		return
	}
	m.publish(Event{JobID: job.ID, Status: db.JobRunning, Total: total})
	logger.Info("Job started", "probes", total)

	start := time.Now()
	var lastWrite time.Time
	progress := func(completed, total int) {
		m.publish(Event{
			JobID:     job.ID,
			Status:    db.JobRunning,
			Completed: completed,
			Total:     total,
			Progress:  percent(completed, total),
		})
		if completed < total && time.Since(lastWrite) < m.interval {
			return
		}
		lastWrite = time.Now()
		if err := m.store.UpdateProgress(storeCtx, job.ID, completed, total); err != nil {
			logger.Warn("Failed to record progress", "error", err)
		}
	}

	results, err := m.runner.Scan(ctx, p.hosts, p.ports, p.protocols, cfg, progress)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		m.finishWithResults(storeCtx, logger, job.ID, db.JobCompleted, total, results, elapsed)
	case stderrors.Is(err, context.Canceled):
		m.finishWithResults(storeCtx, logger, job.ID, db.JobCancelled, total, results, elapsed)
	default:
		m.fail(storeCtx, logger, job.ID, total, err)
	}
}

func (m *Manager) finishWithResults(
	ctx context.Context,
	logger *logging.Logger,
	id uuid.UUID,
	status db.JobStatus,
	total int,
	results []scanning.Result,
	elapsed time.Duration,
) {
	summary := scanning.Summarize(results)
	history, err := db.NewScanHistory(id, summary, elapsed)
	if err != nil {
		m.fail(ctx, logger, id, total, err)
		return
	}

	store := m.store.CompleteJob
	if status == db.JobCancelled {
		store = m.store.CancelJob
	}
	if err := store(ctx, id, results, history); err != nil {
		logger.Error("Failed to store job results", "error", err)
		m.fail(ctx, logger, id, total, err)
		return
	}

	logger.Info("Job finished",
		"status", string(status),
		"probes", len(results),
		"open", summary.Open,
		"duration", elapsed)
	m.countJob(status)
	m.publish(Event{
		JobID:     id,
		Status:    status,
		Completed: len(results),
		Total:     total,
		Progress:  percent(len(results), total),
		Open:      summary.Open,
	})
}

func (m *Manager) fail(ctx context.Context, logger *logging.Logger, id uuid.UUID, total int, cause error) {
	if err := m.store.FailJob(ctx, id, cause.Error()); err != nil {
		logger.Error("Failed to mark job failed", "error", err)
	}
	logger.Error("Job failed", "error", cause)
	m.countJob(db.JobFailed)
	m.publish(Event{JobID: id, Status: db.JobFailed, Total: total, Error: cause.Error()})
}

func percent(completed, total int) int {
	if total == 0 {
		return 0
	}
	return completed * 100 / total
}

func (m *Manager) publish(event Event) {
	if m.publisher == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	m.publisher.Publish(event)
}

func (m *Manager) countJob(status db.JobStatus) {
	if m.metrics != nil {
		m.metrics.IncrementJobs(string(status))
	}
}

func (m *Manager) setRunningGauge(n int) {
	if m.metrics != nil {
		m.metrics.SetRunningJobs(n)
	}
}

// Stop asks a running job to stop. Probes already in flight finish and their
// results are kept; the job ends as cancelled.
func (m *Manager) Stop(id uuid.UUID) error {
	m.mu.Lock()
	rj, ok := m.running[id]
	m.mu.Unlock()
	if !ok {
		return errors.NewScanError(errors.CodeNotFound, "job "+id.String()+" is not running")
	}
	rj.cancel()
	return nil
}

// Wait blocks until job id is no longer running or ctx is done.
func (m *Manager) Wait(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	rj, ok := m.running[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-rj.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether job id is active in this process.
func (m *Manager) IsRunning(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[id]
	return ok
}

// Running returns the ids of active jobs.
func (m *Manager) Running() []uuid.UUID {
	m.mu.Lock()
	ids := make([]uuid.UUID, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	return ids
}

// Stats reports slot usage.
func (m *Manager) Stats() SlotStats {
	return m.slots.Stats()
}

// Shutdown stops accepting jobs, stops every running job and waits for them
// to record their final state.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	pending := make([]*runningJob, 0, len(m.running))
	for _, rj := range m.running {
		pending = append(pending, rj)
	}
	m.mu.Unlock()

	m.slots.Close()
	m.cancel()

	for _, rj := range pending {
		select {
		case <-rj.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.logger.Info("Job manager stopped", "stopped_jobs", len(pending))
	return nil
}
