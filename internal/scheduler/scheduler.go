// Package scheduler runs recurring scans. Each schedule is a cron expression
// plus a scan description; every tick submits a background job.
package scheduler

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/jobs"
	"github.com/anstrom/portsweep/internal/logging"
	"github.com/anstrom/portsweep/internal/profiles"
	"github.com/anstrom/portsweep/internal/scanning"
)

// Submitter starts background scans. *jobs.Manager implements it.
type Submitter interface {
	Submit(ctx context.Context, req jobs.Request) (*db.ScanJob, error)
}

// Definition describes a recurring scan. Ports, protocols, timeout and
// concurrency fall back to the named profile, then to scanner defaults.
type Definition struct {
	Name        string        `json:"name"`
	Cron        string        `json:"cron"`
	Target      string        `json:"target"`
	Ports       string        `json:"ports,omitempty"`
	Profile     string        `json:"profile,omitempty"`
	Protocols   []string      `json:"protocols,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	Concurrency int           `json:"concurrency,omitempty"`
	Disabled    bool          `json:"disabled"`
}

// Entry is a registered schedule and its run history.
type Entry struct {
	ID        uuid.UUID  `json:"id"`
	Def       Definition `json:"definition"`
	NextRun   time.Time  `json:"next_run"`
	LastRun   time.Time  `json:"last_run,omitzero"`
	LastJobID uuid.UUID  `json:"last_job_id,omitzero"`
	LastError string     `json:"last_error,omitempty"`
	Runs      int        `json:"runs"`

	cronID   cron.EntryID
	schedule cron.Schedule
}

// Scheduler manages recurring scans.
type Scheduler struct {
	cron      *cron.Cron
	submitter Submitter
	profiles  *profiles.Manager
	defaults  scanning.Config
	ports     string
	logger    *logging.Logger

	mu      sync.RWMutex
	entries map[string]*Entry
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a scheduler. defaultPorts and defaults apply to schedules that
// set neither ports nor a profile value.
func New(submitter Submitter, profileManager *profiles.Manager, defaults scanning.Config, defaultPorts string) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:      cron.New(),
		submitter: submitter,
		profiles:  profileManager,
		defaults:  defaults,
		ports:     defaultPorts,
		logger:    logging.Default().WithComponent("scheduler"),
		entries:   make(map[string]*Entry),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins firing schedules.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.NewScanError(errors.CodeConflict, "scheduler is already running")
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("Scheduler started", "schedules", len(s.entries))
	return nil
}

// Stop halts the scheduler and waits for in-progress submissions.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// Add validates and registers def.
func (s *Scheduler) Add(def Definition) (*Entry, error) {
	def.Name = strings.TrimSpace(def.Name)
	if def.Name == "" {
		return nil, errors.NewScanError(errors.CodeValidation, "schedule name is required")
	}
	schedule, err := cron.ParseStandard(def.Cron)
	if err != nil {
		return nil, errors.WrapScanError(errors.CodeScheduleFailed, "invalid cron expression "+def.Cron, err)
	}
	if _, err := s.request(def); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[def.Name]; exists {
		return nil, errors.NewScanError(errors.CodeConflict, "schedule "+def.Name+" already exists")
	}

	entry := &Entry{ID: uuid.New(), Def: def, schedule: schedule, NextRun: schedule.Next(time.Now())}
	name := def.Name
	entry.cronID = s.cron.Schedule(schedule, cron.FuncJob(func() { s.execute(name) }))
	s.entries[name] = entry

	s.logger.Info("Added schedule", "schedule", name, "cron", def.Cron, "target", def.Target)
	return entry.snapshot(), nil
}

// Remove unregisters the named schedule.
func (s *Scheduler) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[name]
	if !ok {
		return errors.NewScanError(errors.CodeNotFound, "schedule "+name+" not found")
	}
	s.cron.Remove(entry.cronID)
	delete(s.entries, name)

	s.logger.Info("Removed schedule", "schedule", name)
	return nil
}

// Enable resumes a disabled schedule.
func (s *Scheduler) Enable(name string) error {
	return s.setDisabled(name, false)
}

// Disable keeps a schedule registered but skips its ticks.
func (s *Scheduler) Disable(name string) error {
	return s.setDisabled(name, true)
}

func (s *Scheduler) setDisabled(name string, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[name]
	if !ok {
		return errors.NewScanError(errors.CodeNotFound, "schedule "+name+" not found")
	}
	entry.Def.Disabled = disabled
	return nil
}

// List returns every schedule ordered by name.
func (s *Scheduler) List() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		snapshot := entry.snapshot()
		if s.running {
			if next := s.cron.Entry(entry.cronID).Next; !next.IsZero() {
				snapshot.NextRun = next
			}
		}
		out = append(out, snapshot)
	}
	slices.SortFunc(out, func(a, b *Entry) int { return strings.Compare(a.Def.Name, b.Def.Name) })
	return out
}

// RunNow submits the named schedule immediately, regardless of its cron
// expression or disabled flag.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*db.ScanJob, error) {
	s.mu.RLock()
	entry, ok := s.entries[name]
	var def Definition
	if ok {
		def = entry.Def
	}
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewScanError(errors.CodeNotFound, "schedule "+name+" not found")
	}
	return s.submit(ctx, name, def)
}

func (s *Scheduler) execute(name string) {
	s.mu.RLock()
	entry, ok := s.entries[name]
	if !ok || entry.Def.Disabled {
		s.mu.RUnlock()
		return
	}
	def := entry.Def
	s.mu.RUnlock()

	if _, err := s.submit(s.ctx, name, def); err != nil {
		s.logger.Warn("Scheduled scan was not started", "schedule", name, "error", err)
	}
}

func (s *Scheduler) submit(ctx context.Context, name string, def Definition) (*db.ScanJob, error) {
	req, err := s.request(def)
	var job *db.ScanJob
	if err == nil {
		job, err = s.submitter.Submit(ctx, req)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.entries[name]; ok {
		entry.LastRun = time.Now()
		entry.Runs++
		entry.NextRun = entry.schedule.Next(entry.LastRun)
		entry.LastError = ""
		if err != nil {
			entry.LastError = err.Error()
		} else {
			entry.LastJobID = job.ID
		}
	}
	if err != nil {
		return nil, err
	}
	s.logger.Info("Scheduled scan started", "schedule", name, "job_id", job.ID.String())
	return job, nil
}

// request builds the job request for def.
func (s *Scheduler) request(def Definition) (jobs.Request, error) {
	if strings.TrimSpace(def.Target) == "" {
		return jobs.Request{}, errors.NewScanError(errors.CodeTargetInvalid, "schedule target is required")
	}

	req := jobs.Request{
		Target: def.Target,
		Ports:  s.ports,
		Config: s.defaults,
	}
	protocols := def.Protocols

	if def.Profile != "" {
		if s.profiles == nil {
			return jobs.Request{}, errors.NewScanError(errors.CodeConfiguration, "profiles are not available")
		}
		profile, err := s.profiles.Get(def.Profile)
		if err != nil {
			return jobs.Request{}, err
		}
		req.Ports = profile.Ports
		req.Config = profile.ScanConfig()
		if len(protocols) == 0 {
			protocols = profile.Protocols
		}
	}

	if def.Ports != "" {
		req.Ports = def.Ports
	}
	if def.Timeout > 0 {
		req.Config.Timeout = def.Timeout
	}
	if def.Concurrency > 0 {
		req.Config.Concurrency = def.Concurrency
	}

	parsed, err := scanning.ParseProtocols(protocols)
	if err != nil {
		return jobs.Request{}, err
	}
	req.Protocols = parsed

	if err := req.Config.Validate(); err != nil {
		return jobs.Request{}, err
	}
	if _, err := scanning.ExpandPorts(profiles.ResolvePorts(req.Ports)); err != nil {
		return jobs.Request{}, err
	}
	return req, nil
}

func (e *Entry) snapshot() *Entry {
	clone := *e
	clone.Def.Protocols = slices.Clone(e.Def.Protocols)
	return &clone
}
