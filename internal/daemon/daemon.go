// Package daemon runs the long-lived portsweep service: the HTTP API, the
// background job manager, recurring schedules and their shared database.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anstrom/portsweep/internal/api"
	"github.com/anstrom/portsweep/internal/api/handlers"
	"github.com/anstrom/portsweep/internal/config"
	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/jobs"
	"github.com/anstrom/portsweep/internal/logging"
	"github.com/anstrom/portsweep/internal/metrics"
	"github.com/anstrom/portsweep/internal/payloads"
	"github.com/anstrom/portsweep/internal/profiles"
	"github.com/anstrom/portsweep/internal/scanning"
	"github.com/anstrom/portsweep/internal/scheduler"
)

const (
	healthCheckInterval   = 30 * time.Second
	metricsUpdateInterval = 15 * time.Second
	jobShutdownTimeout    = 30 * time.Second
)

// File permission constants.
const (
	DefaultDirPermissions  = 0o750
	DefaultFilePermissions = 0o600
)

// Options control how the daemon starts.
type Options struct {
	// Migrate applies pending schema migrations after connecting.
	Migrate bool
	// PIDFile, when set, records the process ID and guards against a second instance.
	PIDFile string
	Version string
}

// Daemon wires and runs the service components.
type Daemon struct {
	config  *config.Config
	opts    Options
	logger  *logging.Logger
	metrics *metrics.PrometheusMetrics

	mu        sync.RWMutex
	database  *db.DB
	manager   *jobs.Manager
	scheduler *scheduler.Scheduler
	hub       *handlers.Hub
	server    *api.Server
	started   time.Time
}

// New creates a daemon for cfg.
func New(cfg *config.Config, opts Options) *Daemon {
	return &Daemon{
		config:  cfg,
		opts:    opts,
		logger:  logging.Default().WithComponent("daemon"),
		metrics: metrics.GetGlobalMetrics(),
	}
}

// Run starts every component and blocks until ctx is canceled or the API
// server fails. Running jobs are stopped and recorded as cancelled on return.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.config.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := d.createPIDFile(); err != nil {
		return err
	}
	defer d.removePIDFile()

	if err := d.initDatabase(ctx); err != nil {
		return err
	}
	defer d.closeDatabase()

	if err := d.initComponents(ctx); err != nil {
		return err
	}

	if err := d.scheduler.Start(); err != nil {
		return err
	}
	d.started = time.Now()
	d.logger.Info("Daemon started",
		"pid", os.Getpid(),
		"address", d.config.APIAddress(),
		"max_jobs", d.config.Jobs.MaxConcurrent,
		"schedules", len(d.config.Schedules))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.server.Start(gctx)
	})
	g.Go(func() error {
		d.metrics.StartPeriodicUpdates(gctx, metricsUpdateInterval)
		return nil
	})
	g.Go(func() error {
		d.healthLoop(gctx)
		return nil
	})
	g.Go(func() error {
		d.handleStatusSignal(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		d.scheduler.Stop()
		return nil
	})

	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), jobShutdownTimeout)
	defer cancel()
	if err := d.manager.Shutdown(shutdownCtx); err != nil {
		d.logger.Error("Job manager shutdown incomplete", "error", err)
	}
	d.logger.Info("Daemon stopped", "uptime", time.Since(d.started).Round(time.Second))
	return runErr
}

func (d *Daemon) initDatabase(ctx context.Context) error {
	var (
		database *db.DB
		err      error
	)
	if d.opts.Migrate {
		database, err = db.ConnectAndMigrate(ctx, &d.config.Database)
	} else {
		database, err = db.Connect(ctx, &d.config.Database)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	d.mu.Lock()
	d.database = database
	d.mu.Unlock()
	return nil
}

func (d *Daemon) closeDatabase() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.database != nil {
		if err := d.database.Close(); err != nil {
			d.logger.Error("Error closing database", "error", err)
		}
		d.database = nil
	}
}

func (d *Daemon) initComponents(ctx context.Context) error {
	cfg := d.config
	store := db.NewStore(d.database)
	if cfg.Jobs.RecoverOnStart {
		recovered, err := store.RecoverInterrupted(ctx)
		if err != nil {
			return err
		}
		if recovered > 0 {
			d.logger.Warn("Marked interrupted jobs as failed", "jobs", recovered)
		}
	}

	profileManager, err := LoadProfiles(cfg)
	if err != nil {
		return err
	}

	scanner, err := NewScanner(cfg, d.metrics)
	if err != nil {
		return err
	}

	d.hub = handlers.NewHub(logging.Default())
	d.manager = jobs.NewManager(store, scanner, jobs.Options{
		MaxConcurrent:          cfg.Jobs.MaxConcurrent,
		MaxProbes:              cfg.Scanning.MaxProbes,
		ProgressUpdateInterval: cfg.Jobs.ProgressUpdateInterval,
		Publisher:              d.hub,
		Logger:                 logging.Default(),
		Metrics:                d.metrics,
	})

	d.scheduler = scheduler.New(d.manager, profileManager, cfg.Scanning.ScanConfig(), cfg.Scanning.Ports)
	for _, sc := range cfg.Schedules {
		if _, err := d.scheduler.Add(ScheduleDefinition(sc)); err != nil {
			return fmt.Errorf("schedule %q: %w", sc.Name, err)
		}
	}

	d.server, err = api.New(cfg, api.Dependencies{
		Store:     store,
		Jobs:      d.manager,
		Schedules: d.scheduler,
		Profiles:  profileManager,
		Hub:       d.hub,
		DB:        d.database,
		Metrics:   d.metrics,
		Logger:    logging.Default(),
		Version:   d.opts.Version,
	})
	return err
}

// NewScanner builds a scanner with the configured UDP payload table.
func NewScanner(cfg *config.Config, m *metrics.PrometheusMetrics) (*scanning.Scanner, error) {
	overrides, err := cfg.Scanning.PayloadOverrides()
	if err != nil {
		return nil, err
	}
	table, err := payloads.NewTable(overrides)
	if err != nil {
		return nil, err
	}
	return scanning.NewScanner(
		scanning.WithPayloads(table),
		scanning.WithProgressInterval(cfg.Scanning.ProgressInterval),
		scanning.WithMaxProbes(cfg.Scanning.MaxProbes),
		scanning.WithLogger(logging.Default().WithComponent("scanner")),
		scanning.WithMetrics(m),
	), nil
}

// LoadProfiles returns the built-in profiles merged with the configured profiles file.
func LoadProfiles(cfg *config.Config) (*profiles.Manager, error) {
	manager := profiles.NewManager()
	if cfg.Scanning.ProfilesFile != "" {
		if err := manager.LoadFile(cfg.Scanning.ProfilesFile); err != nil {
			return nil, err
		}
	}
	return manager, nil
}

// ScheduleDefinition converts a configured schedule.
func ScheduleDefinition(sc config.ScheduleConfig) scheduler.Definition {
	return scheduler.Definition{
		Name:        sc.Name,
		Cron:        sc.Cron,
		Target:      sc.Target,
		Ports:       sc.Ports,
		Profile:     sc.Profile,
		Protocols:   sc.Protocols,
		Timeout:     sc.Timeout,
		Concurrency: sc.Concurrency,
		Disabled:    sc.Disabled,
	}
}

func (d *Daemon) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.performHealthCheck(ctx)
		}
	}
}

// performHealthCheck pings the database. database/sql reconnects on its own,
// so a failure is only logged.
func (d *Daemon) performHealthCheck(ctx context.Context) {
	d.mu.RLock()
	database := d.database
	d.mu.RUnlock()
	if database == nil {
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.Ping(pingCtx); err != nil {
		d.logger.Warn("Database health check failed", "error", err)
	}
}

// handleStatusSignal logs a status snapshot on SIGUSR1.
func (d *Daemon) handleStatusSignal(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigChan:
			d.dumpStatus()
		}
	}
}

// Status is a point-in-time view of the daemon.
type Status struct {
	PID              int
	Uptime           time.Duration
	Jobs             jobs.SlotStats
	RunningJobs      int
	Schedules        int
	WebSocketClients int
}

// Status returns a snapshot of the running components.
func (d *Daemon) Status() Status {
	status := Status{PID: os.Getpid()}
	if !d.started.IsZero() {
		status.Uptime = time.Since(d.started)
	}
	if d.manager != nil {
		status.Jobs = d.manager.Stats()
		status.RunningJobs = len(d.manager.Running())
	}
	if d.scheduler != nil {
		status.Schedules = len(d.scheduler.List())
	}
	if d.hub != nil {
		status.WebSocketClients = d.hub.Clients()
	}
	return status
}

func (d *Daemon) dumpStatus() {
	s := d.Status()
	d.logger.Info("Daemon status",
		"pid", s.PID,
		"uptime", s.Uptime.Round(time.Second),
		"running_jobs", s.RunningJobs,
		"job_slots_available", s.Jobs.Available,
		"job_slots_capacity", s.Jobs.Capacity,
		"schedules", s.Schedules,
		"websocket_clients", s.WebSocketClients)
}

// createPIDFile writes the PID file, refusing to start if another live
// process owns it.
func (d *Daemon) createPIDFile() error {
	if d.opts.PIDFile == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(d.opts.PIDFile), DefaultDirPermissions); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}
	if err := d.checkExistingPID(); err != nil {
		return err
	}

	pid := os.Getpid()
	if err := os.WriteFile(d.opts.PIDFile, []byte(strconv.Itoa(pid)), DefaultFilePermissions); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	d.logger.Debug("Created PID file", "path", d.opts.PIDFile, "pid", pid)
	return nil
}

// checkExistingPID removes stale or unreadable PID files.
func (d *Daemon) checkExistingPID() error {
	data, err := os.ReadFile(d.opts.PIDFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read existing PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		_ = os.Remove(d.opts.PIDFile)
		return nil
	}
	if pid != os.Getpid() && isProcessRunning(pid) {
		return fmt.Errorf("portsweep already running with PID %d", pid)
	}
	_ = os.Remove(d.opts.PIDFile)
	return nil
}

func (d *Daemon) removePIDFile() {
	if d.opts.PIDFile == "" {
		return
	}
	if err := os.Remove(d.opts.PIDFile); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("Error removing PID file", "path", d.opts.PIDFile, "error", err)
	}
}

func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
