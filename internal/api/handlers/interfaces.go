package handlers

//go:generate go run go.uber.org/mock/mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks

import (
	"context"

	"github.com/google/uuid"

	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/jobs"
	"github.com/anstrom/portsweep/internal/scanning"
	"github.com/anstrom/portsweep/internal/scheduler"
)

// ScanStore reads and deletes persisted scan jobs.
type ScanStore interface {
	GetJob(ctx context.Context, id uuid.UUID) (*db.ScanJob, error)
	ListJobs(ctx context.Context, filter db.JobFilter) ([]*db.ScanJob, int, error)
	DeleteJob(ctx context.Context, id uuid.UUID) error
	ListResults(ctx context.Context, jobID uuid.UUID, filter db.ResultFilter) ([]db.PortResult, int, error)
	AllResults(ctx context.Context, jobID uuid.UUID) ([]scanning.Result, error)
	GetHistory(ctx context.Context, jobID uuid.UUID) (*db.ScanHistory, error)
	Statistics(ctx context.Context) (*db.Statistics, error)
}

// JobController starts and stops background scans.
type JobController interface {
	Submit(ctx context.Context, req jobs.Request) (*db.ScanJob, error)
	Stop(id uuid.UUID) error
	IsRunning(id uuid.UUID) bool
	Stats() jobs.SlotStats
}

// ScheduleController exposes the recurring scan schedule.
type ScheduleController interface {
	List() []*scheduler.Entry
	RunNow(ctx context.Context, name string) (*db.ScanJob, error)
	Enable(name string) error
	Disable(name string) error
}

// Pinger checks database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
