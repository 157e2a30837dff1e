package db

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/anstrom/portsweep/internal/scanning"
)

// JobStatus is the lifecycle state of a scan job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobRunning, JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// ScanJob is a persisted background scan.
type ScanJob struct {
	ID              uuid.UUID      `db:"id" json:"id"`
	Target          string         `db:"target" json:"target"`
	Ports           string         `db:"ports" json:"ports"`
	Protocols       pq.StringArray `db:"protocols" json:"protocols"`
	TimeoutSeconds  int            `db:"timeout_seconds" json:"timeout_seconds"`
	Concurrency     int            `db:"concurrency" json:"concurrency"`
	Status          JobStatus      `db:"status" json:"status"`
	Progress        int            `db:"progress" json:"progress"`
	TotalProbes     int            `db:"total_probes" json:"total_probes"`
	CompletedProbes int            `db:"completed_probes" json:"completed_probes"`
	ErrorMessage    *string        `db:"error_message" json:"error_message,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	StartedAt       *time.Time     `db:"started_at" json:"started_at,omitempty"`
	CompletedAt     *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

// Duration returns the run time of a started job, up to now if still running.
func (j *ScanJob) Duration() time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	return end.Sub(*j.StartedAt)
}

// ScanConfig returns the job's scan settings.
func (j *ScanJob) ScanConfig() scanning.Config {
	return scanning.Config{
		Timeout:     time.Duration(j.TimeoutSeconds) * time.Second,
		Concurrency: j.Concurrency,
	}
}

// PortResult is one stored probe outcome.
type PortResult struct {
	ID        int64     `db:"id" json:"id"`
	JobID     uuid.UUID `db:"job_id" json:"job_id"`
	Host      string    `db:"host" json:"host"`
	Port      int       `db:"port" json:"port"`
	Protocol  string    `db:"protocol" json:"protocol"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ToResult converts the row back to a core result.
func (r *PortResult) ToResult() (scanning.Result, error) {
	protocol, err := scanning.ParseProtocol(r.Protocol)
	if err != nil {
		return scanning.Result{}, err
	}
	status, err := scanning.ParseStatus(r.Status)
	if err != nil {
		return scanning.Result{}, err
	}
	return scanning.Result{Host: r.Host, Port: r.Port, Protocol: protocol, Status: status}, nil
}

// ScanHistory summarizes a finished job.
type ScanHistory struct {
	ID                int64           `db:"id" json:"id"`
	JobID             uuid.UUID       `db:"job_id" json:"job_id"`
	Summary           json.RawMessage `db:"summary" json:"summary"`
	ExecutionSeconds  float64         `db:"execution_seconds" json:"execution_seconds"`
	OpenCount         int             `db:"open_count" json:"open_count"`
	OpenFilteredCount int             `db:"open_filtered_count" json:"open_filtered_count"`
	ClosedCount       int             `db:"closed_count" json:"closed_count"`
	FilteredCount     int             `db:"filtered_count" json:"filtered_count"`
	HostsScanned      int             `db:"hosts_scanned" json:"hosts_scanned"`
	HostsActive       int             `db:"hosts_active" json:"hosts_active"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}

// NewScanHistory builds a history row from a result summary.
func NewScanHistory(jobID uuid.UUID, summary scanning.Summary, elapsed time.Duration) (*ScanHistory, error) {
	raw, err := json.Marshal(summary)
	if err != nil {
		return nil, err
	}
	return &ScanHistory{
		JobID:             jobID,
		Summary:           raw,
		ExecutionSeconds:  elapsed.Seconds(),
		OpenCount:         summary.Open,
		OpenFilteredCount: summary.OpenFiltered,
		ClosedCount:       summary.Closed,
		FilteredCount:     summary.Filtered,
		HostsScanned:      summary.HostsScanned,
		HostsActive:       summary.HostsActive,
	}, nil
}

// Statistics aggregates job and result counts.
type Statistics struct {
	TotalJobs     int     `db:"total_jobs" json:"total_jobs"`
	CompletedJobs int     `db:"completed_jobs" json:"completed_jobs"`
	RunningJobs   int     `db:"running_jobs" json:"running_jobs"`
	FailedJobs    int     `db:"failed_jobs" json:"failed_jobs"`
	CancelledJobs int     `db:"cancelled_jobs" json:"cancelled_jobs"`
	TotalResults  int     `db:"total_results" json:"total_results"`
	OpenPorts     int     `db:"open_ports" json:"open_ports"`
	SuccessRate   float64 `db:"-" json:"success_rate"`
}

// JobFilter restricts ListJobs.
type JobFilter struct {
	Status JobStatus
	Limit  int
	Offset int
}

// ResultFilter restricts ListResults.
type ResultFilter struct {
	Status   string
	Host     string
	Protocol string
	Limit    int
	Offset   int
}
