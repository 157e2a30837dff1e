package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/scanning"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000

	jobColumns = `id, target, ports, protocols, timeout_seconds, concurrency, status,
		progress, total_probes, completed_probes, error_message, created_at, started_at, completed_at`
)

// Store persists scan jobs, their results and history.
type Store struct {
	db *DB
}

// NewStore creates a store on db.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

// CreateJob inserts a pending job. A zero ID is replaced with a new UUID.
func (s *Store) CreateJob(ctx context.Context, job *ScanJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = JobPending
	}

	query := `
		INSERT INTO scan_jobs (id, target, ports, protocols, timeout_seconds, concurrency, status)
		VALUES (:id, :target, :ports, :protocols, :timeout_seconds, :concurrency, :status)
		RETURNING created_at`

	rows, err := s.db.NamedQueryContext(ctx, query, job)
	if err != nil {
		return sanitizeDBError("create scan job", err)
	}
	defer func() { _ = rows.Close() }()

	if rows.Next() {
		if err := rows.Scan(&job.CreatedAt); err != nil {
			return sanitizeDBError("create scan job", err)
		}
	}
	return sanitizeDBError("create scan job", rows.Err())
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*ScanJob, error) {
	var job ScanJob
	query := `SELECT ` + jobColumns + ` FROM scan_jobs WHERE id = $1`
	if err := s.db.GetContext(ctx, &job, query, id); err != nil {
		if err = sanitizeDBError("get scan job", err); errors.IsNotFound(err) {
			return nil, errors.ErrNotFound("scan job", id.String())
		}
		return nil, err
	}
	return &job, nil
}

// ListJobs returns a page of jobs, newest first, and the total matching count.
func (s *Store) ListJobs(ctx context.Context, filter JobFilter) ([]*ScanJob, int, error) {
	where := ""
	args := []any{}
	if filter.Status != "" {
		where = " WHERE status = $1"
		args = append(args, string(filter.Status))
	}

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM scan_jobs`+where, args...); err != nil {
		return nil, 0, sanitizeDBError("count scan jobs", err)
	}

	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM scan_jobs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		jobColumns, where, n+1, n+2)
	args = append(args, clampLimit(filter.Limit), max(filter.Offset, 0))

	jobs := []*ScanJob{}
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, 0, sanitizeDBError("list scan jobs", err)
	}
	return jobs, total, nil
}

// DeleteJob removes a job together with its results and history.
func (s *Store) DeleteJob(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM scan_jobs WHERE id = $1`, id)
	if err != nil {
		return sanitizeDBError("delete scan job", err)
	}
	return requireAffected(result.RowsAffected, "scan job", id)
}

// MarkRunning moves a pending job to running.
func (s *Store) MarkRunning(ctx context.Context, id uuid.UUID, totalProbes int) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE scan_jobs
		SET status = 'running', started_at = NOW(), total_probes = $2
		WHERE id = $1 AND status = 'pending'`, id, totalProbes)
	if err != nil {
		return sanitizeDBError("mark scan job running", err)
	}
	return requireAffected(result.RowsAffected, "pending scan job", id)
}

// UpdateProgress records completed probe counts for a running job.
func (s *Store) UpdateProgress(ctx context.Context, id uuid.UUID, completed, total int) error {
	percent := 0
	if total > 0 {
		percent = completed * 100 / total
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE scan_jobs
		SET completed_probes = $2, total_probes = $3, progress = $4
		WHERE id = $1 AND status = 'running'`, id, completed, total, percent)
	return sanitizeDBError("update scan job progress", err)
}

// FinishJob stores results and history and moves the job to status, which
// must be completed or cancelled, in one transaction.
func (s *Store) FinishJob(
	ctx context.Context,
	id uuid.UUID,
	status JobStatus,
	results []scanning.Result,
	history *ScanHistory,
) error {
	if status != JobCompleted && status != JobCancelled {
		return errors.NewDatabaseError(errors.CodeValidation, fmt.Sprintf("cannot finish job with status %q", status))
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return sanitizeDBError("begin finish transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertResults(ctx, tx, id, results); err != nil {
		return err
	}

	if history != nil {
		history.JobID = id
		rows, err := tx.NamedQuery(`
			INSERT INTO scan_history (job_id, summary, execution_seconds, open_count, open_filtered_count,
				closed_count, filtered_count, hosts_scanned, hosts_active)
			VALUES (:job_id, :summary, :execution_seconds, :open_count, :open_filtered_count,
				:closed_count, :filtered_count, :hosts_scanned, :hosts_active)
			RETURNING id, created_at`, history)
		if err != nil {
			return sanitizeDBError("insert scan history", err)
		}
		if rows.Next() {
			err = rows.Scan(&history.ID, &history.CreatedAt)
		}
		_ = rows.Close()
		if err != nil {
			return sanitizeDBError("insert scan history", err)
		}
	}

	progressSQL := "progress"
	if status == JobCompleted {
		progressSQL = "100"
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE scan_jobs
		SET status = $2, completed_probes = $3, progress = `+progressSQL+`, completed_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'running')`, id, string(status), len(results))
	if err != nil {
		return sanitizeDBError("finish scan job", err)
	}
	if err := requireAffected(result.RowsAffected, "active scan job", id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return sanitizeDBError("commit finish transaction", err)
	}
	return nil
}

// CompleteJob stores every result and the history entry and marks the job completed.
func (s *Store) CompleteJob(ctx context.Context, id uuid.UUID, results []scanning.Result, history *ScanHistory) error {
	return s.FinishJob(ctx, id, JobCompleted, results, history)
}

// CancelJob stores the partial results gathered before a stop and marks the job cancelled.
func (s *Store) CancelJob(ctx context.Context, id uuid.UUID, results []scanning.Result, history *ScanHistory) error {
	return s.FinishJob(ctx, id, JobCancelled, results, history)
}

func insertResults(ctx context.Context, tx *sqlx.Tx, jobID uuid.UUID, results []scanning.Result) error {
	if len(results) == 0 {
		return nil
	}
	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO scan_results (job_id, host, port, protocol, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id, host, port, protocol) DO UPDATE SET status = EXCLUDED.status`)
	if err != nil {
		return sanitizeDBError("prepare result insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, jobID, r.Host, r.Port, r.Protocol.String(), r.Status.String()); err != nil {
			return sanitizeDBError("insert scan result", err)
		}
	}
	return nil
}

// FailJob marks an active job as failed with message.
func (s *Store) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE scan_jobs
		SET status = 'failed', error_message = $2, completed_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'running')`, id, message)
	if err != nil {
		return sanitizeDBError("fail scan job", err)
	}
	return requireAffected(result.RowsAffected, "active scan job", id)
}

// RecoverInterrupted fails every job left pending or running by a previous
// process and returns how many were updated.
func (s *Store) RecoverInterrupted(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE scan_jobs
		SET status = 'failed', error_message = 'interrupted by shutdown', completed_at = NOW()
		WHERE status IN ('pending', 'running')`)
	if err != nil {
		return 0, sanitizeDBError("recover interrupted jobs", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, sanitizeDBError("recover interrupted jobs", err)
	}
	return n, nil
}

// ListResults returns a page of a job's results ordered by host, port and
// protocol, and the total matching count.
func (s *Store) ListResults(ctx context.Context, jobID uuid.UUID, filter ResultFilter) ([]PortResult, int, error) {
	conds := []string{"job_id = $1"}
	args := []any{jobID}
	if filter.Status != "" {
		status, err := scanning.ParseStatus(filter.Status)
		if err != nil {
			return nil, 0, err
		}
		args = append(args, status.String())
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Host != "" {
		args = append(args, filter.Host)
		conds = append(conds, fmt.Sprintf("host = $%d", len(args)))
	}
	if filter.Protocol != "" {
		protocol, err := scanning.ParseProtocol(filter.Protocol)
		if err != nil {
			return nil, 0, err
		}
		args = append(args, protocol.String())
		conds = append(conds, fmt.Sprintf("protocol = $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conds, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM scan_results`+where, args...); err != nil {
		return nil, 0, sanitizeDBError("count scan results", err)
	}

	n := len(args)
	query := fmt.Sprintf(`
		SELECT id, job_id, host, port, protocol, status, created_at
		FROM scan_results%s
		ORDER BY host, port, protocol
		LIMIT $%d OFFSET $%d`, where, n+1, n+2)
	args = append(args, clampLimit(filter.Limit), max(filter.Offset, 0))

	results := []PortResult{}
	if err := s.db.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, 0, sanitizeDBError("list scan results", err)
	}
	return results, total, nil
}

// AllResults returns every stored result of a job as core results.
func (s *Store) AllResults(ctx context.Context, jobID uuid.UUID) ([]scanning.Result, error) {
	rows := []PortResult{}
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, job_id, host, port, protocol, status, created_at
		FROM scan_results WHERE job_id = $1`, jobID); err != nil {
		return nil, sanitizeDBError("load scan results", err)
	}

	results := make([]scanning.Result, 0, len(rows))
	for i := range rows {
		r, err := rows[i].ToResult()
		if err != nil {
			return nil, errors.WrapDatabaseError(errors.CodeDatabaseQuery, "stored result is malformed", err)
		}
		results = append(results, r)
	}
	return results, nil
}

// GetHistory returns the history entry of a finished job.
func (s *Store) GetHistory(ctx context.Context, jobID uuid.UUID) (*ScanHistory, error) {
	var h ScanHistory
	if err := s.db.GetContext(ctx, &h, `SELECT * FROM scan_history WHERE job_id = $1`, jobID); err != nil {
		if err = sanitizeDBError("get scan history", err); errors.IsNotFound(err) {
			return nil, errors.ErrNotFound("scan history", jobID.String())
		}
		return nil, err
	}
	return &h, nil
}

// ListHistory returns the most recent history entries.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]*ScanHistory, error) {
	history := []*ScanHistory{}
	if err := s.db.SelectContext(ctx, &history,
		`SELECT * FROM scan_history ORDER BY created_at DESC LIMIT $1`, clampLimit(limit)); err != nil {
		return nil, sanitizeDBError("list scan history", err)
	}
	return history, nil
}

// Statistics aggregates job and result counts.
func (s *Store) Statistics(ctx context.Context) (*Statistics, error) {
	var stats Statistics
	if err := s.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS total_jobs,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed_jobs,
			COUNT(*) FILTER (WHERE status = 'running') AS running_jobs,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed_jobs,
			COUNT(*) FILTER (WHERE status = 'cancelled') AS cancelled_jobs
		FROM scan_jobs`); err != nil {
		return nil, sanitizeDBError("job statistics", err)
	}

	var counts struct {
		TotalResults int `db:"total_results"`
		OpenPorts    int `db:"open_ports"`
	}
	if err := s.db.GetContext(ctx, &counts, `
		SELECT
			COUNT(*) AS total_results,
			COUNT(*) FILTER (WHERE status = 'open') AS open_ports
		FROM scan_results`); err != nil {
		return nil, sanitizeDBError("result statistics", err)
	}
	stats.TotalResults = counts.TotalResults
	stats.OpenPorts = counts.OpenPorts

	if finished := stats.CompletedJobs + stats.FailedJobs; finished > 0 {
		stats.SuccessRate = float64(stats.CompletedJobs) / float64(finished) * 100
	}
	return &stats, nil
}

func requireAffected(rowsAffected func() (int64, error), resource string, id uuid.UUID) error {
	n, err := rowsAffected()
	if err != nil {
		return sanitizeDBError("rows affected", err)
	}
	if n == 0 {
		return errors.ErrNotFound(resource, id.String())
	}
	return nil
}
