//go:build integration

package db_test

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/scanning"
)

// StoreIntegrationTestSuite runs the store against a real PostgreSQL database
// configured through TEST_DB_* environment variables.
type StoreIntegrationTestSuite struct {
	suite.Suite
	database *db.DB
	store    *db.Store
}

func TestStoreIntegration(t *testing.T) {
	suite.Run(t, new(StoreIntegrationTestSuite))
}

func (s *StoreIntegrationTestSuite) SetupSuite() {
	if testing.Short() {
		s.T().Skip("Skipping database integration tests in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := testDatabaseConfig()
	database, err := db.Connect(ctx, &cfg)
	if err != nil {
		s.T().Skipf("test database unavailable: %v", err)
	}
	s.database = database

	_, err = db.NewMigrator(database.DB).Reset(ctx)
	s.Require().NoError(err)
	s.store = db.NewStore(database)
}

func (s *StoreIntegrationTestSuite) TearDownSuite() {
	if s.database != nil {
		_ = s.database.Close()
	}
}

func (s *StoreIntegrationTestSuite) SetupTest() {
	_, err := s.database.ExecContext(context.Background(), "TRUNCATE scan_jobs CASCADE")
	s.Require().NoError(err)
}

func (s *StoreIntegrationTestSuite) newJob(ctx context.Context) *db.ScanJob {
	job := &db.ScanJob{
		Target:         "10.0.0.0/30",
		Ports:          "22,80",
		Protocols:      []string{"TCP", "UDP"},
		TimeoutSeconds: 2,
		Concurrency:    10,
	}
	s.Require().NoError(s.store.CreateJob(ctx, job))
	return job
}

func (s *StoreIntegrationTestSuite) TestJobLifecycle() {
	ctx := context.Background()
	job := s.newJob(ctx)
	s.NotEqual(uuid.Nil, job.ID)
	s.False(job.CreatedAt.IsZero())

	s.Require().NoError(s.store.MarkRunning(ctx, job.ID, 8))
	s.Require().NoError(s.store.UpdateProgress(ctx, job.ID, 4, 8))

	running, err := s.store.GetJob(ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(db.JobRunning, running.Status)
	s.Equal(50, running.Progress)
	s.NotNil(running.StartedAt)

	results := []scanning.Result{
		{Host: "10.0.0.1", Port: 22, Protocol: scanning.TCP, Status: scanning.StatusOpen},
		{Host: "10.0.0.1", Port: 80, Protocol: scanning.TCP, Status: scanning.StatusClosed},
		{Host: "10.0.0.2", Port: 22, Protocol: scanning.UDP, Status: scanning.StatusOpenFiltered},
		{Host: "10.0.0.2", Port: 80, Protocol: scanning.TCP, Status: scanning.StatusFiltered},
	}
	history, err := db.NewScanHistory(job.ID, scanning.Summarize(results), time.Second)
	s.Require().NoError(err)
	s.Require().NoError(s.store.CompleteJob(ctx, job.ID, results, history))

	done, err := s.store.GetJob(ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(db.JobCompleted, done.Status)
	s.Equal(100, done.Progress)
	s.NotNil(done.CompletedAt)

	open, total, err := s.store.ListResults(ctx, job.ID, db.ResultFilter{Status: "open"})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Equal("10.0.0.1", open[0].Host)

	all, err := s.store.AllResults(ctx, job.ID)
	s.Require().NoError(err)
	s.ElementsMatch(results, all)

	stored, err := s.store.GetHistory(ctx, job.ID)
	s.Require().NoError(err)
	s.Equal(1, stored.OpenCount)
	s.Equal(1, stored.HostsActive)
	s.Equal(2, stored.HostsScanned)

	stats, err := s.store.Statistics(ctx)
	s.Require().NoError(err)
	s.Equal(1, stats.TotalJobs)
	s.Equal(1, stats.CompletedJobs)
	s.Equal(4, stats.TotalResults)
	s.Equal(1, stats.OpenPorts)

	// A finished job cannot be finished again.
	err = s.store.CancelJob(ctx, job.ID, nil, nil)
	s.True(errors.IsNotFound(err))
}

func (s *StoreIntegrationTestSuite) TestRecoverInterrupted() {
	ctx := context.Background()
	pending := s.newJob(ctx)
	running := s.newJob(ctx)
	s.Require().NoError(s.store.MarkRunning(ctx, running.ID, 4))

	n, err := s.store.RecoverInterrupted(ctx)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	for _, id := range []uuid.UUID{pending.ID, running.ID} {
		job, err := s.store.GetJob(ctx, id)
		s.Require().NoError(err)
		s.Equal(db.JobFailed, job.Status)
		s.Require().NotNil(job.ErrorMessage)
	}
}

func (s *StoreIntegrationTestSuite) TestDeleteJobCascades() {
	ctx := context.Background()
	job := s.newJob(ctx)
	s.Require().NoError(s.store.CompleteJob(ctx, job.ID, []scanning.Result{
		{Host: "10.0.0.1", Port: 22, Protocol: scanning.TCP, Status: scanning.StatusOpen},
	}, nil))

	s.Require().NoError(s.store.DeleteJob(ctx, job.ID))

	_, err := s.store.GetJob(ctx, job.ID)
	s.True(errors.IsNotFound(err))

	var remaining int
	s.Require().NoError(s.database.GetContext(ctx, &remaining,
		"SELECT COUNT(*) FROM scan_results WHERE job_id = $1", job.ID))
	s.Zero(remaining)
}

func (s *StoreIntegrationTestSuite) TestMigrationStatus() {
	states, err := db.NewMigrator(s.database.DB).Status(context.Background())
	s.Require().NoError(err)
	s.NotEmpty(states)
	for _, state := range states {
		s.True(state.Applied, state.Name)
		s.False(state.Modified, state.Name)
	}
}

func testDatabaseConfig() db.Config {
	cfg := db.DefaultConfig()
	cfg.Host = envOrDefault("TEST_DB_HOST", "localhost")
	cfg.Database = envOrDefault("TEST_DB_NAME", "portsweep_test")
	cfg.Username = envOrDefault("TEST_DB_USER", "test_user")
	cfg.Password = envOrDefault("TEST_DB_PASSWORD", "test_password")
	if port, err := strconv.Atoi(os.Getenv("TEST_DB_PORT")); err == nil {
		cfg.Port = port
	}
	cfg.MaxOpenConns = 5
	cfg.MaxIdleConns = 2
	return cfg
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
