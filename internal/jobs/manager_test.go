package jobs

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/logging"
	"github.com/anstrom/portsweep/internal/scanning"
)

type fakeStore struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*db.ScanJob
	results   map[uuid.UUID][]scanning.Result
	history   map[uuid.UUID]*db.ScanHistory
	progress  []int
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:    make(map[uuid.UUID]*db.ScanJob),
		results: make(map[uuid.UUID][]scanning.Result),
		history: make(map[uuid.UUID]*db.ScanHistory),
	}
}

func (s *fakeStore) CreateJob(_ context.Context, job *db.ScanJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *fakeStore) MarkRunning(_ context.Context, id uuid.UUID, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].Status = db.JobRunning
	s.jobs[id].TotalProbes = total
	return nil
}

func (s *fakeStore) UpdateProgress(_ context.Context, id uuid.UUID, completed, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].CompletedProbes = completed
	s.progress = append(s.progress, completed)
	return nil
}

func (s *fakeStore) finish(id uuid.UUID, status db.JobStatus, results []scanning.Result, h *db.ScanHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].Status = status
	s.results[id] = results
	s.history[id] = h
}

func (s *fakeStore) CompleteJob(_ context.Context, id uuid.UUID, r []scanning.Result, h *db.ScanHistory) error {
	s.finish(id, db.JobCompleted, r, h)
	return nil
}

func (s *fakeStore) CancelJob(_ context.Context, id uuid.UUID, r []scanning.Result, h *db.ScanHistory) error {
	s.finish(id, db.JobCancelled, r, h)
	return nil
}

func (s *fakeStore) FailJob(_ context.Context, id uuid.UUID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].Status = db.JobFailed
	s.jobs[id].ErrorMessage = &message
	return nil
}

func (s *fakeStore) job(id uuid.UUID) db.ScanJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

type runnerFunc func(ctx context.Context, hosts []string, ports []int, protocols []scanning.Protocol,
	cfg scanning.Config, progress scanning.ProgressFunc) ([]scanning.Result, error)

func (f runnerFunc) Scan(ctx context.Context, hosts []string, ports []int, protocols []scanning.Protocol,
	cfg scanning.Config, progress scanning.ProgressFunc) ([]scanning.Result, error) {
	return f(ctx, hosts, ports, protocols, cfg, progress)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) statuses() []db.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]db.JobStatus, len(r.events))
	for i, e := range r.events {
		out[i] = e.Status
	}
	return out
}

func validRequest() Request {
	return Request{
		Target:    "10.0.0.0/30",
		Ports:     "22,80",
		Protocols: []scanning.Protocol{scanning.TCP},
		Config:    scanning.Config{Timeout: time.Second, Concurrency: 4},
	}
}

func newTestManager(store Store, runner Runner, maxConcurrent int, pub Publisher) *Manager {
	return NewManager(store, runner, Options{
		MaxConcurrent: maxConcurrent,
		Publisher:     pub,
		Logger:        logging.NewNop(),
	})
}

func waitFor(t *testing.T, m *Manager, id uuid.UUID) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx, id))
}

func TestManager_SubmitCompletes(t *testing.T) {
	store := newFakeStore()
	events := &recorder{}
	runner := runnerFunc(func(_ context.Context, hosts []string, ports []int, protocols []scanning.Protocol,
		_ scanning.Config, progress scanning.ProgressFunc) ([]scanning.Result, error) {
		var results []scanning.Result
		for _, h := range hosts {
			for _, p := range ports {
				results = append(results, scanning.Result{Host: h, Port: p, Protocol: protocols[0], Status: scanning.StatusOpen})
			}
		}
		progress(len(results), len(results))
		return results, nil
	})
	m := newTestManager(store, runner, 2, events)

	job, err := m.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, db.JobPending, job.Status)
	assert.Equal(t, 4, job.TotalProbes)
	assert.Equal(t, 1, job.TimeoutSeconds)
	assert.Equal(t, []string{"TCP"}, []string(job.Protocols))

	waitFor(t, m, job.ID)

	stored := store.job(job.ID)
	assert.Equal(t, db.JobCompleted, stored.Status)
	assert.Len(t, store.results[job.ID], 4)
	assert.Equal(t, 4, store.history[job.ID].OpenCount)
	assert.Equal(t, []int{4}, store.progress)
	assert.Equal(t, []db.JobStatus{db.JobRunning, db.JobRunning, db.JobCompleted}, events.statuses())
	assert.False(t, m.IsRunning(job.ID))
	assert.Zero(t, m.Stats().Active)
}

func TestManager_SubmitValidation(t *testing.T) {
	m := newTestManager(newFakeStore(), runnerFunc(nil), 1, nil)

	tests := []struct {
		name string
		edit func(*Request)
		code errors.ErrorCode
	}{
		{"empty target", func(r *Request) { r.Target = " " }, errors.CodeTargetInvalid},
		{"bad ports", func(r *Request) { r.Ports = "0" }, errors.CodeParse},
		{"bad timeout", func(r *Request) { r.Config.Timeout = 0 }, errors.CodeValidation},
		{"whole address space", func(r *Request) { r.Target = "0.0.0.0/0" }, errors.CodeValidation},
		{"all ports on a /16", func(r *Request) {
			r.Target = "10.0.0.0/16"
			r.Ports = "1-65535"
		}, errors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.edit(&req)
			_, err := m.Submit(context.Background(), req)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}
	assert.Empty(t, m.Running())
}

func TestManager_ResolvesNamedPorts(t *testing.T) {
	store := newFakeStore()
	var gotPorts []int
	runner := runnerFunc(func(_ context.Context, _ []string, ports []int, _ []scanning.Protocol,
		_ scanning.Config, _ scanning.ProgressFunc) ([]scanning.Result, error) {
		gotPorts = ports
		return nil, nil
	})
	m := newTestManager(store, runner, 1, nil)

	req := validRequest()
	req.Ports = "service:ssh,443"
	job, err := m.Submit(context.Background(), req)
	require.NoError(t, err)
	waitFor(t, m, job.ID)

	assert.Equal(t, []int{22, 443}, gotPorts)
}

func TestManager_CapacityAndStop(t *testing.T) {
	store := newFakeStore()
	started := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, hosts []string, _ []int, _ []scanning.Protocol,
		_ scanning.Config, _ scanning.ProgressFunc) ([]scanning.Result, error) {
		close(started)
		<-ctx.Done()
		partial := []scanning.Result{{Host: hosts[0], Port: 22, Protocol: scanning.TCP, Status: scanning.StatusClosed}}
		return partial, ctx.Err()
	})
	events := &recorder{}
	m := newTestManager(store, runner, 1, events)

	job, err := m.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	<-started
	assert.True(t, m.IsRunning(job.ID))
	assert.Equal(t, []uuid.UUID{job.ID}, m.Running())

	_, err = m.Submit(context.Background(), validRequest())
	assert.True(t, errors.IsCode(err, errors.CodeJobCapacity))

	require.NoError(t, m.Stop(job.ID))
	waitFor(t, m, job.ID)

	assert.Equal(t, db.JobCancelled, store.job(job.ID).Status)
	assert.Len(t, store.results[job.ID], 1)
	assert.Contains(t, events.statuses(), db.JobCancelled)
	assert.True(t, errors.IsNotFound(m.Stop(job.ID)))
}

func TestManager_RunnerFailure(t *testing.T) {
	store := newFakeStore()
	runner := runnerFunc(func(context.Context, []string, []int, []scanning.Protocol,
		scanning.Config, scanning.ProgressFunc) ([]scanning.Result, error) {
		return nil, stderrors.New("network unreachable")
	})
	m := newTestManager(store, runner, 1, nil)

	job, err := m.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	waitFor(t, m, job.ID)

	stored := store.job(job.ID)
	assert.Equal(t, db.JobFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "network unreachable", *stored.ErrorMessage)
}

func TestManager_CreateFailureReleasesSlot(t *testing.T) {
	store := newFakeStore()
	store.createErr = errors.NewDatabaseError(errors.CodeDatabaseConnection, "down")
	m := newTestManager(store, runnerFunc(nil), 1, nil)

	_, err := m.Submit(context.Background(), validRequest())
	assert.True(t, errors.IsCode(err, errors.CodeDatabaseConnection))
	assert.Equal(t, 1, m.Stats().Available)
}

func TestManager_Shutdown(t *testing.T) {
	store := newFakeStore()
	started := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, _ []string, _ []int, _ []scanning.Protocol,
		_ scanning.Config, _ scanning.ProgressFunc) ([]scanning.Result, error) {
		close(started)
		<-ctx.Done()
		return []scanning.Result{}, ctx.Err()
	})
	m := newTestManager(store, runner, 2, nil)

	job, err := m.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	assert.Equal(t, db.JobCancelled, store.job(job.ID).Status)
	_, err = m.Submit(context.Background(), validRequest())
	assert.True(t, errors.IsCode(err, errors.CodeCanceled))
}

func TestManager_MaxProbes(t *testing.T) {
	store := newFakeStore()
	runner := runnerFunc(func(context.Context, []string, []int, []scanning.Protocol,
		scanning.Config, scanning.ProgressFunc) ([]scanning.Result, error) {
		return nil, nil
	})
	m := NewManager(store, runner, Options{MaxConcurrent: 2, MaxProbes: 4, Logger: logging.NewNop()})

	job, err := m.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	waitFor(t, m, job.ID)
	assert.Equal(t, 4, job.TotalProbes)

	req := validRequest()
	req.Protocols = []scanning.Protocol{scanning.TCP, scanning.UDP}
	_, err = m.Submit(context.Background(), req)
	assert.True(t, errors.IsCode(err, errors.CodeValidation), "got %v", err)
	assert.Len(t, store.jobs, 1)
}

// slowCreateStore blocks CreateJob until released.
type slowCreateStore struct {
	*fakeStore
	entered chan struct{}
	release chan struct{}
}

func (s *slowCreateStore) CreateJob(ctx context.Context, job *db.ScanJob) error {
	close(s.entered)
	<-s.release
	return s.fakeStore.CreateJob(ctx, job)
}

func TestManager_ShutdownWaitsForJobBeingCreated(t *testing.T) {
	store := &slowCreateStore{
		fakeStore: newFakeStore(),
		entered:   make(chan struct{}),
		release:   make(chan struct{}),
	}
	runner := runnerFunc(func(ctx context.Context, _ []string, _ []int, _ []scanning.Protocol,
		_ scanning.Config, _ scanning.ProgressFunc) ([]scanning.Result, error) {
		<-ctx.Done()
		return []scanning.Result{}, ctx.Err()
	})
	m := newTestManager(store, runner, 1, nil)

	submitted := make(chan *db.ScanJob, 1)
	go func() {
		job, err := m.Submit(context.Background(), validRequest())
		assert.NoError(t, err)
		submitted <- job
	}()
	<-store.entered

	shutdownDone := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		shutdownDone <- m.Shutdown(ctx)
	}()

	select {
	case <-shutdownDone:
		t.Fatal("Shutdown returned while a submitted job was still being created")
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	require.NoError(t, <-shutdownDone)
	job := <-submitted
	require.NotNil(t, job)
	assert.Equal(t, db.JobCancelled, store.job(job.ID).Status)
	assert.Empty(t, m.Running())
}
