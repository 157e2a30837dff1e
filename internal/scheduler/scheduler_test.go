package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portsweep/internal/db"
	"github.com/anstrom/portsweep/internal/errors"
	"github.com/anstrom/portsweep/internal/jobs"
	"github.com/anstrom/portsweep/internal/profiles"
	"github.com/anstrom/portsweep/internal/scanning"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	requests []jobs.Request
	err      error
}

func (f *fakeSubmitter) Submit(_ context.Context, req jobs.Request) (*db.ScanJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &db.ScanJob{ID: uuid.New(), Target: req.Target, Status: db.JobPending}, nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

var defaults = scanning.Config{Timeout: 3 * time.Second, Concurrency: 100}

func newTestScheduler(sub Submitter) *Scheduler {
	return New(sub, profiles.NewManager(), defaults, "common")
}

func TestScheduler_AddValidation(t *testing.T) {
	s := newTestScheduler(&fakeSubmitter{})

	tests := []struct {
		name string
		def  Definition
		code errors.ErrorCode
	}{
		{"missing name", Definition{Cron: "@hourly", Target: "h"}, errors.CodeValidation},
		{"bad cron", Definition{Name: "a", Cron: "sometimes", Target: "h"}, errors.CodeScheduleFailed},
		{"missing target", Definition{Name: "a", Cron: "@hourly"}, errors.CodeTargetInvalid},
		{"unknown profile", Definition{Name: "a", Cron: "@hourly", Target: "h", Profile: "nope"}, errors.CodeNotFound},
		{"bad ports", Definition{Name: "a", Cron: "@hourly", Target: "h", Ports: "70000"}, errors.CodeParse},
		{"bad protocol", Definition{Name: "a", Cron: "@hourly", Target: "h", Protocols: []string{"ICMP"}}, errors.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Add(tt.def)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}
	assert.Empty(t, s.List())
}

func TestScheduler_AddListRemove(t *testing.T) {
	s := newTestScheduler(&fakeSubmitter{})

	_, err := s.Add(Definition{Name: "web", Cron: "0 * * * *", Target: "10.0.0.1", Ports: "80,443"})
	require.NoError(t, err)
	entry, err := s.Add(Definition{Name: "dns", Cron: "@daily", Target: "10.0.0.2", Profile: "dns"})
	require.NoError(t, err)
	assert.True(t, entry.NextRun.After(time.Now()))

	_, err = s.Add(Definition{Name: "web", Cron: "@hourly", Target: "x", Ports: "80"})
	assert.True(t, errors.IsCode(err, errors.CodeConflict))

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "dns", list[0].Def.Name)
	assert.Equal(t, "web", list[1].Def.Name)

	require.NoError(t, s.Remove("dns"))
	assert.True(t, errors.IsNotFound(s.Remove("dns")))
	assert.Len(t, s.List(), 1)
}

func TestScheduler_RunNowUsesProfile(t *testing.T) {
	sub := &fakeSubmitter{}
	s := newTestScheduler(sub)

	_, err := s.Add(Definition{Name: "q", Cron: "@weekly", Target: "192.168.1.0/24", Profile: "quick", Concurrency: 20})
	require.NoError(t, err)

	job, err := s.RunNow(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.0/24", job.Target)

	require.Equal(t, 1, sub.count())
	req := sub.requests[0]
	assert.Equal(t, "21,22,23,25,53,80,110,143,443,993,995,8080", req.Ports)
	assert.Equal(t, time.Second, req.Config.Timeout)
	assert.Equal(t, 20, req.Config.Concurrency)
	assert.Equal(t, []scanning.Protocol{scanning.TCP}, req.Protocols)

	entry := s.List()[0]
	assert.Equal(t, 1, entry.Runs)
	assert.Equal(t, job.ID, entry.LastJobID)
	assert.Empty(t, entry.LastError)
}

func TestScheduler_DefaultsWithoutProfile(t *testing.T) {
	sub := &fakeSubmitter{}
	s := newTestScheduler(sub)

	_, err := s.Add(Definition{Name: "plain", Cron: "@hourly", Target: "h", Protocols: []string{"udp"}})
	require.NoError(t, err)
	_, err = s.RunNow(context.Background(), "plain")
	require.NoError(t, err)

	req := sub.requests[0]
	assert.Equal(t, "common", req.Ports)
	assert.Equal(t, defaults, req.Config)
	assert.Equal(t, []scanning.Protocol{scanning.UDP}, req.Protocols)
}

func TestScheduler_DisabledScheduleSkipsTicks(t *testing.T) {
	sub := &fakeSubmitter{}
	s := newTestScheduler(sub)

	_, err := s.Add(Definition{Name: "n", Cron: "@hourly", Target: "h", Ports: "22"})
	require.NoError(t, err)
	require.NoError(t, s.Disable("n"))

	s.execute("n")
	assert.Zero(t, sub.count())

	require.NoError(t, s.Enable("n"))
	s.execute("n")
	assert.Equal(t, 1, sub.count())
	assert.True(t, errors.IsNotFound(s.Disable("missing")))
}

func TestScheduler_RecordsSubmitErrors(t *testing.T) {
	sub := &fakeSubmitter{err: errors.NewScanError(errors.CodeJobCapacity, "all job slots are in use")}
	s := newTestScheduler(sub)

	_, err := s.Add(Definition{Name: "busy", Cron: "@hourly", Target: "h", Ports: "22"})
	require.NoError(t, err)

	s.execute("busy")
	entry := s.List()[0]
	assert.Equal(t, 1, entry.Runs)
	assert.Contains(t, entry.LastError, "all job slots are in use")
}

func TestScheduler_StartStop(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for a cron tick")
	}
	sub := &fakeSubmitter{}
	s := newTestScheduler(sub)

	_, err := s.Add(Definition{Name: "tick", Cron: "@every 1s", Target: "h", Ports: "22"})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.True(t, errors.IsCode(s.Start(), errors.CodeConflict))

	assert.Eventually(t, func() bool { return sub.count() > 0 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
	s.Stop()
}
