package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/anstrom/portsweep/internal/errors"
)

// Slots caps how many jobs run at once.
type Slots struct {
	capacity  int
	semaphore chan struct{}
	active    map[string]time.Time
	mu        sync.RWMutex
	closed    bool
}

// SlotStats is a snapshot of slot usage.
type SlotStats struct {
	Capacity       int           `json:"capacity"`
	Active         int           `json:"active"`
	Available      int           `json:"available"`
	LongestRunning time.Duration `json:"longest_running"`
	Closed         bool          `json:"closed"`
}

// NewSlots creates a limiter with capacity slots. Capacity below one is raised to one.
func NewSlots(capacity int) *Slots {
	if capacity <= 0 {
		capacity = 1
	}
	return &Slots{
		capacity:  capacity,
		semaphore: make(chan struct{}, capacity),
		active:    make(map[string]time.Time),
	}
}

func (s *Slots) errClosed() error {
	return errors.NewScanError(errors.CodeCanceled, "job manager is shutting down")
}

// TryAcquire takes a slot for id without waiting.
func (s *Slots) TryAcquire(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.errClosed()
	}
	if _, ok := s.active[id]; ok {
		return errors.NewScanError(errors.CodeJobRunning, "job "+id+" already holds a slot")
	}

	select {
	case s.semaphore <- struct{}{}:
		s.active[id] = time.Now()
		return nil
	default:
		return errors.NewScanError(errors.CodeJobCapacity, "all job slots are in use")
	}
}

// Acquire takes a slot for id, waiting until one frees up or ctx is done.
func (s *Slots) Acquire(ctx context.Context, id string) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return s.errClosed()
	}

	select {
	case s.semaphore <- struct{}{}:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			<-s.semaphore
			return s.errClosed()
		}
		s.active[id] = time.Now()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the slot held by id. Unknown ids are ignored.
func (s *Slots) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[id]; !ok {
		return
	}
	delete(s.active, id)
	select {
	case <-s.semaphore:
	default:
	}
}

// Active returns the number of held slots.
func (s *Slots) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

// Available returns the number of free slots.
func (s *Slots) Available() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capacity - len(s.active)
}

// Stats returns current slot usage.
func (s *Slots) Stats() SlotStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := SlotStats{
		Capacity:  s.capacity,
		Active:    len(s.active),
		Available: s.capacity - len(s.active),
		Closed:    s.closed,
	}
	now := time.Now()
	for _, started := range s.active {
		stats.LongestRunning = max(stats.LongestRunning, now.Sub(started))
	}
	return stats
}

// Close rejects further acquisitions. Held slots stay held until released.
func (s *Slots) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}
