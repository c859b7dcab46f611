package core

// import_limiter.go bounds how many bulk imports commit at once. An import
// holds an ImportSlot for its whole run; the slot carries the batch size so
// the health endpoint can show how many rows are being written and how many
// imports are queued behind them.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyImports is returned when no import slot frees up within the wait.
var ErrTooManyImports = errors.New("too many concurrent imports, please try again later")

const (
	DefaultMaxConcurrentImports = 2
	DefaultImportWait           = 30 * time.Second
)

// ImportLimiter hands out a fixed number of import slots.
type ImportLimiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu      sync.Mutex
	active  int
	waiting int
	rows    int
	idle    chan struct{} // closed while no slot is held
}

// NewImportLimiter allows maxConcurrent imports and queues others for at
// most maxWait. Non-positive arguments take the defaults.
func NewImportLimiter(maxConcurrent int, maxWait time.Duration) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultImportWait
	}
	idle := make(chan struct{})
	close(idle)
	return &ImportLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
		idle:    idle,
	}
}

// ImportSlot is a held import slot. Release is safe to call more than once.
type ImportSlot struct {
	l    *ImportLimiter
	rows int
	once sync.Once
}

// Release frees the slot.
func (s *ImportSlot) Release() {
	s.once.Do(func() {
		s.l.mu.Lock()
		s.l.active--
		s.l.rows -= s.rows
		if s.l.active == 0 {
			close(s.l.idle)
		}
		s.l.mu.Unlock()
		<-s.l.slots
	})
}

// Acquire waits up to maxWait for a slot for a batch of rows. Caller
// cancellation is reported as ctx.Err(), a full limiter as ErrTooManyImports.
func (l *ImportLimiter) Acquire(ctx context.Context, rows int) (*ImportSlot, error) {
	if slot, ok := l.TryAcquire(rows); ok {
		return slot, nil
	}

	l.mu.Lock()
	l.waiting++
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.waiting--
		l.mu.Unlock()
	}()

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		return l.hold(rows), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTooManyImports
	}
}

// TryAcquire takes a slot only if one is free now.
func (l *ImportLimiter) TryAcquire(rows int) (*ImportSlot, bool) {
	select {
	case l.slots <- struct{}{}:
		return l.hold(rows), true
	default:
		return nil, false
	}
}

func (l *ImportLimiter) hold(rows int) *ImportSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active == 0 {
		l.idle = make(chan struct{})
	}
	l.active++
	l.rows += rows
	return &ImportSlot{l: l, rows: rows}
}

// WaitForDrain blocks until no import holds a slot or ctx is done.
func (l *ImportLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ImportLimiterStatus is a snapshot of the limiter.
type ImportLimiterStatus struct {
	Active        int `json:"active"`
	Waiting       int `json:"waiting"`
	RowsInFlight  int `json:"rowsInFlight"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

// Status returns the current limiter state.
func (l *ImportLimiter) Status() ImportLimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ImportLimiterStatus{
		Active:        l.active,
		Waiting:       l.waiting,
		RowsInFlight:  l.rows,
		Available:     cap(l.slots) - l.active,
		MaxConcurrent: cap(l.slots),
	}
}
