// Package clock provides the process-wide time source. Everything that
// stamps or sleeps goes through core.Clock so tests can drive time manually.
package clock

import (
	"context"
	"sync"
	"time"

	"github.com/specforge/specforge/internal/core"
)

// System is the wall-clock implementation of core.Clock.
type System struct{}

// NewSystem returns the wall-clock time source.
func NewSystem() *System {
	return &System{}
}

// Now returns the current UTC time.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Sleep blocks for d or until ctx is done.
func (System) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Manual is a hand-driven clock for tests. Sleep advances the clock
// immediately instead of blocking, so polling loops run at full speed while
// observing simulated elapsed time.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock starting at the given instant.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the simulated current time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Sleep advances the simulated clock by d without blocking.
func (m *Manual) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.Advance(d)
	return nil
}

// Advance moves the simulated clock forward.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

var _ core.Clock = (*System)(nil)
var _ core.Clock = (*Manual)(nil)
