// Package clock provides the time source of compile runs.
package clock

import (
	"sync"
	"time"

	"github.com/ngAnzar/rpc/ports"
)

// Real reads the system clock.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

// Fake is a controllable clock for tests. Every call to Now advances it by
// Step, so consecutive timestamps of a run differ.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	Step    time.Duration
}

// NewFake creates a fake clock set to t.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.current
	f.current = f.current.Add(f.Step)
	return now
}

// Set moves the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t
}

var (
	_ ports.Clock = Real{}
	_ ports.Clock = (*Fake)(nil)
)
