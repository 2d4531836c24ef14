// Package gate decides which frames are due for detection.
package gate

import (
	"time"

	"github.com/benbjohnson/clock"
)

// State is the whole timing state of a gate.
type State struct {
	LastFire time.Time
	Interval time.Duration
}

// Due reports whether at least one interval has passed since the last firing.
func (s State) Due(now time.Time) bool {
	return now.Sub(s.LastFire) >= s.Interval
}

// Fire returns the state after a firing at now.
func (s State) Fire(now time.Time) State {
	return State{LastFire: now, Interval: s.Interval}
}

// Stats summarises the firings of a gate. Lag is how much later than
// scheduled a firing happened; a slow detector shows up here.
type Stats struct {
	Firings  int
	TotalLag time.Duration
	MaxLag   time.Duration
}

// Gate is the wall-clock scheduler used while detection is active.
type Gate struct {
	clock clock.Clock
	state State
	stats Stats
}

// New starts the gate at the current time, so the first firing happens one
// interval after construction.
func New(interval time.Duration, clk clock.Clock) *Gate {
	if clk == nil {
		clk = clock.New()
	}
	return &Gate{
		clock: clk,
		state: State{LastFire: clk.Now(), Interval: interval},
	}
}

// Now reads the gate's clock.
func (g *Gate) Now() time.Time {
	return g.clock.Now()
}

// Due has no side effects; repeated calls with the same now agree.
func (g *Gate) Due(now time.Time) bool {
	return g.state.Due(now)
}

// Fire records a firing at now. It refuses (and returns false) when now is
// not due, so one firing can never be counted twice.
func (g *Gate) Fire(now time.Time) bool {
	if !g.state.Due(now) {
		return false
	}
	lag := now.Sub(g.state.LastFire) - g.state.Interval
	g.state = g.state.Fire(now)
	g.stats.Firings++
	g.stats.TotalLag += lag
	if lag > g.stats.MaxLag {
		g.stats.MaxLag = lag
	}
	return true
}

// Restart makes now the last firing and clears the statistics. A pass
// calls it when it starts so detection begins one interval later.
func (g *Gate) Restart(now time.Time) {
	g.state = State{LastFire: now, Interval: g.state.Interval}
	g.stats = Stats{}
}

// State returns a copy of the timing state.
func (g *Gate) State() State {
	return g.state
}

// Stats returns the firing statistics so far.
func (g *Gate) Stats() Stats {
	return g.stats
}

// Disabled never fires. The record pass uses it.
type Disabled struct {
	Clock clock.Clock
}

func (d Disabled) Now() time.Time {
	if d.Clock == nil {
		return time.Now()
	}
	return d.Clock.Now()
}

func (Disabled) Due(time.Time) bool  { return false }
func (Disabled) Fire(time.Time) bool { return false }
func (Disabled) Stats() Stats        { return Stats{} }
