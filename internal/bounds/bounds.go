// Package bounds tracks the running minimum and maximum temperature observed
// since the process started.
package bounds

import "sync"

// Bounds is a (minimum, maximum) pair in degrees Celsius.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Tracker represents the thread-safe running bounds. It only ever widens.
type Tracker struct {
	mu  sync.RWMutex
	min float64
	max float64
}

// New creates a tracker with both bounds set to seed.
func New(seed float64) *Tracker {
	return &Tracker{min: seed, max: seed}
}

// Observe widens the bounds to include t and reports whether either side
// moved. A new maximum is checked first; only otherwise is the minimum
// considered. Values equal to a bound change nothing.
func (t *Tracker) Observe(temp float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if temp > t.max {
		t.max = temp
		return true
	} else if temp < t.min {
		t.min = temp
		return true
	}
	return false
}

// Snapshot returns the current bounds.
func (t *Tracker) Snapshot() Bounds {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Bounds{Min: t.min, Max: t.max}
}
