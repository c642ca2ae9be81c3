package ui

import (
	"sync"
	"time"
)

// speedWindow is the minimum interval between rate samples.
const speedWindow = 500 * time.Millisecond

// Tracker keeps progress state and a smoothed processing rate. It is safe
// for concurrent use.
type Tracker struct {
	mu        sync.Mutex
	now       func() time.Time
	stage     Stage
	processed int
	total     int
	file      string
	lastCount int
	lastAt    time.Time
	rate      float64 // files/sec, exponentially smoothed
}

// Snapshot is a copy of a Tracker's state.
type Snapshot struct {
	Stage       Stage
	Processed   int
	Total       int
	CurrentFile string
	Fraction    float64
	Rate        float64
	ETA         time.Duration
}

// NewTracker creates a tracker in the scanning stage.
func NewTracker() *Tracker {
	t := &Tracker{now: time.Now}
	t.lastAt = t.now()
	return t
}

// Update applies p.
func (t *Tracker) Update(p Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if p.Stage != t.stage {
		t.stage = p.Stage
		t.lastCount = 0
		t.lastAt = t.now()
		t.rate = 0
	}
	t.processed = p.Processed
	t.total = p.Total
	if p.CurrentFile != "" {
		t.file = p.CurrentFile
	}

	now := t.now()
	if elapsed := now.Sub(t.lastAt); elapsed >= speedWindow {
		if delta := p.Processed - t.lastCount; delta > 0 {
			sample := float64(delta) / elapsed.Seconds()
			if t.rate == 0 {
				t.rate = sample
			} else {
				t.rate = 0.2*sample + 0.8*t.rate
			}
		}
		t.lastCount = p.Processed
		t.lastAt = now
	}
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Snapshot{
		Stage:       t.stage,
		Processed:   t.processed,
		Total:       t.total,
		CurrentFile: t.file,
		Rate:        t.rate,
	}
	if t.total > 0 {
		s.Fraction = float64(t.processed) / float64(t.total)
		if s.Fraction > 1 {
			s.Fraction = 1
		}
		if t.rate > 0 && t.processed < t.total {
			s.ETA = time.Duration(float64(t.total-t.processed) / t.rate * float64(time.Second))
		}
	}
	return s
}

// formatDuration renders d rounded to seconds, or to minutes past an hour.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d >= time.Hour {
		d = d.Truncate(time.Minute)
	}
	return d.String()
}
