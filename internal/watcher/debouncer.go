package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer turns a stream of raw events into path-sorted batches for the
// reindexer. A batch is released once the tree has been quiet for the
// window, or maxWait after its first event when changes never stop.
type Debouncer struct {
	window  time.Duration
	maxWait time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingEvent
	opened  time.Time // first event of the current batch
	timer   *time.Timer
	output  chan []FileEvent
	stopped bool
}

type pendingEvent struct {
	event FileEvent
	first Operation
}

// NewDebouncer creates a debouncer. maxWait <= 0 disables the cap. A nil
// logger uses slog.Default.
func NewDebouncer(window, maxWait time.Duration, logger *slog.Logger) *Debouncer {
	if logger == nil {
		logger = slog.Default()
	}
	if maxWait > 0 && maxWait < window {
		maxWait = window
	}
	return &Debouncer{
		window:  window,
		maxWait: maxWait,
		logger:  logger,
		pending: make(map[string]*pendingEvent),
		output:  make(chan []FileEvent, 16),
	}
}

// Add queues ev and pushes the release back by one window, never past
// maxWait from the batch's first event.
func (d *Debouncer) Add(ev FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	now := time.Now()
	if len(d.pending) == 0 {
		d.opened = now
	}
	if p, ok := d.pending[ev.Path]; ok {
		if merged, keep := coalesce(p.first, p.event, ev); keep {
			p.event = merged
		} else {
			delete(d.pending, ev.Path)
		}
	} else {
		d.pending[ev.Path] = &pendingEvent{event: ev, first: ev.Operation}
	}

	delay := d.window
	if d.maxWait > 0 {
		if left := d.opened.Add(d.maxWait).Sub(now); left < delay {
			delay = max(left, 0)
		}
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, d.flush)
}

// coalesce folds next into the event already pending for its path, whose
// first operation in this batch was first. keep=false means the path had
// no net effect.
//
//	CREATE then MODIFY           -> CREATE
//	CREATE then DELETE or RENAME -> nothing
//	DELETE then CREATE           -> MODIFY
//	anything then IGNORE_CHANGE  -> IGNORE_CHANGE
//	otherwise                    -> the later event
func coalesce(first Operation, prev, next FileEvent) (FileEvent, bool) {
	if prev.Operation == OpIgnoreChange || next.Operation == OpIgnoreChange {
		next.Operation = OpIgnoreChange
		return next, true
	}
	switch first {
	case OpCreate:
		switch next.Operation {
		case OpModify, OpCreate:
			prev.Timestamp = next.Timestamp
			return prev, true
		case OpDelete, OpRename:
			return FileEvent{}, false
		}
	case OpDelete, OpRename:
		if next.Operation == OpCreate {
			next.Operation = OpModify
			return next, true
		}
	}
	return next, true
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, p := range d.pending {
		batch = append(batch, p.event)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	d.pending = make(map[string]*pendingEvent)

	select {
	case d.output <- batch:
		d.logger.Debug("watch_batch_ready",
			slog.Int("batch_size", len(batch)),
			slog.Duration("waited", time.Since(d.opened)))
	default:
		d.logger.Warn("watch_batch_dropped", slog.Int("batch_size", len(batch)))
	}
}

// Pending returns the number of paths waiting for release.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Output returns the released batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop discards pending events and closes Output. Safe to call twice.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
