package index

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxFinished bounds how many finished operations stay queryable.
const maxFinished = 32

// OperationStatus is a point-in-time view of one indexing run.
type OperationStatus struct {
	ID             string    `json:"id"`
	Collection     string    `json:"collection"`
	Root           string    `json:"root"`
	IsIndexing     bool      `json:"is_indexing"`
	Progress       float64   `json:"progress"` // 0..1
	CurrentFile    string    `json:"current_file,omitempty"`
	TotalFiles     int       `json:"total_files"`
	ProcessedFiles int       `json:"processed_files"`
	Status         Status    `json:"status,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at,omitzero"`
}

// Operations tracks running and recently finished indexing runs.
type Operations struct {
	mu  sync.RWMutex
	ops map[string]*OperationStatus
	now func() time.Time
}

// NewOperations creates an empty tracker.
func NewOperations() *Operations {
	return &Operations{ops: make(map[string]*OperationStatus), now: time.Now}
}

// Start registers a run and returns its id.
func (o *Operations) Start(collection, root string) string {
	id := uuid.NewString()
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops[id] = &OperationStatus{
		ID:         id,
		Collection: collection,
		Root:       root,
		IsIndexing: true,
		StartedAt:  o.now(),
	}
	return id
}

// SetTotal records how many files the run will visit.
func (o *Operations) SetTotal(id string, total int) {
	o.update(id, func(s *OperationStatus) {
		s.TotalFiles = total
		s.refresh()
	})
}

// Advance records one more finished file.
func (o *Operations) Advance(id, file string) {
	o.update(id, func(s *OperationStatus) {
		s.ProcessedFiles++
		s.CurrentFile = file
		s.refresh()
	})
}

// Finish marks the run done and prunes the oldest finished runs.
func (o *Operations) Finish(id string, status Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.ops[id]
	if !ok {
		return
	}
	s.IsIndexing = false
	s.CurrentFile = ""
	s.Status = status
	s.FinishedAt = o.now()
	if status == StatusCompleted {
		s.Progress = 1
	}
	o.pruneLocked()
}

func (o *Operations) update(id string, fn func(*OperationStatus)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.ops[id]; ok {
		fn(s)
	}
}

func (s *OperationStatus) refresh() {
	if s.TotalFiles > 0 {
		s.Progress = float64(s.ProcessedFiles) / float64(s.TotalFiles)
	}
}

func (o *Operations) pruneLocked() {
	var finished []*OperationStatus
	for _, s := range o.ops {
		if !s.IsIndexing {
			finished = append(finished, s)
		}
	}
	if len(finished) <= maxFinished {
		return
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].FinishedAt.Before(finished[j].FinishedAt) })
	for _, s := range finished[:len(finished)-maxFinished] {
		delete(o.ops, s.ID)
	}
}

// Get returns one run's status.
func (o *Operations) Get(id string) (OperationStatus, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s, ok := o.ops[id]
	if !ok {
		return OperationStatus{}, false
	}
	return *s, true
}

// List returns every tracked run, oldest first.
func (o *Operations) List() []OperationStatus {
	o.mu.RLock()
	out := make([]OperationStatus, 0, len(o.ops))
	for _, s := range o.ops {
		out = append(out, *s)
	}
	o.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// IsIndexing reports whether a run on collection is in progress.
func (o *Operations) IsIndexing(collection string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, s := range o.ops {
		if s.IsIndexing && s.Collection == collection {
			return true
		}
	}
	return false
}
