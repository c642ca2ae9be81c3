// Package events is the domain event bus: a bounded, non-blocking
// broadcast used for progress and telemetry, never for command delivery.
package events

import "time"

// Type names an event variant.
type Type string

const (
	TypeIndexingStarted      Type = "indexing_started"
	TypeIndexingProgress     Type = "indexing_progress"
	TypeIndexingCompleted    Type = "indexing_completed"
	TypeSearchExecuted       Type = "search_executed"
	TypeCacheInvalidate      Type = "cache_invalidate"
	TypeFileChangesDetected  Type = "file_changes_detected"
	TypeConfigReloaded       Type = "config_reloaded"
	TypeServiceStateChanged  Type = "service_state_changed"
	TypeHealthCheckCompleted Type = "health_check_completed"
)

// Event is implemented by every variant below.
type Event interface {
	EventType() Type
}

// IndexingStarted is published once per indexing run.
type IndexingStarted struct {
	OperationID string
	Collection  string
	TotalFiles  int
}

// IndexingProgress is published at most every progress interval.
type IndexingProgress struct {
	OperationID string
	Collection  string
	Processed   int
	Total       int
	CurrentFile string
}

// IndexingCompleted carries the run totals.
type IndexingCompleted struct {
	OperationID    string
	Collection     string
	FilesProcessed int
	Chunks         int
	Errors         int
	Status         string
	DurationMs     int64
}

// SearchExecuted is published after every search.
type SearchExecuted struct {
	Query       string
	Collection  string
	ResultCount int
	ElapsedMs   int64
}

// CacheInvalidate asks cache owners to drop a namespace ("" = all).
type CacheInvalidate struct {
	Namespace string
}

// FileChangesDetected is published by the watcher.
type FileChangesDetected struct {
	Root  string
	Paths []string
}

// ConfigReloaded is published when a provider is swapped at runtime.
type ConfigReloaded struct {
	Section  string
	Provider string
}

// ServiceState is the lifecycle state of a service.
type ServiceState string

const (
	ServiceStarting ServiceState = "starting"
	ServiceRunning  ServiceState = "running"
	ServiceStopping ServiceState = "stopping"
	ServiceStopped  ServiceState = "stopped"
)

// ServiceStateChanged is published on application start and stop.
type ServiceStateChanged struct {
	Service string
	State   ServiceState
}

// HealthStatus is the outcome of probing one provider.
type HealthStatus struct {
	Component string
	Provider  string
	Healthy   bool
	Error     string
	Latency   time.Duration
}

// HealthCheckCompleted aggregates one health probe round.
type HealthCheckCompleted struct {
	Healthy  bool
	Statuses []HealthStatus
}

func (IndexingStarted) EventType() Type      { return TypeIndexingStarted }
func (IndexingProgress) EventType() Type     { return TypeIndexingProgress }
func (IndexingCompleted) EventType() Type    { return TypeIndexingCompleted }
func (SearchExecuted) EventType() Type       { return TypeSearchExecuted }
func (CacheInvalidate) EventType() Type      { return TypeCacheInvalidate }
func (FileChangesDetected) EventType() Type  { return TypeFileChangesDetected }
func (ConfigReloaded) EventType() Type       { return TypeConfigReloaded }
func (ServiceStateChanged) EventType() Type  { return TypeServiceStateChanged }
func (HealthCheckCompleted) EventType() Type { return TypeHealthCheckCompleted }
