package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ObservationType classifies an observation.
type ObservationType string

const (
	ObservationCode        ObservationType = "code"
	ObservationDecision    ObservationType = "decision"
	ObservationContext     ObservationType = "context"
	ObservationError       ObservationType = "error"
	ObservationSummary     ObservationType = "summary"
	ObservationExecution   ObservationType = "execution"
	ObservationQualityGate ObservationType = "quality_gate"
)

var observationTypes = []ObservationType{
	ObservationCode, ObservationDecision, ObservationContext, ObservationError,
	ObservationSummary, ObservationExecution, ObservationQualityGate,
}

// ParseObservationType is case-insensitive.
func ParseObservationType(s string) (ObservationType, error) {
	lower := ObservationType(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range observationTypes {
		if t == lower {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown observation type: %s", s)
}

// ExecutionMetadata records a test, lint, build or CI run.
type ExecutionMetadata struct {
	Command       string   `json:"command"`
	ExitCode      *int     `json:"exit_code,omitempty"`
	DurationMs    *int64   `json:"duration_ms,omitempty"`
	Success       bool     `json:"success"`
	ExecutionType string   `json:"execution_type"`
	Coverage      *float32 `json:"coverage,omitempty"`
	FilesAffected []string `json:"files_affected,omitempty"`
	OutputSummary string   `json:"output_summary,omitempty"`
}

// QualityGateResult records the outcome of a named gate.
type QualityGateResult struct {
	GateName    string `json:"gate_name"`
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	Timestamp   int64  `json:"timestamp"`
	ExecutionID string `json:"execution_id,omitempty"`
}

// ObservationMetadata is stored as JSON and queried by the timeline filter.
type ObservationMetadata struct {
	SessionID       string             `json:"session_id,omitempty"`
	ParentSessionID string             `json:"parent_session_id,omitempty"`
	RepoID          string             `json:"repo_id,omitempty"`
	FilePath        string             `json:"file_path,omitempty"`
	Branch          string             `json:"branch,omitempty"`
	Commit          string             `json:"commit,omitempty"`
	Execution       *ExecutionMetadata `json:"execution,omitempty"`
	QualityGate     *QualityGateResult `json:"quality_gate,omitempty"`
}

// Observation is an agent-authored memory record. ContentHash is the
// deduplication key.
type Observation struct {
	ID          string
	ProjectID   string
	Content     string
	ContentHash string
	Tags        []string
	Type        ObservationType
	Metadata    ObservationMetadata
	CreatedAt   int64 // Unix seconds
	EmbeddingID string
}

// ContentHash is the hex SHA-256 of content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// SessionSummary condenses one agent session.
type SessionSummary struct {
	ID            string
	ProjectID     string
	OrgID         string
	SessionID     string
	Topics        []string
	Decisions     []string
	NextSteps     []string
	KeyFiles      []string
	OriginContext map[string]string
	CreatedAt     int64
}

// MemoryFilter narrows timeline and search queries. Empty fields match all;
// every listed tag must be present.
type MemoryFilter struct {
	Tags            []string
	Type            ObservationType
	SessionID       string
	ParentSessionID string
	RepoID          string
	Branch          string
	Commit          string
	Since           int64
	Until           int64
}

// Match evaluates the filter in memory, mirroring the SQL predicate.
func (f MemoryFilter) Match(o *Observation) bool {
	if f.Type != "" && o.Type != f.Type {
		return false
	}
	if f.SessionID != "" && o.Metadata.SessionID != f.SessionID {
		return false
	}
	if f.ParentSessionID != "" && o.Metadata.ParentSessionID != f.ParentSessionID {
		return false
	}
	if f.RepoID != "" && o.Metadata.RepoID != f.RepoID {
		return false
	}
	if f.Branch != "" && o.Metadata.Branch != f.Branch {
		return false
	}
	if f.Commit != "" && o.Metadata.Commit != f.Commit {
		return false
	}
	if f.Since > 0 && o.CreatedAt < f.Since {
		return false
	}
	if f.Until > 0 && o.CreatedAt > f.Until {
		return false
	}
	for _, want := range f.Tags {
		found := false
		for _, t := range o.Tags {
			if t == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// RankedID pairs an id with a score in [0,1], 1 being best.
type RankedID struct {
	ID    string
	Score float64
}
