package preflight

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MarkerFile records in the state directory that the checks passed.
const MarkerFile = "preflight.json"

// Marker identifies the setup a preflight run validated. A later run with
// a different binary version or provider pair has to check again.
type Marker struct {
	Version     string    `json:"version"`
	Embedding   string    `json:"embedding"`
	VectorStore string    `json:"vector_store"`
	PassedAt    time.Time `json:"passed_at"`
}

// Covers reports whether m was written for the same setup as want.
// PassedAt is ignored.
func (m Marker) Covers(want Marker) bool {
	return m.Version == want.Version &&
		m.Embedding == want.Embedding &&
		m.VectorStore == want.VectorStore
}

// ReadMarker loads the marker. ok is false when it is missing or corrupt.
func ReadMarker(stateDir string) (m Marker, ok bool) {
	data, err := os.ReadFile(filepath.Join(stateDir, MarkerFile))
	if err != nil {
		return Marker{}, false
	}
	if err := json.Unmarshal(data, &m); err != nil || m.PassedAt.IsZero() {
		return Marker{}, false
	}
	return m, true
}

// NeedsCheck reports whether stateDir lacks a marker covering want.
func NeedsCheck(stateDir string, want Marker) bool {
	m, ok := ReadMarker(stateDir)
	return !ok || !m.Covers(want)
}

// MarkPassed stamps m with the current time and writes it atomically.
func MarkPassed(stateDir string, m Marker) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("failed to create marker directory: %w", err)
	}
	m.PassedAt = time.Now().UTC()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode marker: %w", err)
	}
	path := filepath.Join(stateDir, MarkerFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write marker: %w", err)
	}
	return nil
}

// ClearMarker removes the marker. A missing marker is not an error.
func ClearMarker(stateDir string) error {
	err := os.Remove(filepath.Join(stateDir, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove marker: %w", err)
	}
	return nil
}
