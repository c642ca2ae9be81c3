// Package preflight checks that the host and the configured providers can
// run mcb: free disk and a writable state directory, enough file
// descriptors, and healthy embedding, vector and database providers.
package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/mcb/internal/events"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns PASS, WARN or FAIL.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalJSON encodes the status as its name.
func (s CheckStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(s.String()))
}

// CheckResult is the result of a single check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// HealthProber probes the active providers.
type HealthProber interface {
	Health(ctx context.Context) events.HealthCheckCompleted
}

// Checker runs the checks.
type Checker struct {
	prober  HealthProber
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithProber adds one check per provider probed by p.
func WithProber(p HealthProber) Option {
	return func(c *Checker) { c.prober = p }
}

// WithVerbose prints check details.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) { c.verbose = verbose }
}

// WithOutput sets the writer of PrintResults.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.output = w }
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check. projectPath is the tree to index, stateDir the
// mcb home holding the database, vectors and logs.
func (c *Checker) RunAll(ctx context.Context, projectPath, stateDir string) []CheckResult {
	results := []CheckResult{
		c.CheckProjectReadable(projectPath),
		c.CheckDiskSpace(stateDir),
		c.CheckWritePermissions(stateDir),
		c.CheckFileDescriptors(),
	}
	if c.prober != nil {
		results = append(results, c.CheckProviders(ctx)...)
	}
	return results
}

// HasCriticalFailures reports whether any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus is failed, ready_with_warnings or ready.
func SummaryStatus(results []CheckResult) string {
	warnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			warnings = true
		}
	}
	if warnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults writes one line per check and the summary status.
func (c *Checker) PrintResults(results []CheckResult) {
	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if r.Details != "" && (c.verbose || r.Status != StatusPass) {
			_, _ = fmt.Fprintf(c.output, "       %s\n", r.Details)
		}
	}
	_, _ = fmt.Fprintf(c.output, "\nStatus: %s\n", strings.ToUpper(SummaryStatus(results)))
}

// CheckProjectReadable checks that path is a readable directory.
func (c *Checker) CheckProjectReadable(path string) CheckResult {
	result := CheckResult{Name: "project", Required: true}
	entries, err := os.ReadDir(path)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read %s: %v", path, err)
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d entries)", path, len(entries))
	return result
}

// CheckWritePermissions checks that dir exists or can be created, and
// accepts a new file.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	result := CheckResult{Name: "state_dir", Required: true}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return result
	}
	f, err := os.CreateTemp(dir, ".mcb-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = filepath.Clean(dir) + " is writable"
	return result
}

// CheckProviders turns one health probe round into one result per
// component. The embedding provider is optional: search degrades to BM25.
func (c *Checker) CheckProviders(ctx context.Context) []CheckResult {
	report := c.prober.Health(ctx)
	results := make([]CheckResult, 0, len(report.Statuses))
	for _, st := range report.Statuses {
		r := CheckResult{
			Name:     st.Component,
			Required: st.Component != "embedding",
		}
		if st.Healthy {
			r.Status = StatusPass
			r.Message = fmt.Sprintf("%s (%s)", st.Provider, st.Latency.Round(time.Microsecond))
		} else {
			r.Status = StatusFail
			if !r.Required {
				r.Status = StatusWarn
			}
			r.Message = st.Provider + " unavailable"
			r.Details = st.Error
		}
		results = append(results, r)
	}
	return results
}
