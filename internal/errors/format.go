package errors

import (
	"fmt"
	"log/slog"
	"strings"
)

// ToolError is the shape surfaced to tool-layer callers.
type ToolError struct {
	Code      string   `json:"code"`
	Kind      Kind     `json:"kind"`
	Message   string   `json:"message"`
	Retryable bool     `json:"retryable"`
	Available []string `json:"available,omitempty"`
}

// FormatForTool converts an error for external callers.
// Internal errors never leak their message text.
func FormatForTool(err error) *ToolError {
	if err == nil {
		return nil
	}

	e, ok := As(FromContext(err))
	if !ok || e.Kind == KindInternal {
		return &ToolError{
			Code:    ErrCodeInternal,
			Kind:    KindInternal,
			Message: "internal error",
		}
	}

	return &ToolError{
		Code:      e.Code,
		Kind:      e.Kind,
		Message:   e.Message,
		Retryable: e.Retryable,
		Available: e.Available,
	}
}

// FormatForCLI formats an error for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	e, ok := As(err)
	if !ok {
		e = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", e.Message))
	if e.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", e.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", e.Code))
	return sb.String()
}

// LogAttrs returns slog attributes describing err.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	e, ok := As(err)
	if !ok {
		return []any{slog.String("error", err.Error())}
	}

	attrs := []any{
		slog.String("error", e.Message),
		slog.String("error_code", e.Code),
		slog.String("error_kind", string(e.Kind)),
		slog.Bool("retryable", e.Retryable),
	}
	if e.Cause != nil {
		attrs = append(attrs, slog.String("cause", e.Cause.Error()))
	}
	for k, v := range e.Details {
		attrs = append(attrs, slog.String("detail_"+k, v))
	}
	return attrs
}
