// Package output writes the styled status lines of the mcb CLI.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/mcb/internal/ui"
)

// Writer prints status lines, key/value blocks and JSON documents.
// Write errors are ignored; this is console output.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New returns a Writer over out. Colors are used only when out is a
// terminal and noColor is false.
func New(out io.Writer, noColor bool) *Writer {
	return &Writer{
		out:    out,
		styles: ui.GetStyles(noColor || ui.DetectNoColor() || !ui.IsTTY(out)),
	}
}

// Status prints msg behind a short tag. An empty tag indents msg.
func (w *Writer) Status(tag, msg string) {
	if tag == "" {
		_, _ = fmt.Fprintf(w.out, "      %s\n", msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%-5s %s\n", tag, msg)
}

// Statusf is Status with formatting.
func (w *Writer) Statusf(tag, format string, args ...any) {
	w.Status(tag, fmt.Sprintf(format, args...))
}

// Successf prints an OK line.
func (w *Writer) Successf(format string, args ...any) {
	w.Status(w.styles.Success.Render("OK"), fmt.Sprintf(format, args...))
}

// Warningf prints a WARN line.
func (w *Writer) Warningf(format string, args ...any) {
	w.Status(w.styles.Warning.Render("WARN"), fmt.Sprintf(format, args...))
}

// Errorf prints an ERR line.
func (w *Writer) Errorf(format string, args ...any) {
	w.Status(w.styles.Error.Render("ERR"), fmt.Sprintf(format, args...))
}

// Header prints a bold section title.
func (w *Writer) Header(title string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(title))
}

// KeyValues prints aligned label/value pairs given as alternating strings.
// A trailing label without a value is dropped.
func (w *Writer) KeyValues(pairs ...string) {
	width := 0
	for i := 0; i+1 < len(pairs); i += 2 {
		width = max(width, len(pairs[i]))
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		label := pairs[i] + ":" + strings.Repeat(" ", width-len(pairs[i]))
		_, _ = fmt.Fprintf(w.out, "  %s %s\n", w.styles.Label.Render(label), pairs[i+1])
	}
}

// Code prints content indented by two spaces between blank lines.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v indented.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
