package ui

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// quitTimeout bounds how long Stop waits for the program to exit.
const quitTimeout = 2 * time.Second

// TUIRenderer draws a live progress panel with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	tracker *Tracker
	model   *progressModel
	program *tea.Program
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer writing to cfg.Output.
func NewTUIRenderer(cfg Config) *TUIRenderer {
	tracker := NewTracker()
	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   newProgressModel(tracker, cfg.Title, GetStyles(cfg.NoColor)),
		done:    make(chan struct{}),
	}
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		return nil
	}
	r.program = tea.NewProgram(r.model,
		tea.WithContext(ctx),
		tea.WithOutput(r.cfg.Output),
		tea.WithInput(nil))
	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// Update implements Renderer.
func (r *TUIRenderer) Update(p Progress) {
	r.tracker.Update(p)
	r.send(tickMsg(time.Now()))
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(s Summary) {
	r.send(completeMsg(s))
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p == nil {
		return nil
	}
	p.Quit()
	select {
	case <-r.done:
	case <-time.After(quitTimeout):
	}
	return nil
}

type tickMsg time.Time
type completeMsg Summary

// progressModel is the bubbletea model of one indexing run.
type progressModel struct {
	tracker  *Tracker
	title    string
	styles   Styles
	spinner  spinner.Model
	bar      progress.Model
	width    int
	summary  *Summary
	quitting bool
}

func newProgressModel(tracker *Tracker, title string, styles Styles) *progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Success
	bar := progress.New(progress.WithSolidFill(ColorAccent), progress.WithWidth(40), progress.WithoutPercentage())
	return &progressModel{tracker: tracker, title: title, styles: styles, spinner: s, bar: bar, width: 80}
}

// Init implements tea.Model.
func (m *progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(20, msg.Width-30)
	case completeMsg:
		s := Summary(msg)
		m.summary = &s
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *progressModel) View() string {
	if m.summary != nil {
		var buf bytes.Buffer
		writeSummary(&buf, *m.summary, m.styles)
		return buf.String()
	}
	if m.quitting {
		return "Cancelled.\n"
	}

	snap := m.tracker.Snapshot()
	var lines []string
	title := "mcb index"
	if m.title != "" {
		title += " " + m.title
	}
	lines = append(lines, m.styles.Header.Render(title))

	if snap.Total == 0 {
		lines = append(lines, fmt.Sprintf("%s %s...", m.spinner.View(), snap.Stage))
	} else {
		pct := m.styles.Success.Render(fmt.Sprintf("%3.0f%%", snap.Fraction*100))
		lines = append(lines, fmt.Sprintf("%s %s %s", m.spinner.View(), m.bar.ViewAs(snap.Fraction), pct))
		stats := fmt.Sprintf("%d / %d files", snap.Processed, snap.Total)
		if snap.Rate > 0 {
			stats += fmt.Sprintf("  %.1f/s", snap.Rate)
		}
		if snap.ETA > 0 {
			stats += "  ETA " + formatDuration(snap.ETA)
		}
		lines = append(lines, m.styles.Label.Render(stats))
	}
	if snap.CurrentFile != "" {
		lines = append(lines, m.styles.Dim.Render(truncatePath(snap.CurrentFile, m.width-6)))
	}
	return m.styles.Panel.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)) + "\n"
}

// truncatePath shortens p from the left to fit width.
func truncatePath(p string, width int) string {
	if width < 8 || len(p) <= width {
		return p
	}
	return "..." + p[len(p)-width+3:]
}
