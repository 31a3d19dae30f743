package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/wippyai/tickhost/bootstrap"
	"github.com/wippyai/tickhost/config"
	"github.com/wippyai/tickhost/errors"
	"github.com/wippyai/tickhost/scheduler"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB")).
			Width(12)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderTop(true).
			BorderForeground(lipgloss.Color("#444444"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const refreshInterval = 100 * time.Millisecond

// host is the part of bootstrap.Host the TUI reads.
type host interface {
	Stats() scheduler.Stats
	Err() error
}

type interactiveModel struct {
	startErr  error
	host      host
	logs      *logBuffer
	prevAt    time.Time
	source    string
	spinner   spinner.Model
	stats     scheduler.Stats
	rate      float64
	prevTicks uint64
	started   bool
}

type startedMsg struct {
	err error
}

type refreshMsg time.Time

func newInteractiveModel(h host, logs *logBuffer, source string) *interactiveModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return &interactiveModel{
		host:    h,
		logs:    logs,
		source:  source,
		spinner: s,
	}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, refresh())
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}

	case startedMsg:
		m.started = true
		m.startErr = msg.err

	case refreshMsg:
		m.observe(m.host.Stats(), time.Time(msg))
		return m, refresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// observe records a stats sample and updates the measured tick rate.
func (m *interactiveModel) observe(s scheduler.Stats, at time.Time) {
	if !m.prevAt.IsZero() && at.After(m.prevAt) && s.Ticks >= m.prevTicks {
		m.rate = float64(s.Ticks-m.prevTicks) / at.Sub(m.prevAt).Seconds()
	}
	m.stats = s
	m.prevTicks = s.Ticks
	m.prevAt = at
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("tickhost"))
	b.WriteString(" ")
	b.WriteString(m.source)
	b.WriteString("\n\n")

	if !m.started {
		b.WriteString(m.spinner.View())
		b.WriteString(" loading module and creating application...\n")
	}

	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}

	s := m.stats
	row("state", s.State.String())
	if s.HasHandle {
		row("handle", fmt.Sprintf("%d", s.Handle))
	}
	row("period", s.Period.String())
	row("ticks", fmt.Sprintf("%d", s.Ticks))
	row("rate", fmt.Sprintf("%.1f/s", m.rate))
	row("failures", fmt.Sprintf("%d", s.Failures))
	if s.Dropped > 0 {
		row("dropped", fmt.Sprintf("%d", s.Dropped))
	}

	if err := m.lastError(); err != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render("Error: " + err))
		b.WriteString("\n")
	}

	if lines := m.logs.Lines(); len(lines) > 0 {
		b.WriteString("\n")
		b.WriteString(logStyle.Render(strings.Join(lines, "\n")))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("q quit"))
	return b.String()
}

func (m *interactiveModel) lastError() string {
	switch {
	case m.startErr != nil:
		return describe(m.startErr)
	case m.host.Err() != nil:
		return describe(m.host.Err())
	default:
		return m.stats.LastError
	}
}

// logBuffer keeps the most recent log lines for display.
type logBuffer struct {
	lines []string
	max   int
	mu    sync.Mutex
}

func newLogBuffer(max int) *logBuffer {
	return &logBuffer{max: max}
}

func (l *logBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		l.lines = append(l.lines, line)
	}
	if over := len(l.lines) - l.max; over > 0 {
		l.lines = append([]string(nil), l.lines[over:]...)
	}
	return len(p), nil
}

func (l *logBuffer) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func newBufferLogger(buf *logBuffer, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.AddSync(buf), lvl)
	return zap.New(core), nil
}

func runInteractive(ctx context.Context, cfg *config.Config) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("interactive mode requires a terminal")
	}

	logs := newLogBuffer(8)
	logger, err := newBufferLogger(logs, cfg.LogLevel)
	if err != nil {
		return err
	}

	h := bootstrap.New(cfg, bootstrap.WithLogger(logger))
	model := newInteractiveModel(h, logs, bootstrap.SourceFor(cfg).String())
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	// Start runs beside the program so quitting can interrupt a slow load
	// or a pending creation. Shutdown must not begin before Start returns.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	startDone := make(chan struct{})
	go func() {
		defer close(startDone)
		p.Send(startedMsg{err: h.Start(runCtx)})
	}()

	_, err = p.Run()
	if stderrors.Is(err, tea.ErrProgramKilled) {
		err = nil
	}
	cancelRun()
	<-startDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), bootstrap.DefaultShutdownTimeout)
	defer cancel()
	if serr := h.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	// A creation interrupted by quitting is not a failure.
	canceled := &errors.Error{Phase: errors.PhaseStartup, Kind: errors.KindCanceled}
	if herr := h.Err(); err == nil && herr != nil && !stderrors.Is(herr, canceled) {
		err = herr
	}
	return err
}
