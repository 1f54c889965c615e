package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ProgressManager renders batch progress with Bubble Tea while the batch
// runs. It implements Sink so a Printer can be attached to it.
type ProgressManager struct {
	mu      sync.Mutex
	out     io.Writer
	program *tea.Program
	started bool
	done    chan struct{}
}

func NewProgressManager(out io.Writer) *ProgressManager {
	return &ProgressManager{out: out}
}

// Start begins rendering in a separate goroutine.
func (pm *ProgressManager) Start(ctx context.Context) {
	if pm == nil {
		return
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.started {
		return
	}

	program := tea.NewProgram(newBatchModel(),
		tea.WithOutput(pm.out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
		tea.WithContext(ctx),
	)
	pm.program = program
	pm.started = true
	pm.done = make(chan struct{})

	go func() {
		defer close(pm.done)
		_, _ = program.Run()
	}()
}

// Stop ends rendering and waits briefly for the program to exit.
func (pm *ProgressManager) Stop() {
	if pm == nil {
		return
	}
	pm.mu.Lock()
	program := pm.program
	done := pm.done
	pm.mu.Unlock()

	if program != nil {
		program.Send(stopMsg{})
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}
}

// Begin marks link index (1-based) of total as the one being processed.
func (pm *ProgressManager) Begin(index, total int, label string) {
	pm.send(beginMsg{index: index, total: total, label: label})
}

// Status updates the detail line under the current link.
func (pm *ProgressManager) Status(text string) {
	pm.send(statusMsg{text: text})
}

// Finish records the outcome of the current link.
func (pm *ProgressManager) Finish(ok bool) {
	pm.send(finishMsg{ok: ok})
}

func (pm *ProgressManager) Log(level LogLevel, msg string) {
	if msg == "" {
		return
	}
	pm.send(logMsg{level: level, text: msg})
}

func (pm *ProgressManager) Println(line string) {
	if pm == nil {
		return
	}
	pm.mu.Lock()
	program := pm.program
	pm.mu.Unlock()
	if program != nil {
		program.Println(line)
	}
}

func (pm *ProgressManager) send(msg tea.Msg) {
	if pm == nil {
		return
	}
	pm.mu.Lock()
	program := pm.program
	pm.mu.Unlock()
	if program != nil {
		program.Send(msg)
	}
}

type beginMsg struct {
	index int
	total int
	label string
}

type statusMsg struct {
	text string
}

type finishMsg struct {
	ok bool
}

type logMsg struct {
	level LogLevel
	text  string
}

type stopMsg struct{}

var (
	labelStyle    = lipgloss.NewStyle().Bold(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7FDBFF"))
	logInfoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	logWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	logErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

const maxLogLines = 4

type batchModel struct {
	spin     spinner.Model
	bar      progressbar.Model
	index    int
	total    int
	finished int
	failed   int
	label    string
	status   string
	logs     []string
	width    int
	quitting bool
}

func newBatchModel() batchModel {
	spin := spinner.New()
	spin.Spinner = spinner.Dot
	bar := progressbar.New(
		progressbar.WithGradient("#FF006E", "#00F5FF"),
		progressbar.WithWidth(40),
	)
	return batchModel{spin: spin, bar: bar, width: 100}
}

func (m batchModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m batchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case beginMsg:
		m.index = msg.index
		m.total = msg.total
		m.label = msg.label
		m.status = ""
		return m, nil
	case statusMsg:
		m.status = msg.text
		return m, nil
	case finishMsg:
		m.finished++
		if !msg.ok {
			m.failed++
		}
		return m, nil
	case logMsg:
		var style lipgloss.Style
		switch msg.level {
		case LogError:
			style = logErrorStyle
		case LogWarn:
			style = logWarnStyle
		default:
			style = logInfoStyle
		}
		m.logs = append(m.logs, style.Render(truncateText(msg.text, m.width)))
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = barWidth(msg.Width)
		return m, nil
	case stopMsg:
		m.quitting = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m batchModel) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	percent := 0.0
	if m.total > 0 {
		percent = float64(m.finished) / float64(m.total)
	}
	fmt.Fprintf(&b, "%s %s %d/%d", m.spin.View(), m.bar.ViewAs(percent), m.finished, m.total)
	if m.failed > 0 {
		fmt.Fprintf(&b, " (%d failed)", m.failed)
	}
	b.WriteString("\n")
	if m.label != "" {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(fmt.Sprintf("[%d/%d]", m.index, m.total)), truncateText(m.label, m.width-12))
	}
	if m.status != "" {
		b.WriteString(statusStyle.Render(truncateText(m.status, m.width)) + "\n")
	}
	for _, line := range m.logs {
		b.WriteString(line + "\n")
	}
	return b.String()
}

func barWidth(total int) int {
	width := total - 30
	if width < 10 {
		return 10
	}
	if width > 60 {
		return 60
	}
	return width
}
