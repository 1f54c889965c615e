package ui

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/alessio/shellescape"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// LogLevel orders printer messages; messages below the printer's level are dropped.
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

func (l LogLevel) String() string {
	switch l {
	case LogDebug:
		return "debug"
	case LogWarn:
		return "warn"
	case LogError:
		return "error"
	default:
		return "info"
	}
}

// ParseLogLevel accepts debug, info, warn/warning and error.
func ParseLogLevel(raw string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return LogDebug, nil
	case "", "info":
		return LogInfo, nil
	case "warn", "warning":
		return LogWarn, nil
	case "error":
		return LogError, nil
	default:
		return LogInfo, fmt.Errorf("invalid log level: %q", raw)
	}
}

// Sink receives printer output while a live view owns the terminal.
type Sink interface {
	Log(level LogLevel, msg string)
	Println(line string)
}

// Options configures a Printer.
type Options struct {
	Out   io.Writer
	Quiet bool
	Level LogLevel
	Color *bool
}

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	skipStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	debugStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Printer writes per-link status lines and leveled messages to stderr.
// A nil *Printer discards everything.
type Printer struct {
	mu         sync.Mutex
	out        io.Writer
	quiet      bool
	level      LogLevel
	color      bool
	columns    int
	titleWidth int
	sink       Sink
}

func NewPrinter(opts Options) *Printer {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	columns := terminalColumns()
	if columns <= 0 {
		columns = 100
	}
	titleWidth := columns - 44
	if titleWidth < 20 {
		titleWidth = 20
	}
	if titleWidth > 60 {
		titleWidth = 60
	}
	color := supportsColor()
	if opts.Color != nil {
		color = *opts.Color
	}
	return &Printer{
		out:        out,
		quiet:      opts.Quiet,
		level:      opts.Level,
		color:      color,
		columns:    columns,
		titleWidth: titleWidth,
	}
}

// Attach routes output through sink until Detach is called.
func (p *Printer) Attach(sink Sink) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()
}

func (p *Printer) Detach() {
	p.Attach(nil)
}

func (p *Printer) Log(level LogLevel, msg string) {
	if p == nil || msg == "" || level < p.level {
		return
	}
	if p.quiet && level < LogWarn {
		return
	}
	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	if sink != nil {
		sink.Log(level, msg)
		return
	}
	p.writeLine(p.styleFor(level, msg))
}

func (p *Printer) Logf(level LogLevel, format string, args ...any) {
	if p == nil || level < p.level {
		return
	}
	p.Log(level, fmt.Sprintf(format, args...))
}

// Command echoes an external command line at debug level.
func (p *Printer) Command(name string, args []string) {
	if p == nil || p.level > LogDebug {
		return
	}
	p.Log(LogDebug, "running: "+shellescape.QuoteCommand(append([]string{name}, args...)))
}

func (p *Printer) Prefix(index, total int, title string) string {
	if p == nil {
		return title
	}
	if total <= 0 {
		total = 1
	}
	width := len(strconv.Itoa(total))
	idx := fmt.Sprintf("%*d/%d", width, index, total)
	return fmt.Sprintf("[%s] %-*s", idx, p.titleWidth, truncateText(title, p.titleWidth))
}

func (p *Printer) ItemResult(prefix, detail string, err error) {
	if p == nil || (err == nil && p.quiet) {
		return
	}
	statusText := "OK"
	style := okStyle
	if err != nil {
		statusText = "FAIL"
		style = failStyle
		detail = firstLine(err.Error())
	}
	maxDetail := p.columns - len(prefix) - len(statusText) - 3
	if maxDetail < 0 {
		maxDetail = 0
	}
	p.emit(fmt.Sprintf("%s %s %s", prefix, p.render(style, statusText), truncateText(detail, maxDetail)))
}

func (p *Printer) ItemSkipped(prefix, reason string) {
	if p == nil || p.quiet {
		return
	}
	maxDetail := p.columns - len(prefix) - len("SKIP") - 3
	if maxDetail < 0 {
		maxDetail = 0
	}
	p.emit(fmt.Sprintf("%s %s %s", prefix, p.render(skipStyle, "SKIP"), truncateText(reason, maxDetail)))
}

func (p *Printer) Summary(total, ok, failed, skipped int, bytes int64) {
	if p == nil || p.quiet {
		return
	}
	p.emit(fmt.Sprintf("Summary: %s %d | %s %d | %s %d | TOTAL %d | SIZE %s",
		p.render(okStyle, "OK"), ok,
		p.render(failStyle, "FAIL"), failed,
		p.render(skipStyle, "SKIP"), skipped,
		total, humanize.Bytes(uint64(max(bytes, 0)))))
}

func (p *Printer) emit(line string) {
	p.mu.Lock()
	sink := p.sink
	p.mu.Unlock()
	if sink != nil {
		sink.Println(line)
		return
	}
	p.writeLine(line)
}

func (p *Printer) writeLine(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

func (p *Printer) styleFor(level LogLevel, msg string) string {
	switch level {
	case LogDebug:
		return p.render(debugStyle, msg)
	case LogWarn:
		return p.render(warnStyle, msg)
	case LogError:
		return p.render(errorStyle, msg)
	default:
		return msg
	}
}

func (p *Printer) render(style lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return style.Render(text)
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	return text
}

func truncateText(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	if max <= 3 {
		return text[:max]
	}
	return text[:max-3] + "..."
}

func terminalColumns() int {
	if columns := os.Getenv("COLUMNS"); columns != "" {
		if val, err := strconv.Atoi(columns); err == nil && val > 0 {
			return val
		}
	}
	return 0
}

func supportsColor() bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" || os.Getenv("CLICOLOR_FORCE") != "" {
		return true
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	return IsTerminal(os.Stderr)
}

// IsTerminal reports whether f is a character device.
func IsTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
