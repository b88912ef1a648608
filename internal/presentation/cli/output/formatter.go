// Package output provides CLI output formatting utilities.
// It supports text, table and JSON output with optional ANSI colors.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Format represents the output format type.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Color represents ANSI color codes for terminal output.
type Color string

const (
	ColorReset  Color = "\033[0m"
	ColorRed    Color = "\033[31m"
	ColorGreen  Color = "\033[32m"
	ColorYellow Color = "\033[33m"
	ColorBlue   Color = "\033[34m"
	ColorCyan   Color = "\033[36m"
	ColorBold   Color = "\033[1m"
	ColorDim    Color = "\033[2m"
)

// Formatter writes command output. It is safe for concurrent use.
type Formatter struct {
	mu           sync.Mutex
	writer       io.Writer
	format       Format
	colorEnabled bool
	indent       string
}

// Option is a functional option for configuring a Formatter.
type Option func(*Formatter)

// NewFormatter creates a new Formatter with the given options.
func NewFormatter(opts ...Option) *Formatter {
	f := &Formatter{
		writer:       os.Stdout,
		format:       FormatText,
		colorEnabled: true,
		indent:       "  ",
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// WithWriter sets the output writer.
func WithWriter(w io.Writer) Option {
	return func(f *Formatter) {
		f.writer = w
	}
}

// WithFormat sets the output format.
func WithFormat(format Format) Option {
	return func(f *Formatter) {
		f.format = format
	}
}

// WithColor enables or disables colored output.
func WithColor(enabled bool) Option {
	return func(f *Formatter) {
		f.colorEnabled = enabled
	}
}

// ColorSupported reports whether stdout looks like a color terminal.
// NO_COLOR disables colors, FORCE_COLOR forces them.
func ColorSupported() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if _, ok := os.LookupEnv("FORCE_COLOR"); ok {
		return true
	}
	stat, err := os.Stdout.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice == 0 {
		return false
	}
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

// Format returns the current output format.
func (f *Formatter) Format() Format {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.format
}

// Writer returns the underlying writer.
func (f *Formatter) Writer() io.Writer {
	return f.writer
}

// Println writes formatted output with a newline.
func (f *Formatter) Println(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := fmt.Fprintf(f.writer, format+"\n", args...)
	return err
}

// Colorize wraps text with ANSI color codes if color is enabled.
func (f *Formatter) Colorize(text string, color Color) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.colorEnabled {
		return text
	}
	return string(color) + text + string(ColorReset)
}

// Success prints a success message in green.
func (f *Formatter) Success(format string, args ...any) error {
	return f.Println("%s", f.Colorize("✓ "+fmt.Sprintf(format, args...), ColorGreen))
}

// Error prints an error message in red.
func (f *Formatter) Error(format string, args ...any) error {
	return f.Println("%s", f.Colorize("✗ "+fmt.Sprintf(format, args...), ColorRed))
}

// Warning prints a warning message in yellow.
func (f *Formatter) Warning(format string, args ...any) error {
	return f.Println("%s", f.Colorize("⚠ "+fmt.Sprintf(format, args...), ColorYellow))
}

// Info prints an info message in blue.
func (f *Formatter) Info(format string, args ...any) error {
	return f.Println("%s", f.Colorize("ℹ "+fmt.Sprintf(format, args...), ColorBlue))
}

// Bold returns text in bold.
func (f *Formatter) Bold(text string) string {
	return f.Colorize(text, ColorBold)
}

// Dim returns text in a muted style.
func (f *Formatter) Dim(text string) string {
	return f.Colorize(text, ColorDim)
}

// Header outputs a section header with underline.
func (f *Formatter) Header(msg string) error {
	if err := f.Println("%s", f.Bold(msg)); err != nil {
		return err
	}
	return f.Println("%s", strings.Repeat("─", len([]rune(msg))))
}

// Item outputs a key-value pair.
func (f *Formatter) Item(key, value string) error {
	return f.Println("  %s: %s", f.Dim(key), value)
}

// TableData represents data for table formatting.
type TableData struct {
	Headers []string
	Rows    [][]string
}

// Table writes data as a left-aligned table.
func (f *Formatter) Table(data TableData) error {
	if len(data.Headers) == 0 {
		return nil
	}

	widths := make([]int, len(data.Headers))
	for i, h := range data.Headers {
		widths[i] = len(h)
	}
	for _, row := range data.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	line := func(cells []string) string {
		var b strings.Builder
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			b.WriteString(cell)
			if i < len(widths)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-len(cell)+2))
			}
		}
		return b.String()
	}

	if err := f.Println("%s", f.Bold(line(data.Headers))); err != nil {
		return err
	}
	seps := make([]string, len(widths))
	for i, w := range widths {
		seps[i] = strings.Repeat("-", w)
	}
	if err := f.Println("%s", line(seps)); err != nil {
		return err
	}
	for _, row := range data.Rows {
		if err := f.Println("%s", line(row)); err != nil {
			return err
		}
	}
	return nil
}

// JSON writes data as indented JSON.
func (f *Formatter) JSON(data any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", f.indent)
	return encoder.Encode(data)
}

// ParseFormat parses a string into a Format type.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "text", "table", "":
		return FormatText, nil
	default:
		return FormatText, fmt.Errorf("unknown format: %s", s)
	}
}

// Spinner is a progress indicator for long-running operations.
type Spinner struct {
	mu       sync.Mutex
	frames   []string
	index    int
	message  string
	writer   io.Writer
	running  bool
	done     chan struct{}
	stopped  chan struct{}
	interval time.Duration
}

// NewSpinner creates a spinner writing to w.
func NewSpinner(message string, w io.Writer) *Spinner {
	return &Spinner{
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		message:  message,
		writer:   w,
		interval: 80 * time.Millisecond,
	}
}

// Start begins the animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})
	s.mu.Unlock()

	go s.animate()
}

// Stop stops the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	stopped := s.stopped
	s.mu.Unlock()

	<-stopped
	_, _ = fmt.Fprintf(s.writer, "\r%s\r", strings.Repeat(" ", len(s.message)+4))
}

func (s *Spinner) animate() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.stopped)

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			frame := s.frames[s.index]
			s.index = (s.index + 1) % len(s.frames)
			s.mu.Unlock()
			_, _ = fmt.Fprintf(s.writer, "\r%s %s", frame, s.message)
		}
	}
}
