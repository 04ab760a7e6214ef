package annotations

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter with color support detection.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
	}
}

// Handle prints events as they occur
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output != "" {
		fmt.Fprintln(f.writer, output)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)
	d := event.Data

	switch event.Name {
	case ObjectStored:
		return fmt.Sprintf("%s %s %s/%s with %s",
			latency,
			f.colorize("stored", color.FgGreen),
			d["bucket"], d["key"],
			f.colorizeCount("indexes", intField(d, "indexes")))

	case ObjectDeleted:
		return fmt.Sprintf("%s %s %s/%s",
			latency,
			f.colorize("deleted", color.FgYellow),
			d["bucket"], d["key"])

	case IndexWritten:
		return fmt.Sprintf("%s   + %s/%s", latency, d["bucket"], d["key"])

	case IndexRemoved:
		return fmt.Sprintf("%s   - %s/%s", latency, d["bucket"], d["key"])

	case IndexMissing:
		return fmt.Sprintf("%s   %s %s/%s already gone",
			latency,
			f.colorize("?", color.FgYellow),
			d["bucket"], d["key"])

	case IndexSkipped:
		return fmt.Sprintf("%s   %s %s not indexed: %s",
			latency,
			f.colorize("~", color.FgYellow),
			d["key"], d["reason"])

	case IndexError:
		return fmt.Sprintf("%s   %s %s/%s: %v",
			latency,
			f.colorize("✗", color.FgRed),
			d["bucket"], d["key"], d["error"])

	case QueryInvoked:
		return fmt.Sprintf("%s Query: %s %s %v",
			latency,
			d["bucket"],
			f.colorize(fmt.Sprint(d["op"]), color.FgCyan),
			d["value"])

	case QueryComplete:
		if success, _ := d["success"].(bool); !success {
			return fmt.Sprintf("%s %s Query failed: %v",
				latency,
				f.colorize("✗", color.FgRed),
				d["error"])
		}
		return fmt.Sprintf("%s %s Query done with %s",
			latency,
			f.colorize("===", color.FgGreen),
			f.colorizeCount("matches", intField(d, "matches")))

	case RepairComplete:
		return fmt.Sprintf("%s %s %s: scanned %s, removed %s, wrote %s",
			latency,
			f.colorize("repair", color.FgGreen),
			d["bucket"],
			f.colorizeCount("records", intField(d, "scanned")),
			f.colorizeCount("records", intField(d, "removed")),
			f.colorizeCount("records", intField(d, "written")))

	default:
		// Generic format for unknown events
		return fmt.Sprintf("%s %s %v", latency, event.Name, d)
	}
}

// formatLatency formats a duration as [XXXms] or [XXXµs] with color coding.
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		s := fmt.Sprintf("[%dµs]", d.Microseconds())
		if !f.useColor {
			return s
		}
		return color.GreenString(s)
	}

	ms := float64(d.Microseconds()) / 1000.0
	s := fmt.Sprintf("[%.1fms]", ms)
	if !f.useColor {
		return s
	}

	switch {
	case ms < 50:
		return color.GreenString(s)
	case ms < 200:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// colorizeCount formats a count with a label
func (f *OutputFormatter) colorizeCount(label string, count int) string {
	text := fmt.Sprintf("%d %s", count, label)
	if !f.useColor {
		return text
	}
	return color.CyanString(text)
}

// colorize applies color if enabled.
func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

func intField(data map[string]interface{}, name string) int {
	n, _ := data[name].(int)
	return n
}

// ConsoleHandler creates a handler that prints formatted events to w
func ConsoleHandler(w io.Writer) Handler {
	return NewOutputFormatter(w).Handle
}
