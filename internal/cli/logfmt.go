package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/Paintersrp/warden/internal/events"
)

type logRecord struct {
	Timestamp time.Time   `json:"ts"`
	Worker    string      `json:"worker"`
	Pid       int         `json:"pid,omitempty"`
	Type      events.Type `json:"type"`
	Level     string      `json:"level"`
	Message   string      `json:"msg"`
	Source    string      `json:"source"`
	Error     string      `json:"error,omitempty"`
	RestartID string      `json:"restartId,omitempty"`
}

func newLogRecord(event events.Event) logRecord {
	level := event.Level
	if level == "" {
		level = "info"
	}
	source := event.Source
	if source == "" {
		source = events.SourceSystem
	}
	record := logRecord{
		Timestamp: event.Timestamp,
		Worker:    event.Worker,
		Pid:       event.Pid,
		Type:      event.Type,
		Level:     level,
		Message:   event.Message,
		Source:    source,
		RestartID: event.RestartID,
	}
	if event.Err != nil {
		record.Error = event.Err.Error()
	}
	return record
}

// eventWriter renders events either as JSON lines or in a compact
// human format when stdout is a terminal.
type eventWriter struct {
	out    io.Writer
	stderr io.Writer
	enc    *json.Encoder
	pretty bool
}

func newEventWriter(out, stderr io.Writer, format string) *eventWriter {
	w := &eventWriter{out: out, stderr: stderr}
	switch format {
	case "pretty":
		w.pretty = true
	case "json":
	default: // auto
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			w.pretty = true
		}
	}
	if !w.pretty {
		w.enc = json.NewEncoder(out)
	}
	return w
}

func (w *eventWriter) Write(event events.Event) {
	record := newLogRecord(event)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if w.pretty {
		line := fmt.Sprintf("%s %-5s %-12s %s",
			record.Timestamp.Format("15:04:05.000"), record.Level, record.Worker, record.Message)
		if record.Error != "" {
			line += " error=" + record.Error
		}
		if record.RestartID != "" {
			line += " restart=" + record.RestartID
		}
		fmt.Fprintln(w.out, line)
		return
	}
	if err := w.enc.Encode(&record); err != nil {
		fmt.Fprintf(w.stderr, "error: encode log: %v\n", err)
	}
}
