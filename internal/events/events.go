package events

import "time"

// Type captures high level lifecycle notifications emitted by the
// manager and the process runtime.
type Type string

const (
	TypeStarting    Type = "starting"
	TypeStarted     Type = "started"
	TypeAcked       Type = "acked"
	TypeReady       Type = "ready"
	TypeRestarting  Type = "restarting"
	TypeTerminating Type = "terminating"
	TypeKilling     Type = "killing"
	TypeSignal      Type = "signal"
	TypeLog         Type = "log"
	TypeError       Type = "error"
)

const (
	SourceSystem = "system"
	SourceStdout = "stdout"
	SourceStderr = "stderr"
)

// Event represents a single lifecycle or log notification.
type Event struct {
	Timestamp time.Time
	Worker    string
	Pid       int
	Type      Type
	Message   string
	Level     string
	Source    string
	Err       error
	RestartID string
}

// Send delivers an event to the sink, tolerating a nil channel so
// components can run without observability wired up (tests mostly).
func Send(events chan<- Event, worker string, t Type, message string, err error) {
	if events == nil {
		return
	}
	level := "info"
	if err != nil || t == TypeError {
		level = "error"
	}
	events <- Event{
		Timestamp: time.Now(),
		Worker:    worker,
		Type:      t,
		Message:   message,
		Level:     level,
		Source:    SourceSystem,
		Err:       err,
	}
}
