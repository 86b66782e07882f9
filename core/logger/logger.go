// Package logger is a standardized event logging framework for the kernel.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"time"
)

// Event is one loggable occurrence. Implementations are plain structs;
// EventType tags the JSON record so logs can be read back generically.
type Event interface {
	EventType() string
}

// Entry is one serialized log record.
type Entry struct {
	TimestampMicros int64  `json:"timestamp_micros"`
	SessionID       string `json:"session_id,omitempty"`
	Type            string `json:"type"`

	Event json.RawMessage `json:"event"`
}

// Decode unmarshals the entry's payload into the event struct matching
// its type tag, or returns nil for unknown types.
func (e *Entry) Decode() Event {
	var out Event
	switch e.Type {
	case "execute":
		out = &Execute{}
	case "result":
		out = &Result{}
	case "tool_call":
		out = &ToolCall{}
	case "unknown_command":
		out = &UnknownCommand{}
	case "parse_error":
		out = &ParseError{}
	case "job_started":
		out = &JobStarted{}
	case "job_finished":
		out = &JobFinished{}
	case "mount_change":
		out = &MountChange{}
	case "rpc_request":
		out = &RPCRequest{}
	case "panic":
		out = &Panic{}
	default:
		return nil
	}
	if err := json.Unmarshal(e.Event, out); err != nil {
		return nil
	}
	return out
}

// Execute records one top-level input handed to the kernel.
type Execute struct {
	Input string `json:"input"`
}

func (*Execute) EventType() string { return "execute" }

// Result records the outcome of one top-level execution.
type Result struct {
	Code       int     `json:"code"`
	Ok         bool    `json:"ok"`
	Error      string  `json:"error,omitempty"`
	DurationMS float64 `json:"duration_ms,omitempty"`
}

func (*Result) EventType() string { return "result" }

// ToolCall records one resolved tool dispatch.
type ToolCall struct {
	Tool   string `json:"tool"`
	Source string `json:"source"`
}

func (*ToolCall) EventType() string { return "tool_call" }

// UnknownCommand records a name that failed resolution.
type UnknownCommand struct {
	Name string `json:"name"`
}

func (*UnknownCommand) EventType() string { return "unknown_command" }

// ParseError records rejected input.
type ParseError struct {
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func (*ParseError) EventType() string { return "parse_error" }

// JobStarted records a background job launch.
type JobStarted struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

func (*JobStarted) EventType() string { return "job_started" }

// JobFinished records a background job's completion.
type JobFinished struct {
	ID     int    `json:"id"`
	Status string `json:"status"`
	Code   int    `json:"code"`
}

func (*JobFinished) EventType() string { return "job_finished" }

// MountChange records a mount or unmount.
type MountChange struct {
	Action string `json:"action"`
	Path   string `json:"path"`
	Type   string `json:"type,omitempty"`
}

func (*MountChange) EventType() string { return "mount_change" }

// RPCRequest records one serve-mode request.
type RPCRequest struct {
	Method string `json:"method"`
	ID     string `json:"id,omitempty"`
}

func (*RPCRequest) EventType() string { return "rpc_request" }

// Panic records a recovered panic.
type Panic struct {
	Context    string `json:"context"`
	Stacktrace string `json:"stacktrace"`
}

func (*Panic) EventType() string { return "panic" }

// Recorder stores entries in an external datastore.
type Recorder func(e *Entry) error

// Logger captures kernel events.
type Logger struct {
	Record Recorder
}

// NewJSONLinesRecorder creates a Logger that exports logs in newline
// delimited JSON object format.
func NewJSONLinesRecorder(w io.Writer) *Logger {
	return &Logger{
		Record: func(e *Entry) error {
			entry, err := json.Marshal(e)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(w, string(entry))
			return err
		},
	}
}

// Discard returns a Logger that drops everything.
func Discard() *Logger {
	return &Logger{Record: func(*Entry) error { return nil }}
}

func (l *Logger) record(sessionID string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return l.Record(&Entry{
		TimestampMicros: time.Now().UnixNano() / int64(time.Microsecond),
		SessionID:       sessionID,
		Type:            event.EventType(),
		Event:           payload,
	})
}

// NewSession creates a logger with an attached random session ID.
func (l *Logger) NewSession() *SessionLogger {
	return &SessionLogger{logger: l, sessionID: fmt.Sprintf("%d", rand.Uint64())}
}

// Session creates a logger with a fixed session ID.
func (l *Logger) Session(id string) *SessionLogger {
	return &SessionLogger{logger: l, sessionID: id}
}

// SessionLogger logs events with a shared session ID.
type SessionLogger struct {
	logger    *Logger
	sessionID string
}

// SessionID returns the attached session ID.
func (l *SessionLogger) SessionID() string { return l.sessionID }

// Record logs one event under the session.
func (l *SessionLogger) Record(event Event) error {
	return l.logger.record(l.sessionID, event)
}
