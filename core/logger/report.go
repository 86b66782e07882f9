package logger

import (
	"encoding/json"
	"io"
	"sort"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(e *Entry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var entry Entry
		if err := decoder.Decode(&entry); err != nil {
			return err
		}
		handler(&entry)
	}
	return nil
}

// UsageReport aggregates a session log into counts useful for debugging
// which commands a kernel actually ran and where they failed.
type UsageReport struct {
	Entries         int            `json:"entries"`
	ToolCalls       map[string]int `json:"tool_calls,omitempty"`
	UnknownCommands map[string]int `json:"unknown_commands,omitempty"`
	ParseErrors     []string       `json:"parse_errors,omitempty"`
	Failures        int            `json:"failures"`
	Panics          []*Panic       `json:"panics,omitempty"`
}

// NewUsageReport returns an empty report.
func NewUsageReport() *UsageReport {
	return &UsageReport{
		ToolCalls:       map[string]int{},
		UnknownCommands: map[string]int{},
	}
}

// Update folds one entry into the report.
func (r *UsageReport) Update(e *Entry) {
	r.Entries++

	switch event := e.Decode().(type) {
	case *ToolCall:
		r.ToolCalls[event.Tool]++
	case *UnknownCommand:
		r.UnknownCommands[event.Name]++
	case *ParseError:
		r.ParseErrors = append(r.ParseErrors, event.Message)
	case *Result:
		if !event.Ok {
			r.Failures++
		}
	case *Panic:
		r.Panics = append(r.Panics, event)
	}
}

// TopTools returns tool names by descending call count.
func (r *UsageReport) TopTools() []string {
	names := make([]string, 0, len(r.ToolCalls))
	for name := range r.ToolCalls {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if r.ToolCalls[names[i]] != r.ToolCalls[names[j]] {
			return r.ToolCalls[names[i]] > r.ToolCalls[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}
