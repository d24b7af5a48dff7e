package harness

import (
	"fmt"
	"strings"
)

// TraceEvent is one request the server answered.
type TraceEvent struct {
	Seq      int    `json:"seq"`
	Method   string `json:"method"`
	Path     string `json:"path"`
	Status   int    `json:"status"`
	Replayed bool   `json:"replayed,omitempty"`
}

// String renders the event as "METHOD PATH STATUS".
func (e TraceEvent) String() string {
	return fmt.Sprintf("%s %s %d", e.Method, e.Path, e.Status)
}

// matches reports whether the event matches a request pattern. A pattern
// without a status matches any status.
func (e TraceEvent) matches(pattern string) bool {
	line := e.String()
	return line == pattern || strings.HasPrefix(line, pattern+" ")
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace lists the requests the server received, with captured record
	// ids replaced by their scenario names.
	Trace []TraceEvent `json:"trace"`

	Errors []string `json:"errors,omitempty"`

	// Captures maps scenario names to the local ids they were given.
	Captures map[string]string `json:"captures,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Captures: make(map[string]string),
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// TraceText renders the trace one request per line.
func (r *Result) TraceText() string {
	var b strings.Builder
	for _, e := range r.Trace {
		fmt.Fprintf(&b, "%d %s", e.Seq, e)
		if e.Replayed {
			b.WriteString(" replayed")
		}
		b.WriteByte('\n')
	}
	return b.String()
}
