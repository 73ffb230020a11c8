package harness

import "github.com/roach88/edgeid/internal/identity"

// TraceEvent is one event dispatched through the hub.
type TraceEvent struct {
	Seq        int64          `json:"seq"`
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Source     string         `json:"source"`
	ResponseID string         `json:"response_id,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion holds.
	Pass bool `json:"pass"`

	// Trace contains every dispatched event in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	// Published contains the engine's XDM snapshots, oldest first.
	Published []map[string]any `json:"published"`

	// Persisted is the stored identity record, nil if nothing is stored.
	Persisted map[string]any `json:"persisted,omitempty"`

	// Booted reports the engine's boot latch after the last step.
	Booted bool `json:"booted"`

	// State is the engine's final identity properties.
	State *identity.Properties `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Published: []map[string]any{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
