package saga

import "context"

// Class determines how a step's failure affects the saga.
type Class string

const (
	// Required steps abort the saga on failure; nothing after them runs.
	Required Class = "required"
	// Optional steps record a remediation item on failure and the saga
	// continues.
	Optional Class = "optional"
)

// Status is the terminal state of one step execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Step is a single idempotent operation within a saga. Run must be safe to
// re-invoke with the same logical input: create-if-absent, never blind
// creation.
type Step struct {
	Name   string
	System string
	Class  Class

	// Skip, when set, short-circuits the step. The returned detail explains
	// why it did not run.
	Skip func(sc *Context) (bool, string)

	// Run performs the operation and returns a human-readable detail line.
	Run func(ctx context.Context, sc *Context) (string, error)

	// Remediation renders the manual follow-up instructions attached when an
	// optional step fails. It receives the context so the text can carry the
	// concrete identifiers an operator needs.
	Remediation func(sc *Context) string
}

// Outcome records how one step ended. Outcomes are ephemeral: they live only
// inside the report returned to the triggering caller.
type Outcome struct {
	Step        string `json:"step"`
	System      string `json:"system"`
	Class       Class  `json:"class"`
	Status      Status `json:"status"`
	Detail      string `json:"detail,omitempty"`
	Remediation string `json:"remediation,omitempty"`
}
