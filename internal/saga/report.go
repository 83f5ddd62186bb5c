package saga

import (
	"fmt"
	"strings"
)

// Report is what the triggering caller receives: one line per step that ran,
// plus remediation items for whatever needs a human.
type Report struct {
	Trigger  TriggerKind `json:"trigger"`
	Outcomes []Outcome   `json:"outcomes"`
	// Aborted is set when a required step failed; outcomes stop at that step.
	Aborted bool `json:"aborted"`
}

// FullyAutomated reports whether every executed step succeeded or was
// deliberately skipped.
func (r *Report) FullyAutomated() bool {
	if r.Aborted {
		return false
	}
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			return false
		}
	}
	return true
}

// Remediations lists the manual follow-ups recorded by failed optional steps,
// in execution order.
func (r *Report) Remediations() []string {
	var items []string
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed && o.Remediation != "" {
			items = append(items, o.Remediation)
		}
	}
	return items
}

// Render formats the report as chat-flavored markdown.
func (r *Report) Render() string {
	var b strings.Builder
	for _, o := range r.Outcomes {
		mark := ":white_check_mark:"
		switch o.Status {
		case StatusFailed:
			mark = ":x:"
		case StatusSkipped:
			mark = ":fast_forward:"
		}
		fmt.Fprintf(&b, "%s **%s**", mark, o.Step)
		if o.Detail != "" {
			fmt.Fprintf(&b, ": %s", o.Detail)
		}
		b.WriteString("\n")
	}
	if r.Aborted {
		b.WriteString("\n:rotating_light: Provisioning aborted; no further steps were attempted.\n")
	}
	if items := r.Remediations(); len(items) > 0 {
		b.WriteString("\n**Manual follow-up needed:**\n")
		for _, item := range items {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	return b.String()
}
