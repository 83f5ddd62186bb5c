package saga

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReportFullyAutomated(t *testing.T) {
	report := &Report{
		Trigger: KindCreateTeam,
		Outcomes: []Outcome{
			{Step: "team.create", Status: StatusSuccess},
			{Step: "team.assign_lead", Status: StatusSkipped, Detail: "no lead requested"},
		},
	}
	require.True(t, report.FullyAutomated())
	require.Empty(t, report.Remediations())

	report.Outcomes = append(report.Outcomes, Outcome{
		Step:        "team.doc_folder",
		Status:      StatusFailed,
		Remediation: "Create the folder by hand.",
	})
	require.False(t, report.FullyAutomated())
	require.Equal(t, []string{"Create the folder by hand."}, report.Remediations())
}

func TestReportRender(t *testing.T) {
	report := &Report{
		Trigger: KindApproveOnboarding,
		Outcomes: []Outcome{
			{Step: "member.create", Status: StatusSuccess, Detail: "member record created"},
			{Step: "member.profile_doc", Status: StatusFailed, Detail: "docs: permission denied", Remediation: "Create the doc."},
			{Step: "member.roster_row", Status: StatusSkipped, Detail: "no roster sheet configured"},
		},
	}

	out := report.Render()
	require.Contains(t, out, ":white_check_mark: **member.create**: member record created")
	require.Contains(t, out, ":x: **member.profile_doc**")
	require.Contains(t, out, ":fast_forward: **member.roster_row**")
	require.Contains(t, out, "Manual follow-up needed")
	require.Contains(t, out, "- Create the doc.")
	require.NotContains(t, out, "aborted")

	report.Aborted = true
	require.Contains(t, report.Render(), "no further steps were attempted")
}
