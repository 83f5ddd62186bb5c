package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crewdeckhq/crewdeck/internal/saga"
)

func TestDecodeTrigger(t *testing.T) {
	tests := []struct {
		name string
		body string
		want saga.Trigger
	}{
		{
			name: "approve onboarding",
			body: `{"kind":"approve_onboarding","payload":{"request_id":"req-1","reviewer":"ops#1"}}`,
			want: saga.ApproveOnboarding{RequestID: "req-1", Reviewer: "ops#1"},
		},
		{
			name: "create team",
			body: `{"kind":"create_team","payload":{"name":"Platform","color":"#ff8800","lead_identity":"lead#7"}}`,
			want: saga.CreateTeam{Name: "Platform", Color: "#ff8800", LeadIdentity: "lead#7"},
		},
		{
			name: "add member",
			body: `{"kind":"add_member_to_team","payload":{"team_id":"t1","member_id":"m1","promote_to_lead":true}}`,
			want: saga.AddMemberToTeam{TeamID: "t1", MemberID: "m1", PromoteToLead: true},
		},
		{
			name: "promote to lead",
			body: `{"kind":"promote_to_lead","payload":{"team_id":"t1","member_id":"m1"}}`,
			want: saga.PromoteToLead{TeamID: "t1", MemberID: "m1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := DecodeTrigger([]byte(tt.body))
			require.NoError(t, err)
			require.Equal(t, tt.want, trigger)
		})
	}
}

func TestDecodeTriggerRejectsGarbage(t *testing.T) {
	_, err := DecodeTrigger([]byte(`not json`))
	require.Error(t, err)

	_, err = DecodeTrigger([]byte(`{"kind":"reboot_everything","payload":{}}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown trigger kind")
}

func TestEnvelopeRoundTrip(t *testing.T) {
	payload, err := json.Marshal(saga.CreateTeam{Name: "Support"})
	require.NoError(t, err)
	body, err := json.Marshal(Envelope{Kind: saga.KindCreateTeam, Payload: payload})
	require.NoError(t, err)

	trigger, err := DecodeTrigger(body)
	require.NoError(t, err)
	require.Equal(t, saga.KindCreateTeam, trigger.Kind())
}
