package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionProposalJSON(t *testing.T) {
	t.Run("safe default encodes nulls", func(t *testing.T) {
		b, err := json.Marshal(SafeDefault())
		require.NoError(t, err)
		assert.JSONEq(t, `{
			"shouldRespond": false,
			"replyText": "",
			"actionKind": null,
			"sessionDrafts": null,
			"milestoneDrafts": null,
			"confirmed": false
		}`, string(b))
	})

	t.Run("milestone proposal decodes", func(t *testing.T) {
		var p ActionProposal
		require.NoError(t, json.Unmarshal([]byte(`{
			"shouldRespond": true,
			"replyText": "Want me to add this?",
			"actionKind": "create_milestones",
			"sessionDrafts": [],
			"milestoneDrafts": [{"title": "Finish Ch.5", "description": "exercises", "dueDate": "2025-03-01"}]
		}`), &p))

		assert.Equal(t, ActionCreateMilestones, p.Kind)
		assert.Nil(t, p.SessionDrafts, "empty inactive list is normalized to null")
		require.Len(t, p.MilestoneDrafts, 1)
		assert.Equal(t, "2025-03-01", p.MilestoneDrafts[0].DueDate.String())
		assert.False(t, p.Confirmed)
		assert.Equal(t, 1, p.DraftCount())
	})

	t.Run("drafts without a kind are rejected", func(t *testing.T) {
		var p ActionProposal
		err := json.Unmarshal([]byte(`{
			"shouldRespond": true,
			"replyText": "x",
			"actionKind": null,
			"milestoneDrafts": [{"title": "t"}]
		}`), &p)
		assert.Error(t, err)
	})

	t.Run("kind without drafts is rejected", func(t *testing.T) {
		var p ActionProposal
		err := json.Unmarshal([]byte(`{"shouldRespond": true, "actionKind": "schedule_sessions", "sessionDrafts": null}`), &p)
		assert.Error(t, err)
	})

	t.Run("unknown kind is rejected", func(t *testing.T) {
		var p ActionProposal
		err := json.Unmarshal([]byte(`{"shouldRespond": true, "actionKind": "send_email"}`), &p)
		assert.Error(t, err)
	})
}

func TestSessionDraftEnd(t *testing.T) {
	start := time.Date(2025, 3, 4, 18, 0, 0, 0, time.UTC)

	assert.Equal(t, start.Add(time.Hour), SessionDraft{When: start}.End())

	end := start.Add(90 * time.Minute)
	assert.Equal(t, end, SessionDraft{When: start, EndsAt: &end}.End())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2025, time.March, 1), d)

	d, err = ParseDate("2025-03-01T23:30:00+09:00")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", d.String(), "calendar day is taken in the timestamp's own offset")

	_, err = ParseDate("next friday")
	assert.Error(t, err)
}

func TestParseActionKind(t *testing.T) {
	k, err := ParseActionKind("schedule_sessions")
	require.NoError(t, err)
	assert.Equal(t, ActionScheduleSessions, k)

	_, err = ParseActionKind("")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
