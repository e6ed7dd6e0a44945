package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stephen-chu/insurance-claims-triage/pkg/domain"
	"github.com/stephen-chu/insurance-claims-triage/pkg/review"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, out *bytes.Buffer) []map[string]any {
	t.Helper()
	var events []map[string]any
	sc := bufio.NewScanner(out)
	for sc.Scan() {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		events = append(events, ev)
	}
	return events
}

func TestJSONReviewer_Approve(t *testing.T) {
	out := &bytes.Buffer{}
	rv := NewJSONReviewer(strings.NewReader(`{"action":"approve","reviewer":"bot-1","comment":"ok"}`+"\n"), out)

	action, err := rv.Review(context.Background(), pendingSession())
	require.NoError(t, err)
	assert.Equal(t, domain.ActionApprove, action.Kind())
	assert.Equal(t, domain.ReviewMeta{Reviewer: "bot-1", Comment: "ok"}, action.Meta())

	events := decodeLines(t, out)
	require.Len(t, events, 1)
	assert.Equal(t, EventReview, events[0]["type"])
	session := events[0]["session"].(map[string]any)
	assert.Equal(t, "s-1", session["session_id"])
}

func TestJSONReviewer_Edit(t *testing.T) {
	in := "\n" + `{"action":"edit","fields":{"outcome":"deny","reason":"lapsed policy"}}` + "\n"
	rv := NewJSONReviewer(strings.NewReader(in), io.Discard)

	action, err := rv.Review(context.Background(), pendingSession())
	require.NoError(t, err)
	edit := action.(domain.Edit)
	assert.Equal(t, "deny", *edit.Fields.Outcome)
	assert.Equal(t, "lapsed policy", *edit.Fields.Reason)
}

func TestJSONReviewer_InvalidResponses(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"malformed json", `{"action":`},
		{"unknown action", `{"action":"escalate"}`},
		{"unknown edit field", `{"action":"edit","fields":{"outcome":"DENY","priority":"high"}}`},
		{"edit without outcome", `{"action":"edit","fields":{"reason":"x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rv := NewJSONReviewer(strings.NewReader(tt.line+"\n"), io.Discard)
			_, err := rv.Review(context.Background(), pendingSession())
			assert.ErrorIs(t, err, domain.ErrInvalidAction)
		})
	}
}

func TestJSONReviewer_EOF(t *testing.T) {
	rv := NewJSONReviewer(strings.NewReader(""), io.Discard)
	_, err := rv.Review(context.Background(), pendingSession())
	assert.ErrorIs(t, err, io.EOF)
}

func TestJSONReviewer_ReportAndSystem(t *testing.T) {
	out := &bytes.Buffer{}
	rv := NewJSONReviewer(strings.NewReader(""), out)
	ctx := context.Background()

	require.NoError(t, rv.Report(ctx, review.Outcome{
		SessionID:  "s-1",
		ClaimID:    "CLM-1",
		Action:     domain.ActionReject,
		Resolution: domain.ResolutionRejected,
	}))
	require.NoError(t, rv.SystemOutput(ctx, "queue empty"))

	events := decodeLines(t, out)
	require.Len(t, events, 2)
	assert.Equal(t, EventOutcome, events[0]["type"])
	assert.Equal(t, "rejected", events[0]["resolution"])
	assert.NotContains(t, events[0], "decision")
	assert.Equal(t, EventSystem, events[1]["type"])
	assert.Equal(t, "queue empty", events[1]["message"])
}
