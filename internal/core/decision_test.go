package core

import "testing"

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantOutcome Outcome
		wantItems   int
	}{
		{
			name:        "plain approval",
			text:        "This looks solid. Approved.",
			wantOutcome: OutcomeApproved,
		},
		{
			name:        "lgtm",
			text:        "LGTM, nice work on the error handling.",
			wantOutcome: OutcomeApproved,
		},
		{
			name:        "ship it",
			text:        "Ship it!",
			wantOutcome: OutcomeApproved,
		},
		{
			name:        "negated approval wins over approval keyword",
			text:        "I cannot approve this yet, the tests are missing.",
			wantOutcome: OutcomeChangesRequested,
		},
		{
			name:        "not approved",
			text:        "Not approved. The migration is missing a rollback path.",
			wantOutcome: OutcomeChangesRequested,
		},
		{
			name:        "explicit changes request",
			text:        "Requesting changes: please fix the nil check in the handler.",
			wantOutcome: OutcomeChangesRequested,
		},
		{
			name: "changes with bulleted action items",
			text: "This needs changes before it can go in:\n" +
				"- add a test for the empty-input case\n" +
				"- rename the exported helper\n" +
				"- handle the timeout error explicitly\n",
			wantOutcome: OutcomeChangesRequested,
			wantItems:   3,
		},
		{
			name: "numbered action items",
			text: "Please fix the following:\n1. validate the prefix\n2) return a wrapped error",
			wantOutcome: OutcomeChangesRequested,
			wantItems:   2,
		},
		{
			name:        "ambiguous response",
			text:        "Interesting approach. Have you considered batching the writes?",
			wantOutcome: OutcomeNeedsDiscussion,
		},
		{
			name:        "empty response",
			text:        "",
			wantOutcome: OutcomeNeedsDiscussion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseDecision(tt.text)
			if got.Outcome != tt.wantOutcome {
				t.Errorf("outcome = %s, want %s", got.Outcome, tt.wantOutcome)
			}
			if len(got.ActionItems) != tt.wantItems {
				t.Errorf("action items = %d (%v), want %d", len(got.ActionItems), got.ActionItems, tt.wantItems)
			}
		})
	}
}

func TestParseDecision_Confidence(t *testing.T) {
	clean := ParseDecision("Approved, merge when ready.")
	if clean.Confidence < 0.8 {
		t.Errorf("clean approval confidence = %v, want >= 0.8", clean.Confidence)
	}

	murky := ParseDecision("The helper looks good but I can't approve the config change.")
	if murky.Outcome != OutcomeChangesRequested {
		t.Fatalf("outcome = %s, want changes_requested", murky.Outcome)
	}
	if murky.Confidence >= clean.Confidence {
		t.Errorf("mixed-signal confidence %v should be below clean %v", murky.Confidence, clean.Confidence)
	}

	vague := ParseDecision("Hmm.")
	if vague.Confidence >= 0.5 {
		t.Errorf("ambiguous confidence = %v, want < 0.5", vague.Confidence)
	}
}
