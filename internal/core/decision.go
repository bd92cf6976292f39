package core

import (
	"regexp"
	"strings"
)

// Outcome classifies a reviewer response.
type Outcome string

const (
	OutcomeApproved         Outcome = "approved"
	OutcomeChangesRequested Outcome = "changes_requested"
	// OutcomeNeedsDiscussion is the conservative default when the response
	// cannot be confidently classified either way.
	OutcomeNeedsDiscussion Outcome = "needs_discussion"
	// OutcomeStillRunning marks a consultation that timed out while the
	// underlying session keeps running. It is distinct from failure.
	OutcomeStillRunning Outcome = "still_running"
)

// Decision is the heuristic classification of a free-text reviewer
// response. This is best-effort by design: the reviewer writes prose, not a
// protocol, so Confidence reports how unambiguous the match was.
type Decision struct {
	Outcome     Outcome
	ActionItems []string
	Confidence  float64
}

var (
	approvalPattern = regexp.MustCompile(`(?i)\b(approved?|lgtm|looks good( to me)?|ship it|go ahead)\b`)
	negationPattern = regexp.MustCompile(`(?i)\b(not?|cannot|can't|don'?t|won'?t|isn'?t|unable to)\s+(be\s+)?approve`)
	changesPattern  = regexp.MustCompile(`(?i)\b(needs? (some )?changes?|request(ing|ed)? changes?|please (fix|revise|rework|address)|changes? (are )?(required|needed))\b`)
)

// ParseDecision classifies a reviewer response. Precedence, in order: an
// explicit negation of approval or a changes-requested marker beats a bare
// approval match; a bare approval with neither present wins; anything else
// is needs_discussion.
func ParseDecision(text string) Decision {
	approved := approvalPattern.MatchString(text)
	negated := negationPattern.MatchString(text)
	changes := changesPattern.MatchString(text)

	items := extractActionItems(text)

	switch {
	case negated, changes:
		confidence := 0.9
		if approved {
			// Both matched; the explicit negative marker wins but the
			// response is murkier than a clean rejection.
			confidence = 0.6
		}
		return Decision{Outcome: OutcomeChangesRequested, ActionItems: items, Confidence: confidence}
	case approved:
		return Decision{Outcome: OutcomeApproved, ActionItems: items, Confidence: 0.9}
	default:
		return Decision{Outcome: OutcomeNeedsDiscussion, ActionItems: items, Confidence: 0.3}
	}
}

var bulletPattern = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)

// extractActionItems pulls bulleted or numbered lines out of the response.
func extractActionItems(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		if m := bulletPattern.FindStringSubmatch(line); m != nil {
			item := strings.TrimSpace(m[1])
			if item != "" {
				items = append(items, item)
			}
		}
	}
	return items
}
