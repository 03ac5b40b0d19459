package model

import "strings"

// Confidence grades a match decision.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParseConfidence maps free text onto a Confidence. Unknown values are low.
func ParseConfidence(s string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Rank orders confidences: low=0, medium=1, high=2.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether c meets the threshold.
func (c Confidence) AtLeast(threshold Confidence) bool {
	return c.Rank() >= threshold.Rank()
}

// MatchDecision is the oracle's verdict. A nil Index means no candidate is
// accepted.
type MatchDecision struct {
	Index      *int       `json:"candidate_index"`
	Confidence Confidence `json:"confidence"`
	Reasoning  string     `json:"reasoning,omitempty"`
}

// NoMatch returns a decision accepting no candidate.
func NoMatch(reason string) MatchDecision {
	return MatchDecision{Confidence: ConfidenceLow, Reasoning: reason}
}

// Pick returns a decision accepting candidate idx.
func Pick(idx int, conf Confidence, reason string) MatchDecision {
	return MatchDecision{Index: &idx, Confidence: conf, Reasoning: reason}
}

// Accepted reports whether the decision selects a candidate at or above the
// threshold. A nil index behaves exactly like a low-confidence decision.
func (d MatchDecision) Accepted(threshold Confidence) bool {
	if d.Index == nil {
		return false
	}
	if threshold.Rank() == 0 {
		// A low threshold still requires an explicit pick above low.
		return d.Confidence.Rank() > 0
	}
	return d.Confidence.AtLeast(threshold)
}
