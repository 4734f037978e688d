// Package interview drives the question/answer loop for one session.
package interview

import (
	"regexp"
	"strconv"
	"strings"

	"interviewd/pkg/llm"
	"interviewd/pkg/proto"
)

// Feedback text is free-form model output; scores are pulled out by pattern,
// tolerating whatever casing the model chose. An explicit "out of 100" style
// mention wins over a bare number.
var (
	explicitScoreRe = regexp.MustCompile(`(?i)(\d+)\s*(?:out of 100|/100|%)`)
	bareNumberRe    = regexp.MustCompile(`\b(\d{1,3})\b`)
	endMarkerRe     = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(llm.EndMarker))
)

// ParseOutcome turns raw feedback text into a terminal outcome. The
// completion marker is stripped from the feedback; candidateTurns feeds the
// fallback score when the model did not state one.
func ParseOutcome(raw string, candidateTurns int) proto.Outcome {
	feedback := StripEndMarker(raw)
	score := extractScore(feedback)
	if score == nil {
		fallback := fallbackScore(candidateTurns)
		score = &fallback
	}
	return proto.Outcome{
		Feedback: feedback,
		Score:    score,
		Summary:  summarize(feedback),
	}
}

// StripEndMarker removes the completion marker and tidies the remainder.
func StripEndMarker(text string) string {
	return strings.TrimSpace(endMarkerRe.ReplaceAllString(text, ""))
}

// HasEndMarker reports whether the model signalled the interview is over.
// Models occasionally lower-case the marker; any casing counts.
func HasEndMarker(text string) bool {
	return endMarkerRe.MatchString(text)
}

func extractScore(text string) *float64 {
	if m := explicitScoreRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v >= 0 && v <= 100 {
			return &v
		}
	}
	for _, m := range bareNumberRe.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v >= 0 && v <= 100 {
			return &v
		}
	}
	return nil
}

// fallbackScore rewards participation when no score could be parsed: 70 base
// plus 2 per completed answer, capped at 95.
func fallbackScore(candidateTurns int) float64 {
	score := 70 + 2*candidateTurns
	if score > 95 {
		score = 95
	}
	return float64(score)
}

// summarize keeps the first sentence or line of the feedback as a short
// summary, capped at 200 runes.
func summarize(feedback string) string {
	s := feedback
	if i := strings.IndexAny(s, "\n"); i > 0 {
		s = s[:i]
	}
	if i := strings.Index(s, ". "); i > 0 {
		s = s[:i+1]
	}
	runes := []rune(strings.TrimSpace(s))
	if len(runes) > 200 {
		return string(runes[:200])
	}
	return string(runes)
}
