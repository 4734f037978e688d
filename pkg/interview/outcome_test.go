package interview

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interviewd/pkg/llm"
)

func TestParseOutcomeExplicitScore(t *testing.T) {
	out := ParseOutcome("Strong performance overall. Score: 87/100. "+llm.EndMarker, 5)
	require.NotNil(t, out.Score)
	assert.Equal(t, 87.0, *out.Score)
	assert.NotContains(t, out.Feedback, llm.EndMarker)
	assert.False(t, out.Err)
}

func TestParseOutcomeScoreVariants(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"slash hundred", "You scored 72/100 today.", 72},
		{"out of 100", "I would rate this 64 out of 100.", 64},
		{"percent", "Overall: 91%.", 91},
		{"shouted", "Final score: 85 OUT OF 100.", 85},
		{"bare number", "A solid 78 given your depth of answers.", 78},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ParseOutcome(tt.text, 3)
			require.NotNil(t, out.Score)
			assert.Equal(t, tt.want, *out.Score)
		})
	}
}

func TestParseOutcomeExplicitWinsOverBareNumber(t *testing.T) {
	// The leading "3" must not shadow the explicit score.
	out := ParseOutcome("After 3 answers I rate you 85/100.", 3)
	require.NotNil(t, out.Score)
	assert.Equal(t, 85.0, *out.Score)
}

func TestParseOutcomeFallbackScore(t *testing.T) {
	out := ParseOutcome("Good effort, keep practicing your delivery.", 4)
	require.NotNil(t, out.Score)
	assert.Equal(t, 78.0, *out.Score, "70 base plus 2 per answer")

	capped := ParseOutcome("No numbers here at all.", 50)
	require.NotNil(t, capped.Score)
	assert.Equal(t, 95.0, *capped.Score, "fallback is capped")
}

func TestParseOutcomeRejectsOutOfRangeNumbers(t *testing.T) {
	// 250 is not a plausible score; fall back instead.
	out := ParseOutcome("You mentioned 250 microservices.", 2)
	require.NotNil(t, out.Score)
	assert.Equal(t, 74.0, *out.Score)
}

func TestParseOutcomeSummary(t *testing.T) {
	out := ParseOutcome("Excellent communication skills. You were clear and structured.\nMore detail follows here.", 2)
	assert.Equal(t, "Excellent communication skills.", out.Summary)
}

func TestStripEndMarker(t *testing.T) {
	assert.Equal(t, "Done.", StripEndMarker("Done. "+llm.EndMarker))
	assert.Equal(t, "Untouched.", StripEndMarker("Untouched."))
	assert.True(t, HasEndMarker("blah "+llm.EndMarker+" blah"))
	assert.False(t, HasEndMarker("keep going"))

	// Models occasionally lower-case the marker.
	lowered := strings.ToLower(llm.EndMarker)
	assert.True(t, HasEndMarker("that wraps it up. "+lowered))
	assert.Equal(t, "That wraps it up.", StripEndMarker("That wraps it up. "+lowered))
}
