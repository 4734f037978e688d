package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interviewd/pkg/proto"
)

func TestBuildMessagesEmptyHistory(t *testing.T) {
	msgs := BuildMessages(nil, ModeQuestion)
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, EndMarker)
}

func TestBuildMessagesRoleMapping(t *testing.T) {
	turns := []proto.Turn{
		{Role: proto.RoleInterviewer, Text: "Tell me about yourself."},
		{Role: proto.RoleCandidate, Text: "I write Go services."},
		{Role: proto.RoleInterviewer, Text: "Which one are you proudest of?"},
	}
	msgs := BuildMessages(turns, ModeQuestion)
	require.Len(t, msgs, 4)

	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Tell me about yourself.", msgs[1].Content)
	assert.Equal(t, RoleUser, msgs[2].Role)
	assert.Equal(t, RoleAssistant, msgs[3].Role)
}

func TestBuildMessagesFeedbackModeAppendsInstruction(t *testing.T) {
	turns := []proto.Turn{
		{Role: proto.RoleInterviewer, Text: "Q1?"},
		{Role: proto.RoleCandidate, Text: "A1."},
	}
	msgs := BuildMessages(turns, ModeFeedback)
	require.Len(t, msgs, 4)

	last := msgs[len(msgs)-1]
	assert.Equal(t, RoleUser, last.Role)
	assert.Contains(t, last.Content, "Do not ask any further questions")
	assert.Contains(t, last.Content, EndMarker)
}

func TestBuildMessagesIncludesFullHistory(t *testing.T) {
	var turns []proto.Turn
	for i := 0; i < 6; i++ {
		turns = append(turns,
			proto.Turn{Role: proto.RoleInterviewer, Text: "Q"},
			proto.Turn{Role: proto.RoleCandidate, Text: "A"},
		)
	}
	msgs := BuildMessages(turns, ModeQuestion)
	assert.Len(t, msgs, 13, "system prompt plus every turn, nothing truncated")
}

func TestNewCompletionRequestDefaults(t *testing.T) {
	req := NewCompletionRequest(BuildMessages(nil, ModeQuestion), ModeQuestion)
	assert.Equal(t, ModeQuestion, req.Mode)
	assert.Equal(t, 1024, req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 0.001)
}
