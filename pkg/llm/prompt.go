package llm

import (
	"interviewd/pkg/proto"
)

// EndMarker is the token the model emits to signal that the interview should
// finish. Responses containing it are treated as final feedback.
const EndMarker = "INTERVIEW_END"

// systemPrompt defines the interviewer's persona and behavior. It is shared
// across providers so a mid-interview failover keeps the same voice.
const systemPrompt = `You are a senior corporate HR interviewer conducting a structured interview. Your role is to:

1. Ask one question at a time
2. Wait for the candidate's response before asking the next question
3. Adapt your next question based on the candidate's previous answer
4. Be concise, professional, and realistic
5. Ask relevant follow-up questions when appropriate
6. Maintain a professional but friendly tone
7. When you feel the interview is complete (typically after 5-8 questions), provide a comprehensive feedback summary including:
   - Overall assessment
   - Strengths observed
   - Areas for improvement
   - A numerical score out of 100
   - End with "` + EndMarker + `" to signal completion

Start by greeting the candidate warmly and asking the first question.`

// feedbackPrompt forces final feedback when the configured cycle budget or an
// explicit end request finishes the interview before the model does.
const feedbackPrompt = `The interview is now over. Do not ask any further questions. Provide your comprehensive feedback summary for the candidate: overall assessment, strengths observed, areas for improvement, and a numerical score out of 100 (format: "Score: N/100"). End with "` + EndMarker + `".`

// BuildMessages converts the full turn history into a completion request
// message list. The entire history is always included so questions stay
// grounded in every prior answer, not just the latest one.
func BuildMessages(turns []proto.Turn, mode Mode) []CompletionMessage {
	messages := make([]CompletionMessage, 0, len(turns)+2)
	messages = append(messages, NewSystemMessage(systemPrompt))

	for i := range turns {
		turn := &turns[i]
		role := RoleUser
		if turn.Role == proto.RoleInterviewer {
			role = RoleAssistant
		}
		messages = append(messages, CompletionMessage{Role: role, Content: turn.Text})
	}

	if mode == ModeFeedback {
		messages = append(messages, NewUserMessage(feedbackPrompt))
	}

	return messages
}
