package persistence

import (
	"database/sql"
	"time"

	"interviewd/pkg/proto"
)

type turnRow struct {
	role      string
	text      string
	createdAt time.Time
}

func (t turnRow) toProto() proto.Turn {
	return proto.Turn{
		Role:      proto.Role(t.role),
		Text:      t.text,
		Timestamp: t.createdAt,
	}
}

func stateFromString(s string) proto.State {
	return proto.State(s)
}

func outcomeFromRow(feedback, summary string, score sql.NullFloat64, isErr bool) proto.Outcome {
	outcome := proto.Outcome{
		Feedback: feedback,
		Summary:  summary,
		Err:      isErr,
	}
	if score.Valid {
		v := score.Float64
		outcome.Score = &v
	}
	return outcome
}
