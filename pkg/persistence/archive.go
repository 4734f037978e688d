package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"interviewd/pkg/logx"
	"interviewd/pkg/session"
)

// Archive writes finished interviews to SQLite. It implements
// session.Archiver; the registry calls it once per session, at eviction.
type Archive struct {
	db     *sql.DB
	logger *logx.Logger
}

// NewArchive opens (or creates) the archive database at dbPath.
func NewArchive(dbPath string) (*Archive, error) {
	db, err := InitializeDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	return &Archive{db: db, logger: logx.NewLogger("archive")}, nil
}

// Close releases the database handle.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Archive persists one session snapshot, transcript included. Writing is
// transactional: either the interview row and all its turns land, or nothing
// does. Re-archiving the same id replaces the previous record.
func (a *Archive) Archive(ctx context.Context, snap session.Snapshot) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		score    sql.NullFloat64
		feedback string
		summary  string
		isErr    bool
	)
	if snap.Outcome != nil {
		feedback = snap.Outcome.Feedback
		summary = snap.Outcome.Summary
		isErr = snap.Outcome.Err
		if snap.Outcome.Score != nil {
			score = sql.NullFloat64{Float64: *snap.Outcome.Score, Valid: true}
		}
	}

	var endedAt sql.NullTime
	if !snap.EndedAt.IsZero() {
		endedAt = sql.NullTime{Time: snap.EndedAt, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO interviews
			(id, state, provider, feedback, score, summary, error, created_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, string(snap.State), snap.Provider, feedback, score, summary, isErr,
		snap.CreatedAt, endedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert interview %s: %w", snap.ID, err)
	}

	// INSERT OR REPLACE on the parent does not clear child rows; do it
	// explicitly so a re-archive cannot leave stale turns behind.
	if _, err := tx.ExecContext(ctx, `DELETE FROM turns WHERE interview_id = ?`, snap.ID); err != nil {
		return fmt.Errorf("failed to clear turns for %s: %w", snap.ID, err)
	}

	for i, turn := range snap.Turns {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO turns (interview_id, seq, role, text, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			snap.ID, i, string(turn.Role), turn.Text, turn.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to insert turn %d for %s: %w", i, snap.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive of %s: %w", snap.ID, err)
	}
	a.logger.Debug("archived interview %s (%d turns)", snap.ID, len(snap.Turns))
	return nil
}

// Load reads an archived interview back, turns in order. Returns sql.ErrNoRows
// if the id was never archived.
func (a *Archive) Load(ctx context.Context, id string) (session.Snapshot, error) {
	var (
		snap     session.Snapshot
		state    string
		feedback string
		summary  string
		score    sql.NullFloat64
		isErr    bool
		endedAt  sql.NullTime
	)
	err := a.db.QueryRowContext(ctx, `
		SELECT id, state, provider, feedback, score, summary, error, created_at, ended_at
		FROM interviews WHERE id = ?`, id,
	).Scan(&snap.ID, &state, &snap.Provider, &feedback, &score, &summary, &isErr, &snap.CreatedAt, &endedAt)
	if err != nil {
		return session.Snapshot{}, err
	}
	snap.State = stateFromString(state)
	if endedAt.Valid {
		snap.EndedAt = endedAt.Time
	}
	if feedback != "" || summary != "" || score.Valid || isErr {
		outcome := outcomeFromRow(feedback, summary, score, isErr)
		snap.Outcome = &outcome
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT role, text, created_at FROM turns
		WHERE interview_id = ? ORDER BY seq`, id)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("failed to load turns for %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var turn turnRow
		if err := rows.Scan(&turn.role, &turn.text, &turn.createdAt); err != nil {
			return session.Snapshot{}, fmt.Errorf("failed to scan turn for %s: %w", id, err)
		}
		snap.Turns = append(snap.Turns, turn.toProto())
	}
	if err := rows.Err(); err != nil {
		return session.Snapshot{}, err
	}
	return snap, nil
}

// Count returns the number of archived interviews.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interviews`).Scan(&n)
	return n, err
}
