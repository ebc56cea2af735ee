package trace

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const maxSessions = 500

// ErrNotFound is returned by the Get methods for unknown ids.
var ErrNotFound = errors.New("trace: not found")

// Store persists relay traces to PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to a PostgreSQL trace database at connStr and applies migrations.
func Open(ctx context.Context, connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("trace open: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace ping: %w", err)
	}
	if err = migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.ExecContext(ctx, string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSession inserts a session and prunes the oldest beyond maxSessions.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, client_id, metadata, started_at) VALUES ($1, $2, $3, $4)`,
		sess.ID, sess.ClientID, sess.Metadata, sess.StartedAt.UTC(),
	)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id NOT IN (SELECT id FROM sessions ORDER BY started_at DESC LIMIT $1)`,
		maxSessions,
	)
	return err
}

// EndSession records when and why a session closed.
func (s *Store) EndSession(ctx context.Context, id, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = $1, end_reason = $2 WHERE id = $3`,
		time.Now().UTC(), reason, id,
	)
	return err
}

// CreateRun inserts a running response turn.
func (s *Store) CreateRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, session_id, response_id, started_at, status) VALUES ($1, $2, $3, $4, 'running')`,
		r.ID, r.SessionID, r.ResponseID, r.StartedAt.UTC(),
	)
	return err
}

// UpdateRun sets the run's final fields.
func (s *Store) UpdateRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET duration_ms = $1, text = $2, audio_bytes = $3, status = $4 WHERE id = $5`,
		r.DurationMs, r.Text, r.AudioBytes, r.Status, r.ID,
	)
	return err
}

// CreateSpan inserts a span.
func (s *Store) CreateSpan(ctx context.Context, sp Span) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO spans (id, session_id, run_id, name, started_at, duration_ms, status, error_msg)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sp.ID, sp.SessionID, sp.RunID, sp.Name, sp.StartedAt.UTC(),
		sp.DurationMs, sp.Status, sp.Error,
	)
	return err
}

// ListSessions returns sessions ordered newest first, with run counts.
func (s *Store) ListSessions(ctx context.Context, limit, offset int) ([]Session, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.client_id, s.metadata, s.started_at, s.ended_at, s.end_reason, COUNT(r.id) as run_count
		FROM sessions s
		LEFT JOIN runs r ON r.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var endedAt sql.NullTime
		if err = rows.Scan(&sess.ID, &sess.ClientID, &sess.Metadata, &sess.StartedAt, &endedAt, &sess.EndReason, &sess.RunCount); err != nil {
			return nil, 0, err
		}
		if endedAt.Valid {
			sess.EndedAt = &endedAt.Time
		}
		sessions = append(sessions, sess)
	}
	return sessions, total, rows.Err()
}

// GetSession returns one session with its runs and session-level spans.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, []Run, []Span, error) {
	var sess Session
	var endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, client_id, metadata, started_at, ended_at, end_reason FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.ClientID, &sess.Metadata, &sess.StartedAt, &endedAt, &sess.EndReason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, nil, err
	}
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, response_id, started_at, duration_ms, text, audio_bytes, status
		FROM runs WHERE session_id = $1 ORDER BY started_at ASC
	`, id)
	if err != nil {
		return nil, nil, nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err = rows.Scan(&r.ID, &r.SessionID, &r.ResponseID, &r.StartedAt, &r.DurationMs, &r.Text, &r.AudioBytes, &r.Status); err != nil {
			return nil, nil, nil, err
		}
		runs = append(runs, r)
	}
	if err = rows.Err(); err != nil {
		return nil, nil, nil, err
	}

	spans, err := s.spans(ctx, `WHERE session_id = $1 AND run_id = ''`, id)
	if err != nil {
		return nil, nil, nil, err
	}
	return &sess, runs, spans, nil
}

// GetRun returns a single run with its spans.
func (s *Store) GetRun(ctx context.Context, sessionID, runID string) (*Run, []Span, error) {
	var r Run
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session_id, response_id, started_at, duration_ms, text, audio_bytes, status FROM runs WHERE id = $1 AND session_id = $2`,
		runID, sessionID,
	).Scan(&r.ID, &r.SessionID, &r.ResponseID, &r.StartedAt, &r.DurationMs, &r.Text, &r.AudioBytes, &r.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	spans, err := s.spans(ctx, `WHERE run_id = $1`, runID)
	if err != nil {
		return nil, nil, err
	}
	return &r, spans, nil
}

func (s *Store) spans(ctx context.Context, where string, arg string) ([]Span, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, run_id, name, started_at, duration_ms, status, error_msg FROM spans `+where+` ORDER BY started_at ASC`,
		arg,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var spans []Span
	for rows.Next() {
		var sp Span
		if err = rows.Scan(&sp.ID, &sp.SessionID, &sp.RunID, &sp.Name, &sp.StartedAt, &sp.DurationMs, &sp.Status, &sp.Error); err != nil {
			return nil, err
		}
		spans = append(spans, sp)
	}
	return spans, rows.Err()
}
