package meeting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/MrWong99/podium/internal/countdown"
)

// Schema is the SQL DDL for the meetings and meeting_speakers tables.
// Execute it via [PostgresStore.Migrate] or apply it during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS meetings (
    id          TEXT PRIMARY KEY,
    title       TEXT NOT NULL,
    host_id     TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'scheduled',
    speakers    JSONB NOT NULL DEFAULT '[]',
    timer       JSONB NOT NULL DEFAULT '{}',
    cost        JSONB,
    script      TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_meetings_host ON meetings(host_id, created_at DESC);

CREATE TABLE IF NOT EXISTS meeting_speakers (
    meeting_id        TEXT NOT NULL REFERENCES meetings(id) ON DELETE CASCADE,
    speaker_id        TEXT NOT NULL,
    name_snapshot     TEXT NOT NULL DEFAULT '',
    email_snapshot    TEXT NOT NULL DEFAULT '',
    spoken_seconds    INTEGER NOT NULL DEFAULT 0,
    allocated_seconds INTEGER NOT NULL DEFAULT 0,
    cost_incurred     NUMERIC(14,4) NOT NULL DEFAULT 0,
    logged_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (meeting_id, speaker_id)
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. Speakers, timer and cost
// are stored as JSONB.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a [PostgresStore] using db. Call
// [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes [Schema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("meeting: migrate: %w", err)
	}
	return nil
}

const selectMeeting = `
	SELECT id, title, host_id, status, speakers, timer, cost, script, created_at, updated_at
	FROM meetings`

// Create implements [Store.Create].
func (s *PostgresStore) Create(ctx context.Context, m *Meeting) error {
	speakersJSON, err := json.Marshal(emptySpeakers(m.Speakers))
	if err != nil {
		return fmt.Errorf("meeting: marshal speakers: %w", err)
	}
	timerJSON, err := json.Marshal(m.Timer)
	if err != nil {
		return fmt.Errorf("meeting: marshal timer: %w", err)
	}
	var costJSON []byte
	if m.Cost != nil {
		if costJSON, err = json.Marshal(m.Cost); err != nil {
			return fmt.Errorf("meeting: marshal cost: %w", err)
		}
	}

	const query = `
		INSERT INTO meetings (id, title, host_id, status, speakers, timer, cost, script, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
		RETURNING created_at, updated_at`

	err = s.db.QueryRow(ctx, query,
		m.ID, m.Title, m.HostID, string(m.Status), speakersJSON, timerJSON, costJSON, m.Script, m.CreatedAt,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if pgCode(err) == "23505" {
			return fmt.Errorf("meeting: create: id %q already exists", m.ID)
		}
		return fmt.Errorf("meeting: create: %w", err)
	}
	return nil
}

// Get implements [Store.Get].
func (s *PostgresStore) Get(ctx context.Context, id string) (*Meeting, error) {
	m, err := scanMeeting(s.db.QueryRow(ctx, selectMeeting+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("meeting: get %q: %w", id, err)
	}
	return m, nil
}

// List implements [Store.List].
func (s *PostgresStore) List(ctx context.Context, hostID string) ([]Meeting, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if hostID == "" {
		rows, err = s.db.Query(ctx, selectMeeting+` ORDER BY created_at DESC, id`)
	} else {
		rows, err = s.db.Query(ctx, selectMeeting+` WHERE host_id = $1 ORDER BY created_at DESC, id`, hostID)
	}
	if err != nil {
		return nil, fmt.Errorf("meeting: list: %w", err)
	}
	defer rows.Close()

	var out []Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("meeting: list scan: %w", err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("meeting: list: %w", err)
	}
	return out, nil
}

// UpdateTimer implements [Store.UpdateTimer].
func (s *PostgresStore) UpdateTimer(ctx context.Context, id string, st countdown.TimerState) error {
	timerJSON, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("meeting: marshal timer: %w", err)
	}
	return s.update(ctx, "timer", `UPDATE meetings SET timer = $2, updated_at = now() WHERE id = $1`, id, timerJSON)
}

// UpdateStatus implements [Store.UpdateStatus].
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	return s.update(ctx, "status", `UPDATE meetings SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
}

// UpdateScript implements [Store.UpdateScript].
func (s *PostgresStore) UpdateScript(ctx context.Context, id string, script string) error {
	return s.update(ctx, "script", `UPDATE meetings SET script = $2, updated_at = now() WHERE id = $1`, id, script)
}

func (s *PostgresStore) update(ctx context.Context, what, query, id string, value any) error {
	tag, err := s.db.Exec(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("meeting: update %s %q: %w", what, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LogSpeakerTime implements [Store.LogSpeakerTime].
func (s *PostgresStore) LogSpeakerTime(ctx context.Context, e SpeakerTime) error {
	const query = `
		INSERT INTO meeting_speakers (
			meeting_id, speaker_id, name_snapshot, email_snapshot,
			spoken_seconds, allocated_seconds, cost_incurred
		) VALUES ($1,$2,$3,$4,$5,$6,$7::numeric)
		ON CONFLICT (meeting_id, speaker_id) DO UPDATE SET
			spoken_seconds    = meeting_speakers.spoken_seconds + EXCLUDED.spoken_seconds,
			cost_incurred     = meeting_speakers.cost_incurred + EXCLUDED.cost_incurred,
			allocated_seconds = EXCLUDED.allocated_seconds,
			name_snapshot     = EXCLUDED.name_snapshot,
			email_snapshot    = EXCLUDED.email_snapshot,
			logged_at         = now()`

	_, err := s.db.Exec(ctx, query,
		e.MeetingID, e.SpeakerID, e.NameSnapshot, e.EmailSnapshot,
		e.SpokenSeconds, e.AllocatedSeconds, e.CostIncurred.String(),
	)
	if err != nil {
		if pgCode(err) == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("meeting: log speaker time: %w", err)
	}
	return nil
}

// SpeakerTimes implements [Store.SpeakerTimes].
func (s *PostgresStore) SpeakerTimes(ctx context.Context, meetingID string) ([]SpeakerTime, error) {
	const query = `
		SELECT speaker_id, name_snapshot, email_snapshot,
		       spoken_seconds, allocated_seconds, cost_incurred::text
		FROM meeting_speakers
		WHERE meeting_id = $1
		ORDER BY logged_at, speaker_id`

	rows, err := s.db.Query(ctx, query, meetingID)
	if err != nil {
		return nil, fmt.Errorf("meeting: speaker times: %w", err)
	}
	defer rows.Close()

	var out []SpeakerTime
	for rows.Next() {
		st := SpeakerTime{MeetingID: meetingID}
		var cost string
		if err := rows.Scan(
			&st.SpeakerID, &st.NameSnapshot, &st.EmailSnapshot,
			&st.SpokenSeconds, &st.AllocatedSeconds, &cost,
		); err != nil {
			return nil, fmt.Errorf("meeting: speaker times scan: %w", err)
		}
		if st.CostIncurred, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("meeting: speaker times: cost %q: %w", cost, err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("meeting: speaker times: %w", err)
	}
	return out, nil
}

// scanMeeting reads one row of selectMeeting and decodes the JSONB columns.
func scanMeeting(row pgx.Row) (*Meeting, error) {
	var (
		m                           Meeting
		status                      string
		speakers, timer, costColumn []byte
	)
	if err := row.Scan(
		&m.ID, &m.Title, &m.HostID, &status, &speakers, &timer, &costColumn,
		&m.Script, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	m.Status = Status(status)

	if err := json.Unmarshal(speakers, &m.Speakers); err != nil {
		return nil, fmt.Errorf("meeting: unmarshal speakers: %w", err)
	}
	if err := json.Unmarshal(timer, &m.Timer); err != nil {
		return nil, fmt.Errorf("meeting: unmarshal timer: %w", err)
	}
	if len(costColumn) > 0 {
		m.Cost = new(CostInput)
		if err := json.Unmarshal(costColumn, m.Cost); err != nil {
			return nil, fmt.Errorf("meeting: unmarshal cost: %w", err)
		}
	}
	return &m, nil
}

// emptySpeakers ensures JSON marshalling produces "[]" instead of "null".
func emptySpeakers(s []Speaker) []Speaker {
	if s == nil {
		return []Speaker{}
	}
	return s
}

// pgCode returns the SQLSTATE of a PostgreSQL error, or "".
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
