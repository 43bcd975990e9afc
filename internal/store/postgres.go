// Package store provides the Postgres and Redis backends for meeting
// metadata, users, and chat history.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/meetwave/meetwave/internal/core"
	"github.com/meetwave/meetwave/internal/domain"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, url string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

// EnsureSchema creates the tables when they are missing. Good enough for a
// single-binary deployment; a migration tool can replace it later.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			email TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS meetings (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			creator_id TEXT,
			is_private BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			ended_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS meeting_participants (
			meeting_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (meeting_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			meeting_id TEXT NOT NULL,
			user_id TEXT,
			message TEXT NOT NULL,
			message_type TEXT NOT NULL DEFAULT 'text',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS chat_messages_meeting_idx ON chat_messages (meeting_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	log.Info().Str("module", "store.postgres").Msg("schema ready")
	return nil
}

func (p *Postgres) GetActiveMeeting(ctx context.Context, id string) (domain.Meeting, error) {
	return p.getMeeting(ctx, id, true)
}

func (p *Postgres) GetMeeting(ctx context.Context, id string) (domain.Meeting, error) {
	return p.getMeeting(ctx, id, false)
}

func (p *Postgres) getMeeting(ctx context.Context, id string, activeOnly bool) (domain.Meeting, error) {
	q := `SELECT id, title, description, COALESCE(creator_id, ''), is_private, status, created_at, ended_at
		FROM meetings WHERE id = $1`
	args := []any{id}
	if activeOnly {
		q += ` AND status = $2`
		args = append(args, string(domain.MeetingActive))
	}
	var m domain.Meeting
	err := p.pool.QueryRow(ctx, q, args...).
		Scan(&m.ID, &m.Title, &m.Description, &m.CreatorID, &m.IsPrivate, &m.Status, &m.CreatedAt, &m.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Meeting{}, core.ErrNotFound
	}
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("get meeting %s: %w", id, err)
	}
	return m, nil
}

func (p *Postgres) CreateMeeting(ctx context.Context, m domain.Meeting) error {
	var creator any
	if m.CreatorID != "" {
		creator = m.CreatorID
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO meetings (id, title, description, creator_id, is_private, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.Title, m.Description, creator, m.IsPrivate, string(m.Status), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create meeting %s: %w", m.ID, err)
	}
	return nil
}

func (p *Postgres) EndMeeting(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE meetings SET status = $1, ended_at = NOW() WHERE id = $2`, string(domain.MeetingEnded), id)
	if err != nil {
		return fmt.Errorf("end meeting %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (p *Postgres) ListMeetingsByCreator(ctx context.Context, creatorID string) ([]domain.Meeting, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, title, description, COALESCE(creator_id, ''), is_private, status, created_at, ended_at
		FROM meetings
		WHERE creator_id = $1
		ORDER BY created_at DESC
		LIMIT 50
	`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("list meetings for %s: %w", creatorID, err)
	}
	defer rows.Close()

	var out []domain.Meeting
	for rows.Next() {
		var m domain.Meeting
		if err := rows.Scan(&m.ID, &m.Title, &m.Description, &m.CreatorID, &m.IsPrivate, &m.Status, &m.CreatedAt, &m.EndedAt); err != nil {
			return nil, fmt.Errorf("list meetings for %s: %w", creatorID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (p *Postgres) RecordJoin(ctx context.Context, meetingID, userID string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO meeting_participants (meeting_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, meetingID, userID)
	if err != nil {
		return fmt.Errorf("record join %s/%s: %w", meetingID, userID, err)
	}
	return nil
}

func (p *Postgres) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := p.pool.QueryRow(ctx,
		`SELECT id, username, email FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, core.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

func (p *Postgres) Append(ctx context.Context, msg domain.ChatMessage) error {
	var userID any
	if msg.SenderID != "" {
		userID = msg.SenderID
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, meeting_id, user_id, message, message_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.MeetingID, userID, msg.Message, msg.MessageType, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}
