package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool the Postgres store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// uniqueViolation is the Postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

// appendRetries bounds retries when two appends race for the same
// sequence number.
const appendRetries = 3

// PostgresStore persists sessions and messages in Postgres.
type PostgresStore struct {
	db Querier
}

// NewPostgresStore creates a Store backed by the given querier.
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, ownerID string, id uuid.UUID) (Session, error) {
	if _, err := s.db.Exec(ctx,
		`INSERT INTO owners (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		ownerID); err != nil {
		return Session{}, fmt.Errorf("ensuring owner %q: %w", ownerID, err)
	}

	// Insert-or-fetch in one round trip. DO UPDATE is a no-op write that
	// lets RETURNING yield the existing row.
	row := s.db.QueryRow(ctx, `
		INSERT INTO sessions (id, owner_id) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
		WHERE sessions.owner_id = EXCLUDED.owner_id
		RETURNING id, owner_id, created_at, updated_at`,
		id, ownerID)

	var sess Session
	err := row.Scan(&sess.ID, &sess.OwnerID, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict row exists but belongs to another owner.
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("getting session %s: %w", id, err)
	}
	return sess, nil
}

// Append inserts the message with the next sequence number. The unique
// (session_id, sequence_number) constraint detects a racing append, in
// which case the insert is retried with a fresh sequence.
func (s *PostgresStore) Append(ctx context.Context, sessionID uuid.UUID, msg Message) (Message, error) {
	msg.ID = uuid.New()
	msg.SessionID = sessionID

	for attempt := 0; ; attempt++ {
		row := s.db.QueryRow(ctx, `
			INSERT INTO messages (id, session_id, role, content, metadata, sequence_number)
			SELECT $1, $2, $3, $4, $5, COALESCE(MAX(sequence_number) + 1, 0)
			FROM messages WHERE session_id = $2
			RETURNING sequence_number, created_at`,
			msg.ID, sessionID, string(msg.Role), msg.Content, msg.Metadata)

		err := row.Scan(&msg.Sequence, &msg.CreatedAt)
		if err == nil {
			break
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && attempt < appendRetries {
			continue
		}
		return Message{}, fmt.Errorf("appending to session %s: %w", sessionID, err)
	}

	if _, err := s.db.Exec(ctx,
		`UPDATE sessions SET updated_at = now() WHERE id = $1`, sessionID); err != nil {
		return Message{}, fmt.Errorf("touching session %s: %w", sessionID, err)
	}
	return msg, nil
}

func (s *PostgresStore) Messages(ctx context.Context, sessionID uuid.UUID) ([]Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, role, content, metadata, sequence_number, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY sequence_number`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing messages of %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.Metadata, &m.Sequence, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Reset deletes the message log only. Deleting messages of an unknown
// session is a no-op by construction.
func (s *PostgresStore) Reset(ctx context.Context, ownerID string, sessionID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM messages
		WHERE session_id = $1
		  AND EXISTS (SELECT 1 FROM sessions WHERE id = $1 AND owner_id = $2)`,
		sessionID, ownerID)
	if err != nil {
		return fmt.Errorf("resetting session %s: %w", sessionID, err)
	}

	// Ownership violation surfaces as ErrNotFound so the API layer can 404.
	var owner string
	err = s.db.QueryRow(ctx,
		`SELECT owner_id FROM sessions WHERE id = $1`, sessionID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking session %s: %w", sessionID, err)
	}
	if owner != ownerID {
		return ErrNotFound
	}

	if _, err := s.db.Exec(ctx,
		`UPDATE sessions SET updated_at = now() WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("touching session %s: %w", sessionID, err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
