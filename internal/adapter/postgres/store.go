package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/RepairDesk/internal/domain"
	"github.com/Strob0t/RepairDesk/internal/domain/chat"
	"github.com/Strob0t/RepairDesk/internal/port/database"
)

var _ database.ChatStore = (*Store)(nil)

// Store implements database.ChatStore using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// sessionColumns selects a session joined with its customer. The session
// row is aliased s and the customer row c.
const sessionColumns = `s.id, s.customer_id::text, c.email, c.name, s.status, s.technician_id, s.technician_name,
	s.device_type, s.issue_description, s.started_at, s.ended_at, s.updated_at`

// --- Customers ---

func (s *Store) FindOrCreateCustomer(ctx context.Context, email, name string) (*chat.Customer, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	row := s.pool.QueryRow(ctx,
		`INSERT INTO customers (email, name) VALUES ($1, $2)
		 ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		 RETURNING id::text, email, name, created_at`, email, name)

	var c chat.Customer
	if err := row.Scan(&c.ID, &c.Email, &c.Name, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("find or create customer %s: %w", email, err)
	}
	return &c, nil
}

// --- Sessions ---

// FindOrCreateSession reopens or creates the session under a row lock so the
// technician detached by the reopen is reported exactly once.
func (s *Store) FindOrCreateSession(ctx context.Context, id string, customer *chat.Customer, deviceType, issue string) (*chat.Session, error) {
	var sess chat.Session
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			ownerID      string
			prevStatus   string
			prevTechID   *string
			existingSess = true
		)
		err := tx.QueryRow(ctx,
			`SELECT customer_id::text, status, technician_id FROM chat_sessions WHERE id = $1 FOR UPDATE`,
			id).Scan(&ownerID, &prevStatus, &prevTechID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			existingSess = false
		case err != nil:
			return fmt.Errorf("lock session: %w", err)
		case ownerID != customer.ID:
			return fmt.Errorf("owned by another customer: %w", domain.ErrConflict)
		}

		row := tx.QueryRow(ctx,
			`WITH s AS (
				INSERT INTO chat_sessions (id, customer_id, status, device_type, issue_description, waiting_since)
				VALUES ($1, $2::uuid, 'waiting-agent', $3, $4, NOW())
				ON CONFLICT (id) DO UPDATE SET
					status = 'waiting-agent',
					technician_id = NULL,
					technician_name = NULL,
					device_type = COALESCE(NULLIF(EXCLUDED.device_type, ''), chat_sessions.device_type),
					issue_description = COALESCE(NULLIF(EXCLUDED.issue_description, ''), chat_sessions.issue_description),
					waiting_since = CASE WHEN chat_sessions.status = 'waiting-agent'
						THEN chat_sessions.waiting_since ELSE NOW() END,
					ended_at = NULL,
					updated_at = NOW()
				WHERE chat_sessions.customer_id = EXCLUDED.customer_id
				RETURNING *
			)
			SELECT `+sessionColumns+` FROM s JOIN customers c ON c.id = s.customer_id`,
			id, customer.ID, deviceType, issue)

		sess, err = scanSession(row)
		if errors.Is(err, pgx.ErrNoRows) && !existingSess {
			// A concurrent insert by another customer won the id.
			return fmt.Errorf("owned by another customer: %w", domain.ErrConflict)
		}
		if err != nil {
			return err
		}
		if existingSess && chat.Status(prevStatus) == chat.StatusAgentJoined {
			sess.DetachedTechnicianID = derefString(prevTechID)
		}
		return nil
	})
	if err != nil {
		return nil, notFoundWrap(err, "find or create session %s", id)
	}
	return &sess, nil
}

func (s *Store) UpdateSessionStatus(ctx context.Context, id string, upd chat.SessionUpdate) (*chat.Session, error) {
	row := s.pool.QueryRow(ctx,
		`WITH s AS (
			UPDATE chat_sessions SET
				status = $2,
				technician_id = COALESCE($3, technician_id),
				technician_name = COALESCE($4, technician_name),
				ended_at = CASE WHEN $2 = 'ended' THEN COALESCE(ended_at, NOW()) ELSE ended_at END,
				waiting_since = CASE WHEN $2 = 'waiting-agent' THEN COALESCE(waiting_since, NOW()) ELSE waiting_since END,
				updated_at = NOW()
			WHERE id = $1
			RETURNING *
		)
		SELECT `+sessionColumns+` FROM s JOIN customers c ON c.id = s.customer_id`,
		id, string(upd.Status), nullIfEmpty(upd.TechnicianID), nullIfEmpty(upd.TechnicianName))

	sess, err := scanSession(row)
	if err != nil {
		return nil, notFoundWrap(err, "update session %s", id)
	}
	return &sess, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*chat.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM chat_sessions s JOIN customers c ON c.id = s.customer_id
		 WHERE s.id = $1`, id)

	sess, err := scanSession(row)
	if err != nil {
		return nil, notFoundWrap(err, "get session %s", id)
	}
	return &sess, nil
}

func (s *Store) QueuePosition(ctx context.Context, sessionID string) (int, error) {
	var pos int64
	err := s.pool.QueryRow(ctx,
		`SELECT CASE WHEN s.status <> 'waiting-agent' THEN 0 ELSE (
			SELECT COUNT(*) FROM chat_sessions w
			WHERE w.status = 'waiting-agent' AND (w.waiting_since, w.id) <= (s.waiting_since, s.id)
		 ) END
		 FROM chat_sessions s WHERE s.id = $1`, sessionID).Scan(&pos)
	if err != nil {
		return 0, notFoundWrap(err, "queue position %s", sessionID)
	}
	return int(pos), nil
}

// --- Messages ---

func (s *Store) AppendSystemMessage(ctx context.Context, sessionID, content string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_messages (session_id, sender, content) VALUES ($1, $2, $3)`,
		sessionID, string(chat.SenderSystem), content)
	if err != nil {
		return notFoundWrap(err, "append system message to %s", sessionID)
	}
	return nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]chat.Message, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM chat_sessions WHERE id = $1)`, sessionID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("list messages %s: %w", sessionID, err)
	}
	if !exists {
		return nil, notFoundWrap(pgx.ErrNoRows, "list messages %s", sessionID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, session_id, sender, content, created_at
		 FROM chat_messages WHERE session_id = $1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages %s: %w", sessionID, err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var (
			m      chat.Message
			sender string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &sender, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Sender = chat.Sender(sender)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages %s: %w", sessionID, err)
	}
	return orEmpty(msgs), nil
}

func scanSession(row scannable) (chat.Session, error) {
	var (
		sess           chat.Session
		status         string
		technicianID   *string
		technicianName *string
		endedAt        *time.Time
	)
	err := row.Scan(
		&sess.ID, &sess.CustomerID, &sess.CustomerEmail, &sess.CustomerName, &status,
		&technicianID, &technicianName, &sess.DeviceType, &sess.IssueDescription,
		&sess.StartedAt, &endedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return chat.Session{}, err
	}
	sess.Status = chat.Status(status)
	sess.TechnicianID = derefString(technicianID)
	sess.TechnicianName = derefString(technicianName)
	sess.EndedAt = endedAt
	return sess, nil
}
