package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shariahguide/internal/models"
)

// Service owns the conversation store and runs question/answer turns against
// the reference document it was constructed with.
type Service struct {
	db       *sql.DB
	document string
	pipeline Pipeline
}

// NewService builds an assistant over an already migrated database. document is
// the cleaned reference text; it never changes for the life of the service.
func NewService(db *sql.DB, document string, pipeline Pipeline) *Service {
	return &Service{db: db, document: document, pipeline: pipeline}
}

// Document returns the reference text every answer is grounded on.
func (s *Service) Document() string {
	return s.document
}

// AddMessage stores a new message and updates the session's updated_at timestamp.
func (s *Service) AddMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	if msg.SessionID <= 0 {
		return nil, errors.New("session_id is required")
	}
	now := time.Now().UTC()
	var audio any
	if len(msg.Audio) > 0 {
		audio = msg.Audio
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (session_id, role, content, audio, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.SessionID, msg.Role, msg.Content, audio, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, now, msg.SessionID); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	msg.ID = id
	msg.HasAudio = audio != nil
	msg.CreatedAt = now
	return &msg, nil
}

// ListMessages returns the session history in insertion order, without audio bytes.
func (s *Service) ListMessages(ctx context.Context, sessionID int64) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, audio IS NOT NULL, created_at
		FROM messages WHERE session_id = ? ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		m := new(models.Message)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.HasAudio, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// GetMessageAudio returns the MP3 attached to a message of the session.
// sql.ErrNoRows is returned when the message is missing, belongs to another
// session or has no audio.
func (s *Service) GetMessageAudio(ctx context.Context, sessionID, messageID int64) ([]byte, error) {
	var audio []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT audio FROM messages WHERE id = ? AND session_id = ? AND audio IS NOT NULL`,
		messageID, sessionID,
	).Scan(&audio)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get message audio: %w", err)
	}
	return audio, nil
}
