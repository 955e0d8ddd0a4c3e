// Package session tracks anonymous browser sessions with a cookie token and
// guards state-changing requests with a double-submit CSRF token.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"shariahguide/internal/models"
)

// Service issues and resolves session tokens.
type Service struct {
	db             *sql.DB
	cookieName     string
	csrfCookieName string
	csrfHeaderName string
	secureCookies  bool
}

// NewService constructs a session service over a migrated database.
func NewService(db *sql.DB) *Service {
	return &Service{
		db:             db,
		cookieName:     "shariahguide_session",
		csrfCookieName: "csrf_token",
		csrfHeaderName: "X-CSRF-Token",
	}
}

// SetSecureCookies marks issued cookies Secure (HTTPS only).
func (s *Service) SetSecureCookies(secure bool) {
	s.secureCookies = secure
}

// Create mints a new session with a random token. A token collision is
// retried a few times; a cancelled context is not.
func (s *Service) Create(ctx context.Context) (*models.Session, error) {
	now := time.Now().UTC()
	var lastErr error
	for i := 0; i < 5; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		token := uuid.NewString()
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (token, created_at, updated_at) VALUES (?, ?, ?)`,
			token, now, now,
		)
		if err != nil {
			lastErr = err
			continue
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("session id: %w", err)
		}
		return &models.Session{ID: id, Token: token, CreatedAt: now, UpdatedAt: now}, nil
	}
	return nil, fmt.Errorf("create session: %w", lastErr)
}

// Resolve looks up the session owning token.
func (s *Service) Resolve(ctx context.Context, token string) (*models.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("token required")
	}
	var se models.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, token, created_at, updated_at FROM sessions WHERE token = ?`, token,
	).Scan(&se.ID, &se.Token, &se.CreatedAt, &se.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("unknown session")
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	return &se, nil
}

// NewCSRFToken returns a random token used for CSRF protection.
func (s *Service) NewCSRFToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CookieName returns the cookie storing the session token.
func (s *Service) CookieName() string {
	return s.cookieName
}

// CSRFCookieName returns the cookie used for CSRF tokens.
func (s *Service) CSRFCookieName() string {
	return s.csrfCookieName
}

// CSRFHeaderName returns the CSRF header name.
func (s *Service) CSRFHeaderName() string {
	return s.csrfHeaderName
}
