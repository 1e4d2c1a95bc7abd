package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/web/middleware"
)

const (
	upsertSessionSQL = `
		INSERT INTO sessions (id, username, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			expires_at = EXCLUDED.expires_at`

	selectLiveSessionSQL = `
		SELECT id, username, created_at, expires_at
		FROM sessions
		WHERE id = $1 AND expires_at > NOW()`
)

// SessionRepository keeps admin logins across restarts of the web server.
type SessionRepository struct {
	pool *Pool
}

var _ middleware.SessionRepository = (*SessionRepository)(nil)

func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Save inserts the session or refreshes its owner and expiry.
func (r *SessionRepository) Save(ctx context.Context, id, username string, createdAt, expiresAt time.Time) error {
	if _, err := r.pool.Exec(ctx, upsertSessionSQL, id, username, createdAt, expiresAt); err != nil {
		return fmt.Errorf("saving session for %s: %w", username, err)
	}
	return nil
}

// Get returns nil without an error for unknown and expired sessions.
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*middleware.StoredSession, error) {
	s := &middleware.StoredSession{}
	row := r.pool.QueryRow(ctx, selectLiveSessionSQL, sessionID)
	switch err := row.Scan(&s.ID, &s.Username, &s.CreatedAt, &s.ExpiresAt); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, sessionID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteExpired purges sessions past their expiry and reports how many went.
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("purging expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged sessions: %w", err)
	}
	return n, nil
}
