package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/emstore/internal/devserver/domain"
)

type sessionsRepo struct{ q querier }

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, token_hash, expires_at, created_at, last_seen_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.UserID, s.TokenHash, utc(s.ExpiresAt), utc(s.CreatedAt), utc(s.LastSeenAt),
	)
	return mapConstraint(err)
}

func (r *sessionsRepo) GetSessionByHash(ctx context.Context, hash string, now time.Time) (domain.Session, error) {
	var s domain.Session
	err := r.q.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, created_at, last_seen_at
		 FROM sessions WHERE token_hash = ? AND expires_at > ?`,
		hash, utc(now),
	).Scan(&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.CreatedAt, &s.LastSeenAt)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	return s, nil
}

func (r *sessionsRepo) TouchSession(ctx context.Context, id string, seen, expiresAt time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE sessions SET last_seen_at = ?, expires_at = ? WHERE id = ?`,
		utc(seen), utc(expiresAt), id,
	)
	return err
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (r *sessionsRepo) DeleteUserSessions(ctx context.Context, userID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID)
	return err
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, utc(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
