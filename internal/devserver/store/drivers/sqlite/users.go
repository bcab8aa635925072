package sqlite

import (
	"context"

	"github.com/aussiebroadwan/emstore/internal/devserver/domain"
)

type usersRepo struct{ q querier }

const userColumns = `id, username, email, first_name, last_name, password_hash, created_at, updated_at`

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash,
		utc(u.CreatedAt), utc(u.UpdatedAt),
	)
	return mapConstraint(err)
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

func (r *usersRepo) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = ?)`, username)
}

func (r *usersRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE email = ?)`, email)
}

func (r *usersRepo) scanOne(ctx context.Context, query string, arg any) (domain.User, error) {
	var u domain.User
	err := r.q.QueryRowContext(ctx, query, arg).Scan(
		&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) exists(ctx context.Context, query string, arg any) (bool, error) {
	var ok bool
	if err := r.q.QueryRowContext(ctx, query, arg).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}
