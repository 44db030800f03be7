package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"storefront/internal/types"
)

// UserRepo provides read access to user accounts for authentication.
type UserRepo struct {
	db DBTX
}

// NewUserRepo creates a UserRepo backed by the given database connection.
func NewUserRepo(db DBTX) *UserRepo {
	return &UserRepo{db: db}
}

// GetByEmail returns the user with the given email, or an AppError with code
// not_found_user.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	var u types.User
	err := r.db.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at
		 FROM users
		 WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(
				types.ErrCodeNotFoundUser,
				fmt.Sprintf("no user with email %s", email),
				err,
			)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load user", err)
	}
	return &u, nil
}

// GetByID returns the user with the given ID, or an AppError with code
// not_found_user.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*types.User, error) {
	var u types.User
	err := r.db.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at
		 FROM users
		 WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(
				types.ErrCodeNotFoundUser,
				fmt.Sprintf("user %d does not exist", id),
				err,
			)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load user", err)
	}
	return &u, nil
}
