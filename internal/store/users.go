package store

import (
	"context"

	"github.com/stockassistant/orchestrator/internal/models"
)

// UserRepository provides user persistence and satisfies
// internal/auth.UserRepository.
type UserRepository struct {
	db *DB
}

// GetUserByEmail looks up a user by email address.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u,
		`SELECT id, email, password_hash, created_at, updated_at FROM users WHERE email = $1`, email)
	if err != nil {
		return nil, wrapNotFound(err, "user", email)
	}
	return &u, nil
}

// GetUserByID looks up a user by id.
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u,
		`SELECT id, email, password_hash, created_at, updated_at FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, wrapNotFound(err, "user", id)
	}
	return &u, nil
}

// CreateUser inserts a new user row.
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	return err
}
