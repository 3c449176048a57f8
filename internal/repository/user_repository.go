package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/filevault/internal/model"
)

// UserRepo persists identities and their password verifiers.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a user. It returns ErrDuplicate when the identifier is taken.
func (r *UserRepo) Create(ctx context.Context, id, passwordHash string, createdAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (id, password_hash, created_at) VALUES (?,?,?)",
		id, passwordHash, createdAt)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetByID fetches a user by its normalized identifier.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, password_hash, created_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}
