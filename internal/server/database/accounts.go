package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// FindByUsername retrieves an account by its unique username.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*Account, error) {
	a := &Account{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, username, password_hash, role, created_at
		FROM accounts WHERE username = $1
	`, username).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.Role, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// InsertAccount stores a new account and fills in its ID and CreatedAt.
// A taken username yields ErrDuplicateUsername.
func (r *Repository) InsertAccount(ctx context.Context, a *Account) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO accounts (username, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, a.Username, a.PasswordHash, a.Role).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// UpdatePassword replaces the password hash of the named account.
func (r *Repository) UpdatePassword(ctx context.Context, username, passwordHash string) error {
	tag, err := r.db.Pool.Exec(ctx,
		"UPDATE accounts SET password_hash = $1 WHERE username = $2", passwordHash, username)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}
