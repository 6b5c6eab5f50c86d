package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"depot/internal/server/auth"
	"depot/internal/server/database"
)

// AdminUsername is the account created on first start.
const AdminUsername = "admin"

// AccountStore persists accounts.
type AccountStore interface {
	FindByUsername(ctx context.Context, username string) (*database.Account, error)
	InsertAccount(ctx context.Context, a *database.Account) error
	UpdatePassword(ctx context.Context, username, passwordHash string) error
}

// AuthGateway owns every identity-mutating operation.
type AuthGateway struct {
	accounts AccountStore
	tokens   *auth.TokenService
}

// NewAuthGateway creates a new auth gateway.
func NewAuthGateway(accounts AccountStore, tokens *auth.TokenService) *AuthGateway {
	return &AuthGateway{accounts: accounts, tokens: tokens}
}

// Login checks the credentials and issues a session token.
// An unknown user and a wrong password produce the same error.
func (g *AuthGateway) Login(ctx context.Context, username, password string) (string, error) {
	if username == "" || password == "" {
		return "", ErrInvalidInput
	}

	account, err := g.accounts.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			// Burn comparable time so a miss is not distinguishable from a mismatch.
			auth.VerifyPassword(password, dummyHash())
			return "", ErrUnauthenticated
		}
		return "", fmt.Errorf("failed to look up account: %w", err)
	}

	ok, err := auth.VerifyPassword(password, account.PasswordHash)
	if err != nil {
		slog.Error("stored password hash is unusable", "username", username, "error", err)
		return "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return "", ErrUnauthenticated
	}

	token, err := g.tokens.Issue(account.Username, account.Role)
	if err != nil {
		return "", err
	}

	slog.Info("login succeeded", "username", account.Username, "role", account.Role)
	return token, nil
}

// Register creates a new account. Only an administrator may call it.
func (g *AuthGateway) Register(ctx context.Context, caller *auth.Claims, username, password, role string) (*database.Account, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if username == "" || password == "" {
		return nil, ErrInvalidInput
	}
	r, ok := auth.ParseRole(role)
	if !ok {
		return nil, ErrInvalidRole
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &database.Account{
		Username:     username,
		PasswordHash: hash,
		Role:         r.String(),
	}
	if err := g.accounts.InsertAccount(ctx, account); err != nil {
		if errors.Is(err, database.ErrDuplicateUsername) {
			return nil, ErrConflict
		}
		return nil, err
	}

	slog.Info("account registered", "username", username, "role", account.Role, "by", caller.Username())
	return account, nil
}

// ChangePassword replaces the password of the caller's own account.
func (g *AuthGateway) ChangePassword(ctx context.Context, caller *auth.Claims, newPassword string) error {
	if caller == nil || caller.Username() == "" {
		return ErrUnauthenticated
	}
	if newPassword == "" {
		return ErrInvalidInput
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := g.accounts.UpdatePassword(ctx, caller.Username(), hash); err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return ErrUnauthenticated
		}
		return err
	}

	slog.Info("password changed", "username", caller.Username())
	return nil
}

// EnsureAdmin creates the default administrator if it does not exist yet.
func (g *AuthGateway) EnsureAdmin(ctx context.Context, password string) error {
	_, err := g.accounts.FindByUsername(ctx, AdminUsername)
	if err == nil {
		return nil
	}
	if !errors.Is(err, database.ErrAccountNotFound) {
		return fmt.Errorf("failed to look up admin account: %w", err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	err = g.accounts.InsertAccount(ctx, &database.Account{
		Username:     AdminUsername,
		PasswordHash: hash,
		Role:         auth.RoleAdmin.String(),
	})
	if errors.Is(err, database.ErrDuplicateUsername) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create admin account: %w", err)
	}

	slog.Info("default admin account created", "username", AdminUsername)
	return nil
}

// requireAdmin re-validates the role claim instead of trusting the raw string.
func requireAdmin(caller *auth.Claims) error {
	if caller == nil {
		return ErrUnauthenticated
	}
	role, ok := auth.ParseRole(caller.Role)
	if !ok {
		return ErrUnauthenticated
	}
	if role != auth.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

var dummyHash = sync.OnceValue(func() string {
	h, err := auth.HashPassword("depot-timing-equalizer")
	if err != nil {
		return ""
	}
	return h
})
