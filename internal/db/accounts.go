package db

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/galyarder/galyarder-store/pkg/schema"
)

const minPasswordLength = 6

func authErr(code, msg string) *schema.AuthError {
	return &schema.AuthError{Code: code, Message: msg}
}

// CreateUser registers an account. Failures come back as *schema.AuthError
// when they are the caller's fault.
func (db *DB) CreateUser(ctx context.Context, creds schema.Credentials) (*schema.User, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	if !strings.Contains(email, "@") {
		return nil, authErr(schema.AuthInvalidRequest, "a valid email is required")
	}
	if len(creds.Password) < minPasswordLength {
		return nil, authErr(schema.AuthInvalidRequest,
			fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), db.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	now := db.now().UTC()

	res, err := db.conn.ExecContext(ctx, `
	INSERT INTO users (id, email, password_hash, display_name, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(email) DO NOTHING
	`, id.String(), email, string(hash), creds.DisplayName, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, authErr(schema.AuthUserExists, "email already registered")
	}

	return &schema.User{
		ID:          id.String(),
		Email:       email,
		DisplayName: creds.DisplayName,
		CreatedAt:   now,
	}, nil
}

// Authenticate checks a password and records the sign-in time.
func (db *DB) Authenticate(ctx context.Context, creds schema.Credentials) (*schema.User, error) {
	email := strings.ToLower(strings.TrimSpace(creds.Email))

	var (
		u          schema.User
		hash       string
		createdAt  string
		lastSignIn sql.NullString
	)
	err := db.conn.QueryRowContext(ctx, `
	SELECT id, email, password_hash, display_name, created_at, last_sign_in
	FROM users WHERE email = ?
	`, email).Scan(&u.ID, &u.Email, &hash, &u.DisplayName, &createdAt, &lastSignIn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authErr(schema.AuthInvalidCredentials, "invalid login credentials")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)); err != nil {
		return nil, authErr(schema.AuthInvalidCredentials, "invalid login credentials")
	}

	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	u.LastSignIn = db.now().UTC()
	if _, err := db.conn.ExecContext(ctx, `UPDATE users SET last_sign_in = ? WHERE id = ?`,
		u.LastSignIn.Format(time.RFC3339Nano), u.ID); err != nil {
		return nil, fmt.Errorf("failed to record sign-in: %w", err)
	}
	return &u, nil
}

// CreateSession issues a bearer token for u valid for ttl.
func (db *DB) CreateSession(ctx context.Context, u *schema.User, ttl time.Duration) (*schema.Session, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	token := hex.EncodeToString(buf)
	expires := db.now().UTC().Add(ttl)

	if _, err := db.conn.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)`,
		token, u.ID, expires.Format(time.RFC3339Nano)); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &schema.Session{AccessToken: token, ExpiresAt: expires, User: u}, nil
}

// SessionUser resolves a bearer token. Unknown or expired tokens yield a
// not_authenticated *schema.AuthError; expired ones are removed.
func (db *DB) SessionUser(ctx context.Context, token string) (*schema.User, error) {
	var (
		u          schema.User
		createdAt  string
		lastSignIn sql.NullString
		expiresAt  string
	)
	err := db.conn.QueryRowContext(ctx, `
	SELECT u.id, u.email, u.display_name, u.created_at, u.last_sign_in, s.expires_at
	FROM sessions s JOIN users u ON u.id = s.user_id
	WHERE s.token = ?
	`, token).Scan(&u.ID, &u.Email, &u.DisplayName, &createdAt, &lastSignIn, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authErr(schema.AuthNotAuthenticated, "invalid or expired session")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	exp, err := time.Parse(time.RFC3339Nano, expiresAt)
	if err != nil || db.now().After(exp) {
		_ = db.DeleteSession(ctx, token)
		return nil, authErr(schema.AuthNotAuthenticated, "invalid or expired session")
	}

	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if lastSignIn.Valid {
		u.LastSignIn, _ = time.Parse(time.RFC3339Nano, lastSignIn.String)
	}
	return &u, nil
}

// DeleteSession revokes a token. Unknown tokens are ignored.
func (db *DB) DeleteSession(ctx context.Context, token string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
