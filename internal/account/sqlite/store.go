// Package sqlite implements account persistence over SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/codemurf/auth-gateway/internal/account"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id               TEXT PRIMARY KEY,
	provider         TEXT NOT NULL,
	provider_user_id TEXT NOT NULL,
	email            TEXT NOT NULL,
	display_name     TEXT NOT NULL DEFAULT '',
	avatar_url       TEXT NOT NULL DEFAULT '',
	role             TEXT NOT NULL DEFAULT 'user',
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL,
	UNIQUE (provider, provider_user_id)
);
`

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store implements account.Store over a single SQLite file. The unique index
// on (provider, provider_user_id) is what makes Upsert idempotent under
// concurrent logins for the same external identity.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens the account store and applies the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	inMemory := strings.Contains(path, ":memory:")
	dsn := path
	if !inMemory {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if inMemory {
		// Each pooled connection would otherwise see its own empty database.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) FindByProviderIdentity(ctx context.Context, provider, providerUserID string) (*account.User, error) {
	return s.queryOne(ctx,
		`SELECT id, provider, provider_user_id, email, display_name, avatar_url, role, created_at, updated_at
		 FROM users WHERE provider = ? AND provider_user_id = ?`,
		provider, providerUserID)
}

func (s *Store) FindByID(ctx context.Context, id string) (*account.User, error) {
	return s.queryOne(ctx,
		`SELECT id, provider, provider_user_id, email, display_name, avatar_url, role, created_at, updated_at
		 FROM users WHERE id = ?`,
		id)
}

// Upsert creates the user on first login and refreshes profile fields on
// subsequent logins. The generated ID and the role survive the conflict
// branch, so a returning user always keeps the same identity.
func (s *Store) Upsert(ctx context.Context, provider string, identity account.Identity) (*account.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(provider) == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if strings.TrimSpace(identity.ProviderUserID) == "" {
		return nil, fmt.Errorf("provider user id is required")
	}
	if strings.TrimSpace(identity.Email) == "" {
		return nil, fmt.Errorf("email is required")
	}

	now := toMillis(s.now())
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (id, provider, provider_user_id, email, display_name, avatar_url, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, provider_user_id) DO UPDATE SET
			email        = excluded.email,
			display_name = excluded.display_name,
			avatar_url   = excluded.avatar_url,
			updated_at   = excluded.updated_at`,
		uuid.NewString(), provider, identity.ProviderUserID,
		identity.Email, identity.DisplayName, identity.AvatarURL,
		string(account.RoleUser), now, now)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}

	return s.FindByProviderIdentity(ctx, provider, identity.ProviderUserID)
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (*account.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	var u account.User
	var role string
	var createdAt, updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Provider, &u.ProviderUserID, &u.Email,
		&u.DisplayName, &u.AvatarURL, &role, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, account.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}

	u.Role = account.Role(role)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return &u, nil
}
