// Package account defines the internal user model and the persistence
// contract the login flow depends on.
package account

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no user matches the lookup key.
var ErrNotFound = errors.New("account not found")

// Role enumerates the access levels a user can hold.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity is a normalized profile fetched from an external provider. It is
// never persisted as-is; Upsert maps it onto a User.
type Identity struct {
	ProviderUserID string
	Email          string
	DisplayName    string
	AvatarURL      string
}

// User is the internal account record. ID is stable and independent of any
// provider; the (Provider, ProviderUserID) pair is the upsert key, so the
// same email arriving from two providers yields two distinct users.
type User struct {
	ID             string
	Provider       string
	ProviderUserID string
	Email          string
	DisplayName    string
	AvatarURL      string
	Role           Role
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store is the persistence contract for user accounts. Upsert must be
// idempotent: repeated calls with the same identity return the same user ID
// and never create a duplicate, which the backing store guarantees with a
// unique index on (provider, provider_user_id).
type Store interface {
	// FindByProviderIdentity returns the user for a provider identity, or
	// ErrNotFound.
	FindByProviderIdentity(ctx context.Context, provider, providerUserID string) (*User, error)

	// FindByID returns the user with the given internal ID, or ErrNotFound.
	FindByID(ctx context.Context, id string) (*User, error)

	// Upsert creates the user on first login and refreshes mutable profile
	// fields (email, display name, avatar) on every subsequent login. The
	// internal ID and role are never changed by an upsert.
	Upsert(ctx context.Context, provider string, identity Identity) (*User, error)
}
