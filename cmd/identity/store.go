package identity

import (
	"context"
	"time"
)

// User is evtrack's canonical security principal. Email is the login
// identifier; EmailNorm is the normalized form backing the case-insensitive
// uniqueness constraint.
type User struct {
	ID        string
	Email     string
	EmailNorm string

	FirstName string
	LastName  string

	CreatedAt time.Time
}

// FullName returns the display name composed from the name fields.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// UserAuth bundles a user with its password hash for login verification.
// The hash must never leave the auth layer.
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput describes a registration request. Email, Password,
// FirstName and LastName are required; the store normalizes and hashes.
type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Now       time.Time
}

// CreateUserResult returns the created user.
type CreateUserResult struct {
	User User
}

// Store is the identity persistence boundary.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (CreateUserResult, error)

	// GetUserByID returns the user or ErrNotFound.
	GetUserByID(ctx context.Context, id string) (User, error)

	// GetUserAuthByEmail looks up by normalized email and returns the user
	// with its password hash, or ErrNotFound. Callers must keep failure
	// responses uniform to avoid account enumeration.
	GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error)
}
