package identity

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is a dev/test fallback when no database is configured.
// It enforces the same normalization and uniqueness rules as PostgresStore.
type InMemoryStore struct {
	mu        sync.Mutex
	usersByID map[string]memUser
	idByEmail map[string]string // email_norm -> user id
}

type memUser struct {
	user         User
	passwordHash string
}

// NewInMemoryStore constructs an in-memory identity Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		usersByID: make(map[string]memUser),
		idByEmail: make(map[string]string),
	}
}

// CreateUser creates a new user, mirroring the Postgres store's semantics.
func (s *InMemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (CreateUserResult, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return CreateUserResult{}, err
	}

	email := strings.TrimSpace(in.Email)
	firstName := NormalizeName(in.FirstName)
	lastName := NormalizeName(in.LastName)

	if email == "" {
		return CreateUserResult{}, pgInvalid(op, "email is required")
	}
	if strings.TrimSpace(in.Password) == "" {
		return CreateUserResult{}, pgInvalid(op, "password is required")
	}
	if firstName == "" || lastName == "" {
		return CreateUserResult{}, pgInvalid(op, "first_name and last_name are required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	emailNorm := NormalizeEmail(email)

	// Hash outside the lock; Argon2id is deliberately slow.
	pwHash, err := HashPassword(in.Password, DefaultArgon2idParams())
	if err != nil {
		return CreateUserResult{}, pgInvalid(op, err.Error())
	}

	userID, err := NewULID(now)
	if err != nil {
		return CreateUserResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.idByEmail[emailNorm]; exists {
		return CreateUserResult{}, ConflictError{Op: op, Field: "email"}
	}

	u := User{
		ID:        userID,
		Email:     email,
		EmailNorm: emailNorm,
		FirstName: firstName,
		LastName:  lastName,
		CreatedAt: now,
	}
	s.usersByID[userID] = memUser{user: u, passwordHash: pwHash}
	s.idByEmail[emailNorm] = userID

	return CreateUserResult{User: u}, nil
}

// GetUserByID returns the user or ErrNotFound.
func (s *InMemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, pgInvalid(op, "missing id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.usersByID[id]
	if !ok {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return mu.user, nil
}

// GetUserAuthByEmail looks up a user (with password hash) by normalized email.
func (s *InMemoryStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	const op = "identity.GetUserAuthByEmail"

	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	emailNorm := NormalizeEmail(email)
	if emailNorm == "" {
		return UserAuth{}, pgInvalid(op, "missing email")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.idByEmail[emailNorm]
	if !ok {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}
	mu := s.usersByID[id]

	return UserAuth{User: mu.user, PasswordHash: mu.passwordHash}, nil
}
