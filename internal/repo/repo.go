package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/signalix/emailauth/internal/model"
)

var (
	// ErrNotFound is returned when no record matches a lookup
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a write violates a unique field
	ErrDuplicate = errors.New("duplicate key")
)

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	Create(ctx context.Context, user model.User) (model.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	// Update overwrites email and display name of an existing user. Nonce
	// hashes only change through the dedicated methods below.
	Update(ctx context.Context, user model.User) error
	// AddNonceHash appends one session nonce hash.
	AddNonceHash(ctx context.Context, id uuid.UUID, hash string) error
	// RemoveNonceHash drops every occurrence of hash; a missing hash is not an error.
	RemoveNonceHash(ctx context.Context, id uuid.UUID, hash string) error
	ClearNonceHashes(ctx context.Context, id uuid.UUID) error
}

// LoginTokenRepo defines the interface for login token repository operations.
// Delete reports whether it removed the record; a record that is already gone
// is not an error.
type LoginTokenRepo interface {
	Create(ctx context.Context, token model.LoginToken) error
	FindByEmail(ctx context.Context, email string) (model.LoginToken, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// EmailTokenRepo defines the interface for email change token repository operations
type EmailTokenRepo interface {
	Create(ctx context.Context, token model.EmailChangeToken) error
	FindByEmail(ctx context.Context, email string) (model.EmailChangeToken, error)
	FindByNewEmail(ctx context.Context, newEmail string) (model.EmailChangeToken, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store bundles the repositories of one backend
type Store struct {
	Users       UserRepo
	LoginTokens LoginTokenRepo
	EmailTokens EmailTokenRepo
	// Close releases the backend connection, may be nil.
	Close func(ctx context.Context) error
}
