package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/signalix/emailauth/internal/model"
)

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new PostgreSQL-backed UserRepo
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

// Create inserts a user; the database assigns id and created_at
func (r *userRepo) Create(ctx context.Context, user model.User) (model.User, error) {
	query := `
		INSERT INTO users (email, display_name, nonce_hashes)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	var idStr string
	err := r.db.QueryRowContext(ctx, query, user.Email, user.DisplayName, pq.Array(nonEmpty(user.NonceHashes))).Scan(
		&idStr,
		&user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, fmt.Errorf("insert user: %w", ErrDuplicate)
		}
		return model.User{}, fmt.Errorf("failed to insert user: %w", err)
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to parse user ID: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `
		SELECT id, email, display_name, nonce_hashes, created_at
		FROM users
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id.String()))
}

// GetByEmail retrieves a user by email address
func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	query := `
		SELECT id, email, display_name, nonce_hashes, created_at
		FROM users
		WHERE email = $1
	`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

// Update writes the email and display name of the user back
func (r *userRepo) Update(ctx context.Context, user model.User) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET email = $2, display_name = $3
		WHERE id = $1
	`, user.ID.String(), user.Email, user.DisplayName)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update user: %w", ErrDuplicate)
		}
		return fmt.Errorf("update user: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("update user %s: %w", user.ID, ErrNotFound)
	}
	return nil
}

// AddNonceHash appends a session nonce hash in a single statement
func (r *userRepo) AddNonceHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.execNonce(ctx, "add nonce hash", `
		UPDATE users SET nonce_hashes = array_append(nonce_hashes, $2)
		WHERE id = $1
	`, id, hash)
}

// RemoveNonceHash removes a session nonce hash
func (r *userRepo) RemoveNonceHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.execNonce(ctx, "remove nonce hash", `
		UPDATE users SET nonce_hashes = array_remove(nonce_hashes, $2)
		WHERE id = $1
	`, id, hash)
}

// ClearNonceHashes drops every session of the user
func (r *userRepo) ClearNonceHashes(ctx context.Context, id uuid.UUID) error {
	return r.execNonce(ctx, "clear nonce hashes", `
		UPDATE users SET nonce_hashes = '{}'
		WHERE id = $1
	`, id)
}

func (r *userRepo) execNonce(ctx context.Context, op, query string, id uuid.UUID, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, append([]any{id.String()}, args...)...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}

func (r *userRepo) scanOne(row *sql.Row) (model.User, error) {
	var user model.User
	var idStr string
	err := row.Scan(
		&idStr,
		&user.Email,
		&user.DisplayName,
		pq.Array(&user.NonceHashes),
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, fmt.Errorf("user: %w", ErrNotFound)
		}
		return model.User{}, fmt.Errorf("failed to query user: %w", err)
	}
	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to parse user ID: %w", err)
	}
	return user, nil
}

// nonEmpty keeps NOT NULL array columns from receiving NULL for a nil slice.
func nonEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
