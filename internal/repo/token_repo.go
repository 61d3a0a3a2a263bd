package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/signalix/emailauth/internal/model"
)

type loginTokenRepo struct {
	db *sql.DB
}

// NewLoginTokenRepo creates a new PostgreSQL-backed LoginTokenRepo
func NewLoginTokenRepo(db *sql.DB) LoginTokenRepo {
	return &loginTokenRepo{db: db}
}

// Create inserts a login token. A second token for the same email violates
// login_tokens_email_key and yields ErrDuplicate.
func (r *loginTokenRepo) Create(ctx context.Context, t model.LoginToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO login_tokens (id, email, pass_code_hash, nonce_code_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID.String(), t.Email, t.PassCodeHash, t.NonceCodeHash, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert login token: %w", ErrDuplicate)
		}
		return fmt.Errorf("insert login token: %w", err)
	}
	return nil
}

// FindByEmail returns the login token for the email, expired or not
func (r *loginTokenRepo) FindByEmail(ctx context.Context, email string) (model.LoginToken, error) {
	var t model.LoginToken
	var idStr string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, pass_code_hash, nonce_code_hash, created_at
		FROM login_tokens
		WHERE email = $1
	`, email).Scan(&idStr, &t.Email, &t.PassCodeHash, &t.NonceCodeHash, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.LoginToken{}, fmt.Errorf("login token: %w", ErrNotFound)
		}
		return model.LoginToken{}, fmt.Errorf("query login token: %w", err)
	}
	t.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.LoginToken{}, fmt.Errorf("parse login token ID: %w", err)
	}
	return t, nil
}

// Delete removes the token and reports whether a row was removed
func (r *loginTokenRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM login_tokens WHERE id = $1`, id.String())
	if err != nil {
		return false, fmt.Errorf("delete login token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete login token: %w", err)
	}
	return n > 0, nil
}

// DeleteCreatedBefore removes every token created before cutoff
func (r *loginTokenRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM login_tokens WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired login tokens: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

type emailTokenRepo struct {
	db *sql.DB
}

// NewEmailTokenRepo creates a new PostgreSQL-backed EmailTokenRepo
func NewEmailTokenRepo(db *sql.DB) EmailTokenRepo {
	return &emailTokenRepo{db: db}
}

// Create inserts an email change token. Both email and new_email are unique.
func (r *emailTokenRepo) Create(ctx context.Context, t model.EmailChangeToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_tokens (id, email, new_email, pass_code_hash, nonce_code_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID.String(), t.Email, t.NewEmail, t.PassCodeHash, t.NonceCodeHash, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert email token: %w", ErrDuplicate)
		}
		return fmt.Errorf("insert email token: %w", err)
	}
	return nil
}

// FindByEmail returns the token requested by the user currently owning email
func (r *emailTokenRepo) FindByEmail(ctx context.Context, email string) (model.EmailChangeToken, error) {
	return r.findOne(ctx, "email", email)
}

// FindByNewEmail returns the token that requests newEmail
func (r *emailTokenRepo) FindByNewEmail(ctx context.Context, newEmail string) (model.EmailChangeToken, error) {
	return r.findOne(ctx, "new_email", newEmail)
}

func (r *emailTokenRepo) findOne(ctx context.Context, column, value string) (model.EmailChangeToken, error) {
	// column is one of two constants chosen above, never user input
	query := `
		SELECT id, email, new_email, pass_code_hash, nonce_code_hash, created_at
		FROM email_tokens
		WHERE ` + column + ` = $1`

	var t model.EmailChangeToken
	var idStr string
	err := r.db.QueryRowContext(ctx, query, value).Scan(
		&idStr, &t.Email, &t.NewEmail, &t.PassCodeHash, &t.NonceCodeHash, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.EmailChangeToken{}, fmt.Errorf("email token: %w", ErrNotFound)
		}
		return model.EmailChangeToken{}, fmt.Errorf("query email token: %w", err)
	}
	t.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.EmailChangeToken{}, fmt.Errorf("parse email token ID: %w", err)
	}
	return t, nil
}

// Delete removes the token and reports whether a row was removed
func (r *emailTokenRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM email_tokens WHERE id = $1`, id.String())
	if err != nil {
		return false, fmt.Errorf("delete email token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete email token: %w", err)
	}
	return n > 0, nil
}

// DeleteCreatedBefore removes every token created before cutoff
func (r *emailTokenRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM email_tokens WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired email tokens: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
