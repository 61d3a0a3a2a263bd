package repo

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalix/emailauth/internal/model"
)

var testTokenID = uuid.MustParse("0b9c8d7e-6f5a-4b3c-8d2e-1f0a9b8c7d6e")

func TestLoginTokenRepo_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLoginTokenRepo(db)
	tok := model.LoginToken{ID: testTokenID, Email: "a@x.com", PassCodeHash: "p", NonceCodeHash: "n", CreatedAt: testCreated}

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+login_tokens`).
		WithArgs(testTokenID.String(), "a@x.com", "p", "n", testCreated).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(context.Background(), tok))

	mock.ExpectExec(`INSERT\s+INTO\s+login_tokens`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "login_tokens_email_key"})
	assert.ErrorIs(t, repo.Create(context.Background(), tok), ErrDuplicate)
}

func TestLoginTokenRepo_FindByEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLoginTokenRepo(db)

	mock.ExpectQuery(`(?s)FROM\s+login_tokens\s+WHERE\s+email\s*=\s*\$1`).
		WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "pass_code_hash", "nonce_code_hash", "created_at"}).
			AddRow(testTokenID.String(), "a@x.com", "p", "n", testCreated))

	got, err := repo.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, model.LoginToken{ID: testTokenID, Email: "a@x.com", PassCodeHash: "p", NonceCodeHash: "n", CreatedAt: testCreated}, got)

	mock.ExpectQuery(`FROM\s+login_tokens`).WithArgs("b@x.com").WillReturnError(sql.ErrNoRows)
	_, err = repo.FindByEmail(context.Background(), "b@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoginTokenRepo_Delete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLoginTokenRepo(db)

	mock.ExpectExec(`DELETE\s+FROM\s+login_tokens\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs(testTokenID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	deleted, err := repo.Delete(context.Background(), testTokenID)
	require.NoError(t, err)
	assert.True(t, deleted)

	mock.ExpectExec(`DELETE\s+FROM\s+login_tokens\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs(testTokenID.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	deleted, err = repo.Delete(context.Background(), testTokenID)
	require.NoError(t, err, "deleting a missing token is not an error")
	assert.False(t, deleted)
}

func TestLoginTokenRepo_DeleteCreatedBefore(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLoginTokenRepo(db)
	cutoff := testCreated.Add(-5 * time.Minute)

	mock.ExpectExec(`DELETE\s+FROM\s+login_tokens\s+WHERE\s+created_at\s*<\s*\$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteCreatedBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
}

var emailTokenColumns = []string{"id", "email", "new_email", "pass_code_hash", "nonce_code_hash", "created_at"}

func TestEmailTokenRepo_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEmailTokenRepo(db)
	tok := model.EmailChangeToken{ID: testTokenID, Email: "a@x.com", NewEmail: "c@x.com", PassCodeHash: "p", NonceCodeHash: "n", CreatedAt: testCreated}

	mock.ExpectExec(`(?s)INSERT\s+INTO\s+email_tokens`).
		WithArgs(testTokenID.String(), "a@x.com", "c@x.com", "p", "n", testCreated).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(context.Background(), tok))

	mock.ExpectExec(`INSERT\s+INTO\s+email_tokens`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "email_tokens_new_email_key"})
	assert.ErrorIs(t, repo.Create(context.Background(), tok), ErrDuplicate)
}

func TestEmailTokenRepo_Find(t *testing.T) {
	row := func() *sqlmock.Rows {
		return sqlmock.NewRows(emailTokenColumns).
			AddRow(testTokenID.String(), "a@x.com", "c@x.com", "p", "n", testCreated)
	}

	t.Run("by email", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`FROM\s+email_tokens\s+WHERE\s+email\s*=\s*\$1`).WithArgs("a@x.com").WillReturnRows(row())
		got, err := NewEmailTokenRepo(db).FindByEmail(context.Background(), "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, "c@x.com", got.NewEmail)
		assert.Equal(t, testTokenID, got.ID)
	})

	t.Run("by new email", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`FROM\s+email_tokens\s+WHERE\s+new_email\s*=\s*\$1`).WithArgs("c@x.com").WillReturnRows(row())
		got, err := NewEmailTokenRepo(db).FindByNewEmail(context.Background(), "c@x.com")
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", got.Email)
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`FROM\s+email_tokens`).WillReturnError(sql.ErrNoRows)
		_, err := NewEmailTokenRepo(db).FindByNewEmail(context.Background(), "z@x.com")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestEmailTokenRepo_DeleteCreatedBefore(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEmailTokenRepo(db)

	mock.ExpectExec(`DELETE\s+FROM\s+email_tokens\s+WHERE\s+id`).
		WithArgs(testTokenID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	deleted, err := repo.Delete(context.Background(), testTokenID)
	require.NoError(t, err)
	assert.True(t, deleted)

	mock.ExpectExec(`DELETE\s+FROM\s+email_tokens\s+WHERE\s+created_at`).
		WithArgs(testCreated).
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err := repo.DeleteCreatedBefore(context.Background(), testCreated)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
