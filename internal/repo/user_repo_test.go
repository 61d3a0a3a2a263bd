package repo

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalix/emailauth/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

var (
	testUserID  = uuid.MustParse("5d2a3c1e-8b7f-4a6d-9c0e-1f2b3a4c5d6e")
	testCreated = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

var userColumns = []string{"id", "email", "display_name", "nonce_hashes", "created_at"}

func TestUserRepo_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(`(?s)INSERT\s+INTO\s+users\s*\(email,\s*display_name,\s*nonce_hashes\).*RETURNING\s+id,\s*created_at`).
		WithArgs("a@x.com", "User 0011223344556677", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(testUserID.String(), testCreated))

	got, err := repo.Create(context.Background(), model.User{Email: "a@x.com", DisplayName: "User 0011223344556677"})
	require.NoError(t, err)
	assert.Equal(t, testUserID, got.ID)
	assert.Equal(t, testCreated, got.CreatedAt)
	assert.Equal(t, "a@x.com", got.Email)
}

func TestUserRepo_Create_Duplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	_, err := repo.Create(context.Background(), model.User{Email: "a@x.com"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestUserRepo_GetByEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(`(?s)SELECT\s+id,\s*email,\s*display_name,\s*nonce_hashes,\s*created_at\s+FROM\s+users\s+WHERE\s+email\s*=\s*\$1`).
		WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(testUserID.String(), "a@x.com", "User 1", "{h1,h2}", testCreated))

	got, err := repo.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, testUserID, got.ID)
	assert.Equal(t, []string{"h1", "h2"}, got.NonceHashes)
	assert.Equal(t, "User 1", got.DisplayName)
}

func TestUserRepo_GetByID_NotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs(testUserID.String()).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), testUserID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepo_GetByID_DBError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(`FROM\s+users`).WillReturnError(errors.New("db down"))

	_, err := repo.GetByID(context.Background(), testUserID)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "db down")
}

func TestUserRepo_Update(t *testing.T) {
	tests := []struct {
		name    string
		result  func(*sqlmock.ExpectedExec)
		wantErr error
	}{
		{"ok", func(e *sqlmock.ExpectedExec) { e.WillReturnResult(sqlmock.NewResult(0, 1)) }, nil},
		{"missing user", func(e *sqlmock.ExpectedExec) { e.WillReturnResult(sqlmock.NewResult(0, 0)) }, ErrNotFound},
		{"email taken", func(e *sqlmock.ExpectedExec) { e.WillReturnError(&pq.Error{Code: "23505"}) }, ErrDuplicate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewUserRepo(db)

			tt.result(mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+email\s*=\s*\$2,\s*display_name\s*=\s*\$3\s+WHERE\s+id\s*=\s*\$1`).
				WithArgs(testUserID.String(), "c@x.com", "User 1"))

			err := repo.Update(context.Background(), model.User{ID: testUserID, Email: "c@x.com", DisplayName: "User 1"})
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUserRepo_NonceHashes(t *testing.T) {
	ctx := context.Background()

	t.Run("add", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(`array_append\(nonce_hashes,\s*\$2\)`).
			WithArgs(testUserID.String(), "h1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, NewUserRepo(db).AddNonceHash(ctx, testUserID, "h1"))
	})

	t.Run("remove", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(`array_remove\(nonce_hashes,\s*\$2\)`).
			WithArgs(testUserID.String(), "h1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, NewUserRepo(db).RemoveNonceHash(ctx, testUserID, "h1"))
	})

	t.Run("clear", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(`SET\s+nonce_hashes\s*=\s*'\{\}'`).
			WithArgs(testUserID.String()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, NewUserRepo(db).ClearNonceHashes(ctx, testUserID))
	})

	t.Run("unknown user", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec(`array_append`).WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, NewUserRepo(db).AddNonceHash(ctx, testUserID, "h1"), ErrNotFound)
	})
}
