package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = pq.ErrorCode("23505")

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// NewPostgresStore wires the PostgreSQL repositories onto one connection pool
func NewPostgresStore(db *sql.DB) *Store {
	return &Store{
		Users:       NewUserRepo(db),
		LoginTokens: NewLoginTokenRepo(db),
		EmailTokens: NewEmailTokenRepo(db),
		Close: func(context.Context) error {
			return db.Close()
		},
	}
}
