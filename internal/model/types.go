package model

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered user
type User struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	// NonceHashes holds one bcrypt hash per live session, oldest first.
	NonceHashes []string
	CreatedAt   time.Time
}

// LoginToken is a pending login request for an email address
type LoginToken struct {
	ID            uuid.UUID
	Email         string
	PassCodeHash  string
	NonceCodeHash string
	CreatedAt     time.Time
}

// EmailChangeToken is a pending request to move a user from Email to NewEmail
type EmailChangeToken struct {
	ID            uuid.UUID
	Email         string
	NewEmail      string
	PassCodeHash  string
	NonceCodeHash string
	CreatedAt     time.Time
}
