package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/signalix/emailauth/internal/logging"
	"github.com/signalix/emailauth/internal/model"
	"github.com/signalix/emailauth/internal/repo"
)

// DefaultSessionTTL is the lifetime of a bearer token
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionClaims are the claims of a bearer token. The raw session nonce
// travels as the jti; only its hash is kept on the user.
type SessionClaims struct {
	UserID string `json:"id,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated user of a request and the nonce of the
// session it presented
type Principal struct {
	User  model.User
	Nonce string
}

// SessionManager issues, validates and revokes bearer tokens
type SessionManager struct {
	secret  []byte
	ttl     time.Duration
	users   repo.UserRepo
	secrets *Secrets
	logger  logging.Logger
	now     func() time.Time
}

// NewSessionManager creates a session manager signing with secret
func NewSessionManager(secret string, ttl time.Duration, users repo.UserRepo, secrets *Secrets, logger logging.Logger) *SessionManager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionManager{
		secret:  []byte(secret),
		ttl:     ttl,
		users:   users,
		secrets: secrets,
		logger:  logger,
		now:     time.Now,
	}
}

// SetClock replaces the time source used for exp and validation
func (m *SessionManager) SetClock(now func() time.Time) { m.now = now }

// Issue starts a new session for user and returns its signed bearer token
func (m *SessionManager) Issue(ctx context.Context, user model.User) (string, error) {
	nonce, err := m.secrets.GenerateSecret()
	if err != nil {
		return "", err
	}
	hash, err := m.secrets.Hash(nonce)
	if err != nil {
		return "", err
	}
	if err := m.users.AddNonceHash(ctx, user.ID, hash); err != nil {
		return "", fmt.Errorf("failed to store session nonce: %w", err)
	}

	claims := &SessionClaims{
		UserID: user.ID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(m.now().Add(m.ttl)),
			ID:        nonce,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Validate verifies a bearer token and resolves its principal
func (m *SessionManager) Validate(ctx context.Context, tokenString string) (Principal, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)

	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		m.dropExpired(ctx, claims)
		return Principal{}, withCause(ErrTokenExpired, err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return Principal{}, withCause(ErrUnauthenticated, err)
	default:
		return Principal{}, withCause(ErrTokenMalformed, err)
	}

	if claims.UserID == "" || claims.ID == "" {
		return Principal{}, ErrUnauthenticated
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return Principal{}, withCause(ErrUnauthenticated, err)
	}
	user, err := m.users.GetByID(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return Principal{}, ErrUnauthenticated
	}
	if err != nil {
		return Principal{}, fmt.Errorf("failed to load session user: %w", err)
	}

	if _, ok := m.findHash(user, claims.ID); !ok {
		return Principal{}, ErrTokenRevoked
	}
	return Principal{User: user, Nonce: claims.ID}, nil
}

// Revoke ends the session identified by nonce. It reports whether a
// matching session was found.
func (m *SessionManager) Revoke(ctx context.Context, user model.User, nonce string) (bool, error) {
	hash, ok := m.findHash(user, nonce)
	if !ok {
		return false, nil
	}
	if err := m.users.RemoveNonceHash(ctx, user.ID, hash); err != nil {
		return false, fmt.Errorf("failed to revoke session: %w", err)
	}
	return true, nil
}

// RevokeAll ends every session of user
func (m *SessionManager) RevokeAll(ctx context.Context, user model.User) error {
	if err := m.users.ClearNonceHashes(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return nil
}

func (m *SessionManager) findHash(user model.User, nonce string) (string, bool) {
	for _, h := range user.NonceHashes {
		if m.secrets.Verify(nonce, h) {
			return h, true
		}
	}
	return "", false
}

// dropExpired removes the nonce of an expired but authentic token. Failures
// are only logged since the caller is rejected either way.
func (m *SessionManager) dropExpired(ctx context.Context, claims *SessionClaims) {
	userID, err := uuid.Parse(claims.UserID)
	if err != nil || claims.ID == "" {
		return
	}
	user, err := m.users.GetByID(ctx, userID)
	if err != nil {
		return
	}
	if _, err := m.Revoke(ctx, user, claims.ID); err != nil {
		m.logger.Warn(ctx, "failed to drop expired session", "user_id", userID, "error", err)
	}
}
