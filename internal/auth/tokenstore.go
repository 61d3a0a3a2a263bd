package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signalix/emailauth/internal/model"
	"github.com/signalix/emailauth/internal/repo"
)

// DefaultTokenTTL is how long a verification token stays usable
const DefaultTokenTTL = 300 * time.Second

// Issued is a freshly persisted verification token with its raw codes
type Issued struct {
	ID    uuid.UUID
	Codes Codes
}

// TokenStore issues and consumes one-time login and email change tokens.
// A token older than the TTL is treated as absent on every read.
type TokenStore struct {
	users   repo.UserRepo
	logins  repo.LoginTokenRepo
	changes repo.EmailTokenRepo
	secrets *Secrets
	ttl     time.Duration
	now     func() time.Time
}

// NewTokenStore creates a token store over the given repositories
func NewTokenStore(store *repo.Store, secrets *Secrets, ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenStore{
		users:   store.Users,
		logins:  store.LoginTokens,
		changes: store.EmailTokens,
		secrets: secrets,
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock replaces the time source used for creation stamps and expiry
func (s *TokenStore) SetClock(now func() time.Time) { s.now = now }

func (s *TokenStore) expired(createdAt time.Time) bool {
	return s.now().Sub(createdAt) > s.ttl
}

// RequestLoginToken issues a login token for email
func (s *TokenStore) RequestLoginToken(ctx context.Context, email string) (Issued, error) {
	if _, ok, err := s.liveLogin(ctx, email); err != nil {
		return Issued{}, err
	} else if ok {
		return Issued{}, ErrLoginPending
	}

	issued, hashes, err := s.issue()
	if err != nil {
		return Issued{}, err
	}
	err = s.logins.Create(ctx, model.LoginToken{
		ID:            issued.ID,
		Email:         email,
		PassCodeHash:  hashes.PassCode,
		NonceCodeHash: hashes.NonceCode,
		CreatedAt:     s.now().UTC(),
	})
	if errors.Is(err, repo.ErrDuplicate) {
		return Issued{}, ErrLoginPending
	}
	if err != nil {
		return Issued{}, fmt.Errorf("failed to store login token: %w", err)
	}
	return issued, nil
}

// ConsumeLoginToken checks codes against the live login token of email and
// deletes the token whatever the outcome. Only the caller whose delete removed
// the record may verify it; every other caller gets ErrTokenNotFound.
func (s *TokenStore) ConsumeLoginToken(ctx context.Context, email string, codes Codes) (bool, error) {
	tok, ok, err := s.liveLogin(ctx, email)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrTokenNotFound
	}
	deleted, err := s.logins.Delete(ctx, tok.ID)
	if err != nil {
		return false, fmt.Errorf("failed to delete login token: %w", err)
	}
	if !deleted {
		return false, ErrTokenNotFound
	}
	return s.matches(codes, tok.PassCodeHash, tok.NonceCodeHash), nil
}

// DiscardLoginToken removes a login token, used to roll back a failed request
func (s *TokenStore) DiscardLoginToken(ctx context.Context, id uuid.UUID) error {
	if _, err := s.logins.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to discard login token: %w", err)
	}
	return nil
}

// LoginPending reports whether a live login token exists for email
func (s *TokenStore) LoginPending(ctx context.Context, email string) (bool, error) {
	_, ok, err := s.liveLogin(ctx, email)
	return ok, err
}

// RequestEmailChangeToken issues a token moving the user at email to newEmail
func (s *TokenStore) RequestEmailChangeToken(ctx context.Context, email, newEmail string) (Issued, error) {
	if err := s.checkTarget(ctx, email, newEmail); err != nil {
		return Issued{}, err
	}

	if _, err := s.users.GetByEmail(ctx, newEmail); err == nil {
		return Issued{}, ErrAddressTaken
	} else if !errors.Is(err, repo.ErrNotFound) {
		return Issued{}, fmt.Errorf("failed to look up user: %w", err)
	}

	if _, ok, err := s.liveChange(ctx, s.changes.FindByEmail, email); err != nil {
		return Issued{}, err
	} else if ok {
		return Issued{}, ErrEmailChangePending
	}

	issued, hashes, err := s.issue()
	if err != nil {
		return Issued{}, err
	}
	err = s.changes.Create(ctx, model.EmailChangeToken{
		ID:            issued.ID,
		Email:         email,
		NewEmail:      newEmail,
		PassCodeHash:  hashes.PassCode,
		NonceCodeHash: hashes.NonceCode,
		CreatedAt:     s.now().UTC(),
	})
	if errors.Is(err, repo.ErrDuplicate) {
		// lost a race; report the conflict the winner created
		if err := s.checkTarget(ctx, email, newEmail); err != nil {
			return Issued{}, err
		}
		return Issued{}, ErrEmailChangePending
	}
	if err != nil {
		return Issued{}, fmt.Errorf("failed to store email change token: %w", err)
	}
	return issued, nil
}

// checkTarget fails when a live change token already targets newEmail
func (s *TokenStore) checkTarget(ctx context.Context, email, newEmail string) error {
	tok, ok, err := s.liveChange(ctx, s.changes.FindByNewEmail, newEmail)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if tok.Email == email {
		return ErrEmailChangePending
	}
	return ErrAddressUnavailable
}

// ConsumeEmailChangeToken checks codes against the live change token of
// email, deletes it and returns the requested address. As with login tokens,
// only the caller that removed the record gets a verdict.
func (s *TokenStore) ConsumeEmailChangeToken(ctx context.Context, email string, codes Codes) (string, bool, error) {
	tok, ok, err := s.liveChange(ctx, s.changes.FindByEmail, email)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, ErrTokenNotFound
	}
	deleted, err := s.changes.Delete(ctx, tok.ID)
	if err != nil {
		return "", false, fmt.Errorf("failed to delete email change token: %w", err)
	}
	if !deleted {
		return "", false, ErrTokenNotFound
	}
	return tok.NewEmail, s.matches(codes, tok.PassCodeHash, tok.NonceCodeHash), nil
}

// DiscardEmailChangeToken removes an email change token
func (s *TokenStore) DiscardEmailChangeToken(ctx context.Context, id uuid.UUID) error {
	if _, err := s.changes.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to discard email change token: %w", err)
	}
	return nil
}

// EmailChangeTargets reports whether a live change token requests newEmail
func (s *TokenStore) EmailChangeTargets(ctx context.Context, newEmail string) (bool, error) {
	_, ok, err := s.liveChange(ctx, s.changes.FindByNewEmail, newEmail)
	return ok, err
}

// Sweep deletes every token older than the TTL and returns how many went
func (s *TokenStore) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.ttl)
	logins, err := s.logins.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep login tokens: %w", err)
	}
	changes, err := s.changes.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		return logins, fmt.Errorf("failed to sweep email change tokens: %w", err)
	}
	return logins + changes, nil
}

func (s *TokenStore) liveLogin(ctx context.Context, email string) (model.LoginToken, bool, error) {
	tok, err := s.logins.FindByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return model.LoginToken{}, false, nil
	}
	if err != nil {
		return model.LoginToken{}, false, fmt.Errorf("failed to find login token: %w", err)
	}
	if s.expired(tok.CreatedAt) {
		if _, err := s.logins.Delete(ctx, tok.ID); err != nil {
			return model.LoginToken{}, false, fmt.Errorf("failed to delete expired login token: %w", err)
		}
		return model.LoginToken{}, false, nil
	}
	return tok, true, nil
}

func (s *TokenStore) liveChange(
	ctx context.Context,
	find func(context.Context, string) (model.EmailChangeToken, error),
	key string,
) (model.EmailChangeToken, bool, error) {
	tok, err := find(ctx, key)
	if errors.Is(err, repo.ErrNotFound) {
		return model.EmailChangeToken{}, false, nil
	}
	if err != nil {
		return model.EmailChangeToken{}, false, fmt.Errorf("failed to find email change token: %w", err)
	}
	if s.expired(tok.CreatedAt) {
		if _, err := s.changes.Delete(ctx, tok.ID); err != nil {
			return model.EmailChangeToken{}, false, fmt.Errorf("failed to delete expired email change token: %w", err)
		}
		return model.EmailChangeToken{}, false, nil
	}
	return tok, true, nil
}

// issue generates raw codes and their hashes
func (s *TokenStore) issue() (Issued, Codes, error) {
	pass, err := s.secrets.GenerateSecret()
	if err != nil {
		return Issued{}, Codes{}, err
	}
	nonce, err := s.secrets.GenerateSecret()
	if err != nil {
		return Issued{}, Codes{}, err
	}
	passHash, err := s.secrets.Hash(pass)
	if err != nil {
		return Issued{}, Codes{}, err
	}
	nonceHash, err := s.secrets.Hash(nonce)
	if err != nil {
		return Issued{}, Codes{}, err
	}
	return Issued{ID: uuid.New(), Codes: Codes{PassCode: pass, NonceCode: nonce}},
		Codes{PassCode: passHash, NonceCode: nonceHash}, nil
}

// matches verifies both codes; both comparisons always run
func (s *TokenStore) matches(codes Codes, passHash, nonceHash string) bool {
	passOK := s.secrets.Verify(codes.PassCode, passHash)
	nonceOK := s.secrets.Verify(codes.NonceCode, nonceHash)
	return passOK && nonceOK
}
