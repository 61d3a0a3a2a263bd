package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalix/emailauth/internal/logging"
	"github.com/signalix/emailauth/internal/model"
	"github.com/signalix/emailauth/internal/repo"
)

// Mailer delivers the messages of the login and email change flows
type Mailer interface {
	SendLoginCode(ctx context.Context, to, passCode string) error
	SendEmailChangeCode(ctx context.Context, to, passCode string) error
	SendEmailChangeNotice(ctx context.Context, to, newEmail string) error
}

// LoginRequest is returned after a login token was sent
type LoginRequest struct {
	Email string
	Nonce string
	// Temp carries the full encoded codes in dev mode only.
	Temp string
}

// EmailChangeRequest is returned after an email change token was sent
type EmailChangeRequest struct {
	Email    string
	NewEmail string
	Nonce    string
	Temp     string
}

// Service orchestrates the login and email change flows
type Service struct {
	tokens   *TokenStore
	sessions *SessionManager
	users    repo.UserRepo
	secrets  *Secrets
	mailer   Mailer
	logger   logging.Logger
	devMode  bool
}

// NewService creates a new auth service
func NewService(
	tokens *TokenStore,
	sessions *SessionManager,
	users repo.UserRepo,
	secrets *Secrets,
	mailer Mailer,
	logger logging.Logger,
	devMode bool,
) *Service {
	return &Service{
		tokens:   tokens,
		sessions: sessions,
		users:    users,
		secrets:  secrets,
		mailer:   mailer,
		logger:   logger,
		devMode:  devMode,
	}
}

// RequestLogin sends a login pass-code to email
func (s *Service) RequestLogin(ctx context.Context, email string) (LoginRequest, error) {
	email, err := ValidateEmail(email)
	if err != nil {
		return LoginRequest{}, err
	}

	targeted, err := s.tokens.EmailChangeTargets(ctx, email)
	if err != nil {
		return LoginRequest{}, err
	}
	if targeted {
		return LoginRequest{}, ErrAddressUnavailable
	}

	issued, err := s.tokens.RequestLoginToken(ctx, email)
	if err != nil {
		return LoginRequest{}, err
	}

	if err := s.mailer.SendLoginCode(ctx, email, issued.Codes.PassCode); err != nil {
		s.logger.Error(ctx, "login code delivery failed", "email", logging.MaskEmail(email), "error", err)
		if derr := s.tokens.DiscardLoginToken(ctx, issued.ID); derr != nil {
			s.logger.Error(ctx, "failed to roll back login token", "token_id", issued.ID, "error", derr)
		}
		return LoginRequest{}, withCause(ErrDeliveryFailed, err)
	}

	s.logger.Info(ctx, "login token requested", "email", logging.MaskEmail(email))
	return LoginRequest{
		Email: email,
		Nonce: EncodeNonce(issued.Codes.NonceCode),
		Temp:  s.temp(issued.Codes),
	}, nil
}

// AuthenticateLogin exchanges the encoded codes for a bearer token. The
// user is created on the first successful login.
func (s *Service) AuthenticateLogin(ctx context.Context, email, encoded string) (string, error) {
	email, err := ValidateEmail(email)
	if err != nil {
		return "", err
	}
	codes, err := DecodeCodes(encoded)
	if err != nil || !codes.Complete() {
		return "", ErrCodesRequired
	}

	ok, err := s.tokens.ConsumeLoginToken(ctx, email, codes)
	if errors.Is(err, ErrTokenNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if !ok {
		s.logger.Warn(ctx, "login codes rejected", "email", logging.MaskEmail(email))
		return "", ErrInvalidCredentials
	}

	user, err := s.findOrCreateUser(ctx, email)
	if err != nil {
		return "", err
	}

	token, err := s.sessions.Issue(ctx, user)
	if err != nil {
		return "", err
	}
	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return token, nil
}

func (s *Service) findOrCreateUser(ctx context.Context, email string) (model.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return model.User{}, fmt.Errorf("failed to look up user: %w", err)
	}

	name, err := s.secrets.DisplayName()
	if err != nil {
		return model.User{}, err
	}
	user, err = s.users.Create(ctx, model.User{Email: email, DisplayName: name})
	if errors.Is(err, repo.ErrDuplicate) {
		// created concurrently by another login
		user, err = s.users.GetByEmail(ctx, email)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Logout ends the session the principal authenticated with
func (s *Service) Logout(ctx context.Context, p Principal) error {
	if _, err := s.sessions.Revoke(ctx, p.User, p.Nonce); err != nil {
		return err
	}
	s.logger.Info(ctx, "user logged out", "user_id", p.User.ID)
	return nil
}

// LogoutAll ends every session of the principal's user
func (s *Service) LogoutAll(ctx context.Context, p Principal) error {
	if err := s.sessions.RevokeAll(ctx, p.User); err != nil {
		return err
	}
	s.logger.Info(ctx, "user logged out everywhere", "user_id", p.User.ID)
	return nil
}

// RequestEmailChange sends a pass-code to newEmail and notifies the current address
func (s *Service) RequestEmailChange(ctx context.Context, p Principal, newEmail string) (EmailChangeRequest, error) {
	newEmail, err := ValidateEmail(newEmail)
	if err != nil {
		return EmailChangeRequest{}, err
	}

	pending, err := s.tokens.LoginPending(ctx, newEmail)
	if err != nil {
		return EmailChangeRequest{}, err
	}
	if pending {
		return EmailChangeRequest{}, ErrAddressUnavailable
	}

	email := p.User.Email
	issued, err := s.tokens.RequestEmailChangeToken(ctx, email, newEmail)
	if err != nil {
		return EmailChangeRequest{}, err
	}

	if err := s.mailer.SendEmailChangeCode(ctx, newEmail, issued.Codes.PassCode); err != nil {
		s.logger.Error(ctx, "email change code delivery failed", "new_email", logging.MaskEmail(newEmail), "error", err)
		if derr := s.tokens.DiscardEmailChangeToken(ctx, issued.ID); derr != nil {
			s.logger.Error(ctx, "failed to roll back email change token", "token_id", issued.ID, "error", derr)
		}
		return EmailChangeRequest{}, withCause(ErrDeliveryFailed, err)
	}

	if err := s.mailer.SendEmailChangeNotice(ctx, email, newEmail); err != nil {
		s.logger.Warn(ctx, "email change notice not delivered", "email", logging.MaskEmail(email), "error", err)
	}

	s.logger.Info(ctx, "email change requested", "user_id", p.User.ID, "new_email", logging.MaskEmail(newEmail))
	return EmailChangeRequest{
		Email:    email,
		NewEmail: newEmail,
		Nonce:    EncodeNonce(issued.Codes.NonceCode),
		Temp:     s.temp(issued.Codes),
	}, nil
}

// VerifyEmailChange moves the principal's user to the requested address
func (s *Service) VerifyEmailChange(ctx context.Context, p Principal, encoded string) error {
	codes, err := DecodeCodes(encoded)
	if err != nil || !codes.Complete() {
		return ErrChangeCodesRequired
	}

	newEmail, ok, err := s.tokens.ConsumeEmailChangeToken(ctx, p.User.Email, codes)
	if errors.Is(err, ErrTokenNotFound) {
		return ErrChangeNotRequested
	}
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn(ctx, "email change codes rejected", "user_id", p.User.ID)
		return ErrChangeCodesInvalid
	}

	user := p.User
	user.Email = newEmail
	if err := s.users.Update(ctx, user); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return ErrAddressTaken
		}
		return fmt.Errorf("failed to update email: %w", err)
	}
	s.logger.Info(ctx, "email changed", "user_id", user.ID)
	return nil
}

func (s *Service) temp(c Codes) string {
	if !s.devMode {
		return ""
	}
	return EncodeCodes(c)
}
