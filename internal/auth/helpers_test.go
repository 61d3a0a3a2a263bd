package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/signalix/emailauth/internal/logging"
	"github.com/signalix/emailauth/internal/repo"
)

// clock is a manually advanced time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMail struct {
	kind string
	to   string
	arg  string
}

// fakeMailer records messages and fails the kinds listed in fail
type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail map[string]bool
}

func (m *fakeMailer) record(kind, to, arg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[kind] {
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, sentMail{kind: kind, to: to, arg: arg})
	return nil
}

func (m *fakeMailer) SendLoginCode(_ context.Context, to, passCode string) error {
	return m.record("login", to, passCode)
}

func (m *fakeMailer) SendEmailChangeCode(_ context.Context, to, passCode string) error {
	return m.record("change", to, passCode)
}

func (m *fakeMailer) SendEmailChangeNotice(_ context.Context, to, newEmail string) error {
	return m.record("notice", to, newEmail)
}

func (m *fakeMailer) last(kind string) (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].kind == kind {
			return m.sent[i], true
		}
	}
	return sentMail{}, false
}

type fixture struct {
	mem      *repo.MemoryStore
	store    *repo.Store
	clock    *clock
	secrets  *Secrets
	tokens   *TokenStore
	sessions *SessionManager
	mailer   *fakeMailer
	service  *Service
}

func newFixture(t *testing.T, devMode bool) *fixture {
	t.Helper()
	f := &fixture{
		mem:     repo.NewMemoryStore(),
		clock:   newClock(),
		secrets: NewSecrets(bcrypt.MinCost),
		mailer:  &fakeMailer{fail: map[string]bool{}},
	}
	f.store = f.mem.Store()
	f.tokens = NewTokenStore(f.store, f.secrets, DefaultTokenTTL)
	f.tokens.SetClock(f.clock.Now)
	f.sessions = NewSessionManager("test-secret", DefaultSessionTTL, f.store.Users, f.secrets, logging.Nop())
	f.sessions.SetClock(f.clock.Now)
	f.service = NewService(f.tokens, f.sessions, f.store.Users, f.secrets, f.mailer, logging.Nop(), devMode)
	return f
}

// login runs the full login flow for email and returns the bearer token
func (f *fixture) login(t *testing.T, email string) string {
	t.Helper()
	req, err := f.service.RequestLogin(context.Background(), email)
	if err != nil {
		t.Fatalf("request login: %v", err)
	}
	token, err := f.service.AuthenticateLogin(context.Background(), email, f.envelope(t, "login", req.Nonce))
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return token
}

// envelope rebuilds the encoded codes a client would submit from the mailed
// pass-code and the nonce of the request response
func (f *fixture) envelope(t *testing.T, kind, nonce string) string {
	t.Helper()
	mail, ok := f.mailer.last(kind)
	if !ok {
		t.Fatalf("no %s mail sent", kind)
	}
	nonceCode, err := DecodeNonce(nonce)
	if err != nil {
		t.Fatalf("decode nonce: %v", err)
	}
	return EncodeCodes(Codes{PassCode: mail.arg, NonceCode: nonceCode})
}
