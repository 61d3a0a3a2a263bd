package tests

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/signalix/emailauth/internal/auth"
	"github.com/signalix/emailauth/internal/db"
	httphandler "github.com/signalix/emailauth/internal/http"
	"github.com/signalix/emailauth/internal/http/handlers"
	"github.com/signalix/emailauth/internal/logging"
	"github.com/signalix/emailauth/internal/mail"
	"github.com/signalix/emailauth/internal/repo"
)

const testJWTSecret = "test-jwt-secret-at-least-32-characters-long"

// testServer holds the server, its mail outbox and, for Postgres, the DB
type testServer struct {
	Server *httptest.Server
	Mail   *CaptureSender
	Tokens *auth.TokenStore
	DB     *sql.DB
}

type backend func(t *testing.T) (*repo.Store, *sql.DB)

func memoryBackend(t *testing.T) (*repo.Store, *sql.DB) {
	return repo.NewMemoryStore().Store(), nil
}

func postgresBackend(t *testing.T) (*repo.Store, *sql.DB) {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}
	ctx := context.Background()
	database, err := db.Open(ctx, url, logging.Nop())
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that test DB exists")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.Migrate(ctx, database), "migrations must run successfully")
	require.NoError(t, TruncateAuthTables(ctx, database), "truncate auth tables")
	return repo.NewPostgresStore(database), database
}

func newTestServer(t *testing.T, open backend, devMode bool) *testServer {
	t.Helper()

	store, database := open(t)
	logger := logging.Nop()
	outbox := &CaptureSender{}

	secrets := auth.NewSecrets(bcrypt.MinCost)
	tokens := auth.NewTokenStore(store, secrets, auth.DefaultTokenTTL)
	sessions := auth.NewSessionManager(testJWTSecret, auth.DefaultSessionTTL, store.Users, secrets, logger)
	mailer := mail.NewMailer(outbox, mail.Site{Title: "Email Auth", Author: "Tests"})
	service := auth.NewService(tokens, sessions, store.Users, secrets, mailer, logger, devMode)

	errs := handlers.NewErrorWriter(logger, devMode)
	router := httphandler.NewRouter(httphandler.RouterDeps{
		Auth:     handlers.NewAuthHandler(service, errs, logger),
		Email:    handlers.NewEmailHandler(service, errs, logger),
		Sessions: sessions,
		Logger:   logger,
	})
	t.Cleanup(router.Close)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, Mail: outbox, Tokens: tokens, DB: database}
}

// loginRequestResponse matches POST /api/login/request response
type loginRequestResponse struct {
	EmailAddress string `json:"emailAddress"`
	Nonce        string `json:"nonce"`
	Temp         string `json:"temp"`
}

// authenticateResponse matches POST /api/login/authenticate response
type authenticateResponse struct {
	Token string `json:"token"`
}

// changeResponse matches POST /api/email/request-change response
type changeResponse struct {
	EmailAddress    string `json:"emailAddress"`
	NewEmailAddress string `json:"newEmailAddress"`
	Nonce           string `json:"nonce"`
	Temp            string `json:"temp"`
}

// meResponse matches GET /api/me response
type meResponse struct {
	ID           string `json:"id"`
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
}

// errorResponse matches error JSON body
type errorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// do sends a JSON request and returns status and raw body
func (s *testServer) do(t *testing.T, method, path, bearer string, body any) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.Server.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := s.Server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

// doJSON is do plus decoding the body into out
func (s *testServer) doJSON(t *testing.T, method, path, bearer string, body, out any) int {
	t.Helper()
	status, raw := s.do(t, method, path, bearer, body)
	if out != nil {
		require.NoError(t, json.Unmarshal(raw, out), "body: %s", raw)
	}
	return status
}

// envelope builds the encodedCodes a client submits: the mailed pass-code
// and the nonce from the request response
func (s *testServer) envelope(t *testing.T, to, nonce string) string {
	t.Helper()
	msg, ok := s.Mail.Last(to)
	require.True(t, ok, "no mail sent to %s", to)
	require.NotEmpty(t, msg.Code(), "mail body carries a code: %s", msg.Body)
	nonceCode, err := auth.DecodeNonce(nonce)
	require.NoError(t, err)
	return auth.EncodeCodes(auth.Codes{PassCode: msg.Code(), NonceCode: nonceCode})
}

// login runs request + authenticate for email and returns the bearer token
func (s *testServer) login(t *testing.T, email string) string {
	t.Helper()
	var req loginRequestResponse
	status := s.doJSON(t, http.MethodPost, "/api/login/request", "", map[string]string{"emailAddress": email}, &req)
	require.Equal(t, http.StatusOK, status)

	var res authenticateResponse
	status = s.doJSON(t, http.MethodPost, "/api/login/authenticate", "", map[string]string{
		"emailAddress": email,
		"encodedCodes": s.envelope(t, email, req.Nonce),
	}, &res)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, res.Token)
	return res.Token
}
