package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(envOf(map[string]string{
		"JWT_SECRET":   "secret",
		"DATABASE_URL": "postgres://localhost/auth",
	}))
	require.NoError(t, err)

	want := Defaults()
	want.JWTSecret = "secret"
	want.DatabaseURL = "postgres://localhost/auth"
	assert.Empty(t, cmp.Diff(want, cfg))
	assert.Equal(t, 300*time.Second, cfg.TokenTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := load(envOf(map[string]string{
		"JWT_SECRET":           "secret",
		"PORT":                 "9090",
		"STORE_DRIVER":         "mongo",
		"MONGO_URI":            "mongodb://localhost:27017",
		"MONGO_DATABASE":       "auth_test",
		"BCRYPT_COST":          "4",
		"TOKEN_TTL":            "90s",
		"SESSION_TTL":          "1h",
		"SWEEP_INTERVAL":       "10s",
		"DEV_MODE":             "true",
		"LOG_LEVEL":            "debug",
		"MAIL_PROVIDER":        "sendgrid",
		"SENDGRID_API_KEY":     "SG.key",
		"EMAIL_SENDER_ADDRESS": "noreply@example.com",
		"SITE_TITLE":           "Example",
	}))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, StoreMongo, cfg.StoreDriver)
	assert.Equal(t, "auth_test", cfg.MongoDatabase)
	assert.Equal(t, 4, cfg.BcryptCost)
	assert.Equal(t, 90*time.Second, cfg.TokenTTL)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 10*time.Second, cfg.SweepInterval)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, MailConfig{
		Provider:       MailSendGrid,
		SendGridAPIKey: "SG.key",
		SenderAddress:  "noreply@example.com",
		SenderName:     "Email Auth",
		SiteTitle:      "Example",
		SiteAuthor:     "The Email Auth Team",
	}, cfg.Mail)
}

func TestLoad_Errors(t *testing.T) {
	base := func() map[string]string {
		return map[string]string{"JWT_SECRET": "s", "STORE_DRIVER": "memory"}
	}
	tests := []struct {
		name    string
		mutate  func(m map[string]string)
		wantErr string
	}{
		{"missing jwt secret", func(m map[string]string) { delete(m, "JWT_SECRET") }, "JWT_SECRET"},
		{"postgres without url", func(m map[string]string) { m["STORE_DRIVER"] = "postgres" }, "DATABASE_URL"},
		{"mongo without uri", func(m map[string]string) { m["STORE_DRIVER"] = "mongo" }, "MONGO_URI"},
		{"unknown driver", func(m map[string]string) { m["STORE_DRIVER"] = "redis" }, "STORE_DRIVER"},
		{"bad bcrypt cost", func(m map[string]string) { m["BCRYPT_COST"] = "99" }, "BCRYPT_COST"},
		{"bad ttl", func(m map[string]string) { m["TOKEN_TTL"] = "soon" }, "TOKEN_TTL"},
		{"negative session ttl", func(m map[string]string) { m["SESSION_TTL"] = "-1h" }, "SESSION_TTL"},
		{"sendgrid without key", func(m map[string]string) { m["MAIL_PROVIDER"] = "sendgrid" }, "SENDGRID_API_KEY"},
		{"unknown mail provider", func(m map[string]string) { m["MAIL_PROVIDER"] = "pigeon" }, "MAIL_PROVIDER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base()
			tt.mutate(m)
			_, err := load(envOf(m))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
