package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Store drivers accepted by STORE_DRIVER
const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
	StoreMemory   = "memory"
)

// Mail providers accepted by MAIL_PROVIDER
const (
	MailSendGrid = "sendgrid"
	MailLog      = "log"
)

// Config holds the application configuration
type Config struct {
	Port      string
	JWTSecret string
	DevMode   bool

	StoreDriver   string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	BcryptCost    int
	TokenTTL      time.Duration
	SessionTTL    time.Duration
	SweepInterval time.Duration

	LogLevel string
	LogFile  string

	Mail MailConfig
}

// MailConfig configures outgoing email
type MailConfig struct {
	Provider       string
	SendGridAPIKey string
	SenderAddress  string
	SenderName     string
	SiteTitle      string
	SiteAuthor     string
}

// Defaults returns the configuration used when no variable overrides a field
func Defaults() *Config {
	return &Config{
		Port:          "8080",
		StoreDriver:   StorePostgres,
		MongoDatabase: "emailauth",
		BcryptCost:    bcrypt.DefaultCost,
		TokenTTL:      300 * time.Second,
		SessionTTL:    7 * 24 * time.Hour,
		SweepInterval: time.Minute,
		LogLevel:      "info",
		Mail: MailConfig{
			Provider:   MailLog,
			SenderName: "Email Auth",
			SiteTitle:  "Email Auth",
			SiteAuthor: "The Email Auth Team",
		},
	}
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	cfg := Defaults()

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	str("PORT", &cfg.Port)
	str("STORE_DRIVER", &cfg.StoreDriver)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("MONGO_URI", &cfg.MongoURI)
	str("MONGO_DATABASE", &cfg.MongoDatabase)
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FILE", &cfg.LogFile)
	str("MAIL_PROVIDER", &cfg.Mail.Provider)
	str("SENDGRID_API_KEY", &cfg.Mail.SendGridAPIKey)
	str("EMAIL_SENDER_ADDRESS", &cfg.Mail.SenderAddress)
	str("EMAIL_SENDER_NAME", &cfg.Mail.SenderName)
	str("SITE_TITLE", &cfg.Mail.SiteTitle)
	str("SITE_AUTHOR", &cfg.Mail.SiteAuthor)

	cfg.DevMode = getenv("DEV_MODE") == "true"

	// JWT_SECRET (required)
	cfg.JWTSecret = getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	if v := getenv("BCRYPT_COST"); v != "" {
		cost, err := strconv.Atoi(v)
		if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return nil, fmt.Errorf("BCRYPT_COST must be an integer in [%d, %d], got %q", bcrypt.MinCost, bcrypt.MaxCost, v)
		}
		cfg.BcryptCost = cost
	}

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"TOKEN_TTL", &cfg.TokenTTL},
		{"SESSION_TTL", &cfg.SessionTTL},
		{"SWEEP_INTERVAL", &cfg.SweepInterval},
	} {
		v := getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive duration, got %q", d.key, v)
		}
		*d.dst = parsed
	}

	switch cfg.StoreDriver {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable is required")
		}
	case StoreMongo:
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGO_URI environment variable is required")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	switch cfg.Mail.Provider {
	case MailSendGrid:
		if cfg.Mail.SendGridAPIKey == "" {
			return nil, fmt.Errorf("SENDGRID_API_KEY environment variable is required")
		}
		if cfg.Mail.SenderAddress == "" {
			return nil, fmt.Errorf("EMAIL_SENDER_ADDRESS environment variable is required")
		}
	case MailLog:
	default:
		return nil, fmt.Errorf("unknown MAIL_PROVIDER %q", cfg.Mail.Provider)
	}

	return cfg, nil
}
