package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/signalix/emailauth/internal/auth"
	"github.com/signalix/emailauth/internal/config"
	"github.com/signalix/emailauth/internal/db"
	httphandler "github.com/signalix/emailauth/internal/http"
	"github.com/signalix/emailauth/internal/http/handlers"
	"github.com/signalix/emailauth/internal/logging"
	"github.com/signalix/emailauth/internal/mail"
	"github.com/signalix/emailauth/internal/repo"
	"github.com/signalix/emailauth/internal/repo/mongostore"
)

func main() {
	// .env is optional, real environment variables win
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, closeLog, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = closeLog() }()

	if err := run(cfg, logger); err != nil {
		logger.Error(context.Background(), "server stopped with error", "error", err)
		_ = closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if store.Close == nil {
			return
		}
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn(closeCtx, "failed to close store", "error", err)
		}
	}()

	secrets := auth.NewSecrets(cfg.BcryptCost)
	tokens := auth.NewTokenStore(store, secrets, cfg.TokenTTL)
	sessions := auth.NewSessionManager(cfg.JWTSecret, cfg.SessionTTL, store.Users, secrets, logger)
	mailer := mail.NewMailer(newSender(cfg, logger), mail.Site{Title: cfg.Mail.SiteTitle, Author: cfg.Mail.SiteAuthor})
	service := auth.NewService(tokens, sessions, store.Users, secrets, mailer, logger, cfg.DevMode)

	go auth.NewSweeper(tokens, cfg.SweepInterval, logger).Run(ctx)

	errs := handlers.NewErrorWriter(logger, cfg.DevMode)
	router := httphandler.NewRouter(httphandler.RouterDeps{
		Auth:     handlers.NewAuthHandler(service, errs, logger),
		Email:    handlers.NewEmailHandler(service, errs, logger),
		Sessions: sessions,
		Logger:   logger,
	})
	defer router.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info(ctx, "server starting", "port", cfg.Port, "store", cfg.StoreDriver, "mail", cfg.Mail.Provider, "dev_mode", cfg.DevMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info(shutdownCtx, "server exited")
	return nil
}

// openStore connects the configured persistence backend
func openStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (*repo.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		store, err := mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.TokenTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to open mongo store: %w", err)
		}
		return store, nil
	case config.StoreMemory:
		logger.Warn(ctx, "using in-memory store, data is lost on restart")
		return repo.NewMemoryStore().Store(), nil
	default:
		database, err := db.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Migrate(ctx, database); err != nil {
			_ = database.Close()
			return nil, err
		}
		store := repo.NewPostgresStore(database)
		return store, nil
	}
}

func newSender(cfg *config.Config, logger logging.Logger) mail.Sender {
	if cfg.Mail.Provider == config.MailSendGrid {
		return mail.NewSendGridSender(cfg.Mail.SendGridAPIKey, cfg.Mail.SenderAddress, cfg.Mail.SenderName)
	}
	return mail.NewLogSender(logger)
}
