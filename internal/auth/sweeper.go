package auth

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/signalix/emailauth/internal/logging"
)

// Sweeper periodically deletes expired verification tokens
type Sweeper struct {
	tokens   *TokenStore
	interval time.Duration
	logger   logging.Logger
	// exit is called after a panic in the loop; os.Exit outside tests.
	exit func(code int)
}

// NewSweeper creates a sweeper running every interval
func NewSweeper(tokens *TokenStore, interval time.Duration, logger logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{tokens: tokens, interval: interval, logger: logger, exit: os.Exit}
}

// Run sweeps until ctx is done. A panic while sweeping is fatal to the process.
func (s *Sweeper) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "token sweeper crashed", "panic", fmt.Sprint(r))
			s.exit(1)
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	n, err := s.tokens.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error(ctx, "token sweep failed", "error", err)
		}
		return
	}
	if n > 0 {
		s.logger.Debug(ctx, "expired tokens swept", "count", n)
	}
}
