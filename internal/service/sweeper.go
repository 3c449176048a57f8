package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper deletes expired token pairs on a fixed interval.
type Sweeper struct {
	tokens   *TokenService
	interval time.Duration
	log      *zap.SugaredLogger
}

func NewSweeper(tokens *TokenService, interval time.Duration, log *zap.SugaredLogger) *Sweeper {
	return &Sweeper{tokens: tokens, interval: interval, log: log}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.tokens.SweepExpired(ctx)
	if err != nil {
		s.log.Warnw("token sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Infow("expired token pairs removed", "count", n)
	}
}
