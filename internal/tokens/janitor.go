package tokens

import (
	"context"
	"time"

	"github.com/MarcoPoloResearchLab/moviebot/internal/metrics"
	"go.uber.org/zap"
)

const defaultSweepInterval = 10 * time.Minute

// Sweeper removes expired tokens.
type Sweeper interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Janitor periodically runs a token cleanup sweep until its context is cancelled.
type Janitor struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
}

// NewJanitor builds a janitor; a non-positive interval falls back to ten minutes.
func NewJanitor(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *Janitor {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{sweeper: sweeper, interval: interval, logger: logger}
}

// Run sweeps once immediately and then on every tick.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs a single cleanup pass and records its outcome.
func (j *Janitor) Sweep(ctx context.Context) int64 {
	removed, err := j.sweeper.Cleanup(ctx)
	if err != nil {
		j.logger.Warn("token cleanup failed", zap.Error(err))
		return 0
	}
	metrics.TokensCleanedTotal.Add(float64(removed))
	return removed
}
