package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/moviebot/internal/metrics"
	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Poller runs the getUpdates loop and retries transient failures with backoff.
type Poller struct {
	api            UpdateFetcher
	timeoutSeconds int
	logger         *zap.Logger
	newBackOff     func() backoff.BackOff
}

// NewPoller builds a long-poll receiver.
func NewPoller(api UpdateFetcher, timeoutSeconds int, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{api: api, timeoutSeconds: timeoutSeconds, logger: logger, newBackOff: defaultBackOff}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	return b
}

// Run fetches updates until ctx is cancelled and hands each one to dispatch in order.
func (p *Poller) Run(ctx context.Context, dispatch func(tgbotapi.Update)) error {
	offset := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		var updates []tgbotapi.Update
		operation := func() error {
			config := tgbotapi.NewUpdate(offset)
			config.Timeout = p.timeoutSeconds
			fetched, err := p.api.GetUpdates(config)
			if err != nil {
				return err
			}
			updates = fetched
			return nil
		}
		notify := func(err error, delay time.Duration) {
			metrics.ExternalFailuresTotal.WithLabelValues("telegram").Inc()
			p.logger.Warn("getUpdates failed, retrying",
				zap.Error(err),
				zap.Duration("next_retry_in", delay))
		}

		if err := backoff.RetryNotify(operation, backoff.WithContext(p.newBackOff(), ctx), notify); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("telegram: poll updates: %w", err)
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			dispatch(update)
		}
	}
}
