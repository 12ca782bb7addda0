package telegram

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/moviebot/internal/metrics"
	"github.com/alitto/pond/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// UpdateHandler processes one inbound update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

// Dispatcher runs every update on its own pooled task.
type Dispatcher struct {
	ctx     context.Context
	pool    pond.Pool
	handler UpdateHandler
	logger  *zap.Logger
}

// NewDispatcher starts a worker pool bound to ctx.
func NewDispatcher(ctx context.Context, handler UpdateHandler, workers int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = 1
	}
	pool := pond.NewPool(
		workers,
		pond.WithQueueSize(workers*64),
		pond.WithContext(ctx),
	)
	logger.Info("update worker pool created", zap.Int("workers", workers))
	return &Dispatcher{ctx: ctx, pool: pool, handler: handler, logger: logger}
}

// Dispatch queues the update for processing.
func (d *Dispatcher) Dispatch(update tgbotapi.Update) {
	metrics.UpdatesTotal.WithLabelValues(UpdateKind(update)).Inc()
	d.pool.Submit(func() {
		defer d.recover(update)
		d.handler.HandleUpdate(d.ctx, update)
	})
}

// Stop waits for queued updates to finish.
func (d *Dispatcher) Stop() {
	d.pool.StopAndWait()
	d.logger.Info("update worker pool stopped",
		zap.Uint64("completed", d.pool.CompletedTasks()),
		zap.Uint64("failed", d.pool.FailedTasks()))
}

func (d *Dispatcher) recover(update tgbotapi.Update) {
	if recovered := recover(); recovered != nil {
		d.logger.Error("update handler panicked",
			zap.Int("update_id", update.UpdateID),
			zap.String("kind", UpdateKind(update)),
			zap.String("panic", fmt.Sprint(recovered)))
	}
}

// UpdateKind labels an update for logging and metrics.
func UpdateKind(update tgbotapi.Update) string {
	switch {
	case update.CallbackQuery != nil:
		return "callback_query"
	case update.Message != nil && update.Message.IsCommand():
		return "command"
	case update.Message != nil:
		return "message"
	default:
		return "other"
	}
}
