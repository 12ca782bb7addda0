package bot

import (
	"context"
	"fmt"

	"github.com/MarcoPoloResearchLab/moviebot/internal/metrics"
	"github.com/MarcoPoloResearchLab/moviebot/internal/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// BroadcastResult counts per-recipient outcomes of one broadcast run.
type BroadcastResult struct {
	RunID  string
	Sent   int
	Failed int
}

func (h *Handler) handleBroadcast(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	if message.ReplyToMessage == nil {
		h.reply(chatID, "❌ Reply to a message to broadcast!")
		return
	}

	status, statusSent := h.send(tgbotapi.NewMessage(chatID, "📢 Broadcasting..."))
	result, err := h.Broadcast(ctx, chatID, message.ReplyToMessage.MessageID)
	if err != nil {
		h.logger.Error("broadcast failed", zap.Error(err))
		h.reply(chatID, textTemporaryFailure)
		return
	}

	summary := fmt.Sprintf("📢 Done!\n✅ Sent: %d\n❌ Failed: %d", result.Sent, result.Failed)
	if statusSent {
		h.request(tgbotapi.NewEditMessageText(chatID, status.MessageID, summary))
		return
	}
	h.send(tgbotapi.NewMessage(chatID, summary))
}

// Broadcast copies one message to every known user in turn. Individual failures are
// counted and never retried.
func (h *Handler) Broadcast(ctx context.Context, fromChatID int64, messageID int) (BroadcastResult, error) {
	runID, err := h.newRunID()
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("bot: broadcast run id: %w", err)
	}
	recipients, err := h.audience.ListIDs(ctx)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("bot: broadcast recipients: %w", err)
	}

	result := BroadcastResult{RunID: runID.String()}
	logger := h.logger.With(zap.String("broadcast_run_id", result.RunID))
	logger.Info("broadcast started", zap.Int("recipients", len(recipients)))

	for _, recipient := range recipients {
		if ctx.Err() != nil {
			result.Failed += len(recipients) - result.Sent - result.Failed
			break
		}
		if _, err := h.sender.Request(tgbotapi.NewCopyMessage(recipient, fromChatID, messageID)); err != nil {
			result.Failed++
			metrics.BroadcastMessagesTotal.WithLabelValues("failed").Inc()
			logger.Debug("broadcast copy failed",
				zap.Int64("user_id", recipient),
				zap.String("description", telegram.Description(err)))
			continue
		}
		result.Sent++
		metrics.BroadcastMessagesTotal.WithLabelValues("sent").Inc()
	}

	logger.Info("broadcast finished", zap.Int("sent", result.Sent), zap.Int("failed", result.Failed))
	return result, nil
}
