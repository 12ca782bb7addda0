package bot

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/moviebot/internal/metrics"
	"github.com/MarcoPoloResearchLab/moviebot/internal/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const (
	deliveryModeVideo    = "video"
	deliveryModeDocument = "document"
)

// deliverFile re-sends a stored file as a video and falls back to a document once.
// A second failure is only logged.
func (h *Handler) deliverFile(chatID int64, title, fileID string) bool {
	video := tgbotapi.NewVideo(chatID, tgbotapi.FileID(fileID))
	video.Caption = fmt.Sprintf("🎬 *%s*\n\n✅ Enjoy!", markdown(title))
	video.ParseMode = tgbotapi.ModeMarkdown
	_, err := h.sender.Send(video)
	if err == nil {
		metrics.DeliveriesTotal.WithLabelValues(deliveryModeVideo, "sent").Inc()
		return true
	}
	metrics.DeliveriesTotal.WithLabelValues(deliveryModeVideo, "failed").Inc()
	h.logger.Warn("video delivery failed, retrying as document",
		zap.Int64("chat_id", chatID),
		zap.String("description", telegram.Description(err)))

	document := tgbotapi.NewDocument(chatID, tgbotapi.FileID(fileID))
	document.Caption = fmt.Sprintf("🎬 *%s*", markdown(title))
	document.ParseMode = tgbotapi.ModeMarkdown
	if _, err := h.sender.Send(document); err != nil {
		metrics.DeliveriesTotal.WithLabelValues(deliveryModeDocument, "failed").Inc()
		h.logger.Error("document delivery failed",
			zap.Int64("chat_id", chatID),
			zap.String("description", telegram.Description(err)))
		return false
	}
	metrics.DeliveriesTotal.WithLabelValues(deliveryModeDocument, "sent").Inc()
	return true
}

// repliedFileID extracts the stored file reference from the message an admin replied to.
func repliedFileID(message *tgbotapi.Message) (string, bool) {
	replied := message.ReplyToMessage
	switch {
	case replied == nil:
		return "", false
	case replied.Video != nil:
		return replied.Video.FileID, true
	case replied.Document != nil:
		return replied.Document.FileID, true
	default:
		return "", false
	}
}
