package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/MarcoPoloResearchLab/moviebot/internal/delivery"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (h *Handler) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.From == nil {
		return
	}
	action, args := parseCallback(query.Data)
	switch {
	case action == callbackMovie && len(args) == 1:
		h.handleMovieCallback(ctx, query, args[0])
	case action == callbackPart && len(args) == 2:
		h.handlePartCallback(ctx, query, args[0], args[1])
	case action == callbackBack && len(args) == 1:
		h.handleBackCallback(ctx, query, args[0])
	default:
		h.answer(query, "", false)
	}
}

func (h *Handler) handleMovieCallback(ctx context.Context, query *tgbotapi.CallbackQuery, movieCode string) {
	card, err := h.flow.MovieCard(ctx, movieCode)
	if err != nil {
		h.logger.Error("movie card lookup failed", zap.String("movie_code", movieCode), zap.Error(err))
	}
	if card == nil {
		h.answer(query, textNotFoundAlert, true)
		return
	}
	caption, keyboard := cardContent(*card, false)
	h.edit(query, caption, keyboard)
	h.answer(query, "", false)
}

func (h *Handler) handlePartCallback(ctx context.Context, query *tgbotapi.CallbackQuery, movieCode, rawPart string) {
	part, err := strconv.Atoi(rawPart)
	if err != nil {
		h.answer(query, textNotFoundAlert, true)
		return
	}

	outcome, err := h.flow.SelectPart(ctx, query.From.ID, movieCode, part)
	if err != nil {
		h.logger.Error("part selection failed",
			zap.Int64("user_id", query.From.ID),
			zap.String("movie_code", movieCode),
			zap.Int("part", part),
			zap.Error(err))
		h.answer(query, textTemporaryFailure, true)
		return
	}

	switch outcome.State {
	case delivery.StateAwaitSubscription:
		h.answer(query, textJoinFirstAlert, true)
	case delivery.StateIssueLink:
		h.answer(query, textGenerating, false)
		keyboard := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("🔓 Download", outcome.Link)),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("◀️ Back", callbackBack+":"+outcome.Movie.Code)),
		)
		text := fmt.Sprintf("✅ *%s* - Part %d\n\nClick to download:", markdown(outcome.Movie.Title), outcome.Part)
		h.edit(query, text, keyboard)
	default:
		h.answer(query, textNotFoundAlert, true)
	}
}

func (h *Handler) handleBackCallback(ctx context.Context, query *tgbotapi.CallbackQuery, movieCode string) {
	movie, parts, err := h.flow.PartChooser(ctx, movieCode)
	if err != nil {
		h.logger.Error("part chooser lookup failed", zap.String("movie_code", movieCode), zap.Error(err))
	}
	if movie == nil || len(parts) == 0 {
		h.answer(query, textNotFoundAlert, true)
		return
	}
	text := fmt.Sprintf("🎬 *%s*\n\nSelect part:", markdown(movie.Title))
	h.edit(query, text, partKeyboard(movie.Code, parts))
	h.answer(query, "", false)
}

func (h *Handler) edit(query *tgbotapi.CallbackQuery, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	if query.Message == nil || query.Message.Chat == nil {
		return
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(query.Message.Chat.ID, query.Message.MessageID, text, keyboard)
	edit.ParseMode = tgbotapi.ModeMarkdown
	h.request(edit)
}

func (h *Handler) answer(query *tgbotapi.CallbackQuery, text string, alert bool) {
	config := tgbotapi.NewCallback(query.ID, text)
	if alert {
		config = tgbotapi.NewCallbackWithAlert(query.ID, text)
	}
	h.request(config)
}
