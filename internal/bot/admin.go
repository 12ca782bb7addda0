package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/moviebot/internal/catalog"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const listLimit = 50

const (
	textAddUsage = "📥 *How to add movie:*\n\n" +
		"1. Send/forward a video file\n" +
		"2. Reply to it with:\n" +
		"`/add moviecode Movie Title`\n\n" +
		"Example: `/add dune Dune 2021`"
	textAddPartUsage = "📥 *How to add part:*\n\n" +
		"Reply to video with:\n" +
		"`/addpart moviecode 2`"
	textReplyToMedia = "❌ Reply to a video or document!"
)

var titleCaser = cases.Title(language.Und)

func (h *Handler) handleAdd(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	if message.ReplyToMessage == nil {
		h.reply(chatID, textAddUsage)
		return
	}
	fileID, ok := repliedFileID(message)
	if !ok {
		h.reply(chatID, textReplyToMedia)
		return
	}

	code, title := splitCodeAndRest(message.CommandArguments())
	code = catalog.NormalizeName(code)
	if code == "" {
		h.reply(chatID, "❌ Usage: `/add code Title`")
		return
	}
	if title == "" {
		title = titleCaser.String(strings.ReplaceAll(code, "_", " "))
	}

	if err := h.catalog.Add(ctx, catalog.NewMovie(code, title, catalog.FileIDs{catalog.FileRef(fileID)})); err != nil {
		h.logger.Error("admin add failed", zap.String("movie_code", code), zap.Error(err))
		h.reply(chatID, textTemporaryFailure)
		return
	}
	h.logger.Info("movie added", zap.String("movie_code", code))
	h.reply(chatID, fmt.Sprintf("✅ *Movie Added!*\n\n📽️ Title: %s\n🔑 Code: `%s`", markdown(title), code))
}

func (h *Handler) handleAddPart(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	if message.ReplyToMessage == nil {
		h.reply(chatID, textAddPartUsage)
		return
	}
	fileID, ok := repliedFileID(message)
	if !ok {
		h.reply(chatID, textReplyToMedia)
		return
	}

	args := strings.Fields(message.CommandArguments())
	if len(args) < 2 {
		h.reply(chatID, "❌ Usage: `/addpart code part_number`")
		return
	}
	code := catalog.NormalizeName(args[0])
	part, err := strconv.Atoi(args[1])
	if err != nil {
		h.reply(chatID, "❌ Part number must be a number!")
		return
	}

	movie, err := h.catalog.AddPart(ctx, code, part, fileID)
	switch {
	case errors.Is(err, catalog.ErrMovieNotFound):
		h.reply(chatID, fmt.Sprintf("❌ Movie `%s` not found!", code))
		return
	case errors.Is(err, catalog.ErrInvalidPart):
		h.reply(chatID, fmt.Sprintf("❌ Part number must be between 1 and %d!", catalog.MaxParts))
		return
	case err != nil:
		h.logger.Error("admin addpart failed", zap.String("movie_code", code), zap.Int("part", part), zap.Error(err))
		h.reply(chatID, textTemporaryFailure)
		return
	}
	h.reply(chatID, fmt.Sprintf("✅ *Part %d Added!*\n\n📽️ Movie: %s\n📦 Total Parts: %d", part, markdown(movie.Title), movie.Parts))
}

func (h *Handler) handleDelete(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	code := catalog.NormalizeName(message.CommandArguments())
	if code == "" {
		h.reply(chatID, "❌ Usage: `/delete moviecode`")
		return
	}
	deleted, err := h.catalog.Delete(ctx, code)
	if err != nil {
		h.logger.Error("admin delete failed", zap.String("movie_code", code), zap.Error(err))
		h.reply(chatID, textTemporaryFailure)
		return
	}
	if !deleted {
		h.reply(chatID, fmt.Sprintf("❌ `%s` not found!", code))
		return
	}
	h.reply(chatID, fmt.Sprintf("✅ `%s` deleted!", code))
}

func (h *Handler) handleList(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	movies, err := h.catalog.List(ctx, listLimit)
	if err != nil {
		h.logger.Error("admin list failed", zap.Error(err))
		h.reply(chatID, textTemporaryFailure)
		return
	}
	if len(movies) == 0 {
		h.reply(chatID, "📭 No movies yet!")
		return
	}
	var builder strings.Builder
	builder.WriteString("📽️ *Movies:*\n\n")
	for index, movie := range movies {
		fmt.Fprintf(&builder, "%d. `%s` - %s (%dp)\n", index+1, movie.Code, markdown(movie.Title), movie.Parts)
	}
	h.reply(chatID, builder.String())
}

func (h *Handler) handleStats(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	users, err := h.audience.Count(ctx)
	if err != nil {
		h.logger.Error("admin stats failed", zap.Error(err))
		h.reply(chatID, textTemporaryFailure)
		return
	}
	movies, err := h.catalog.Count(ctx)
	if err != nil {
		h.logger.Error("admin stats failed", zap.Error(err))
		h.reply(chatID, textTemporaryFailure)
		return
	}
	h.reply(chatID, fmt.Sprintf("📊 *Stats*\n\n👥 Users: %d\n🎬 Movies: %d", users, movies))
}

func (h *Handler) handleCheckSubscription(ctx context.Context, message *tgbotapi.Message) {
	subscribed := h.gate == nil || h.gate.Check(ctx, message.From.ID)
	status := "❌ Not Subscribed"
	if subscribed {
		status = "✅ Subscribed"
	}
	h.reply(message.Chat.ID, fmt.Sprintf("🔍 *Debug Info*\n\nChannel ID: `%d`\nYour Status: %s", h.channelID, status))
}

// splitCodeAndRest returns the first word and the trimmed remainder.
func splitCodeAndRest(arguments string) (string, string) {
	trimmed := strings.TrimSpace(arguments)
	index := strings.IndexFunc(trimmed, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' })
	if index < 0 {
		return trimmed, ""
	}
	return trimmed[:index], strings.TrimSpace(trimmed[index+1:])
}
