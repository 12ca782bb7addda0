package bot

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/MarcoPoloResearchLab/moviebot/internal/catalog"
	"github.com/MarcoPoloResearchLab/moviebot/internal/delivery"
	"github.com/MarcoPoloResearchLab/moviebot/internal/metadata"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	textWelcome = "🎬 *Welcome to Movie Bot!*\n\n" +
		"Send me any movie name to search.\n\n" +
		"*Examples:*\n• Dune\n• Avengers\n• Interstellar"
	textHelp = "🎬 *Movie Bot*\n\n" +
		"Send a movie name to search.\n\n" +
		"*Examples:*\n• Dune\n• Avengers\n• Interstellar"
	textAdminHelp = "\n\n*Admin:*\n" +
		"`/add` `/addpart` `/delete`\n" +
		"`/list` `/stats` `/broadcast` `/checksub`"
	textJoinRequired     = "🔒 *Join to Continue*\n\nYou must join our channel first."
	textLinkExpired      = "⏰ Link expired! Please search again."
	textFileUnavailable  = "❌ File not available. Try searching again."
	textQueryTooShort    = "❌ Enter at least 2 characters!"
	textMovieNotFound    = "❌ Movie not found! Check spelling."
	textTemporaryFailure = "⚠️ Something went wrong. Please try again in a moment."
	textNotFoundAlert    = "❌ Not found!"
	textJoinFirstAlert   = "❌ Join channel first!"
	textGenerating       = "🔄 Generating..."

	partsPerRow         = 3
	cardOverviewPreview = 200

	callbackMovie = "movie"
	callbackPart  = "part"
	callbackBack  = "back"
)

func markdown(text string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, text)
}

func joinPrompt(chatID int64, channelLink, retryLink string) tgbotapi.MessageConfig {
	message := tgbotapi.NewMessage(chatID, textJoinRequired)
	message.ParseMode = tgbotapi.ModeMarkdown
	var rows [][]tgbotapi.InlineKeyboardButton
	if channelLink != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("✅ Join Channel", channelLink)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("🔄 Try Again", retryLink)))
	message.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	return message
}

func partKeyboard(movieCode string, parts []int) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, part := range parts {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("📦 Part %d", part),
			partCallbackData(movieCode, part),
		))
		if len(row) == partsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func partChooserText(movie *catalog.Movie, parts []int) string {
	return fmt.Sprintf("🎬 *%s*\n\nThis movie has %d parts.\nSelect one:", markdown(movie.Title), len(parts))
}

func partChooserMessage(chatID int64, movie *catalog.Movie, parts []int) tgbotapi.MessageConfig {
	message := tgbotapi.NewMessage(chatID, partChooserText(movie, parts))
	message.ParseMode = tgbotapi.ModeMarkdown
	message.ReplyMarkup = partKeyboard(movie.Code, parts)
	return message
}

func downloadMessage(chatID int64, title, link string) tgbotapi.MessageConfig {
	message := tgbotapi.NewMessage(chatID, fmt.Sprintf("✅ *%s*\n\nClick below to download:", markdown(title)))
	message.ParseMode = tgbotapi.ModeMarkdown
	message.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("🔓 Download", link)),
	)
	return message
}

func resultsMessage(chatID int64, movies []catalog.Movie) tgbotapi.MessageConfig {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(movies))
	for _, movie := range movies {
		label := "🎬 " + movie.Title
		if movie.Parts > 1 {
			label += fmt.Sprintf(" (%dp)", movie.Parts)
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, callbackMovie+":"+movie.Code),
		))
	}
	message := tgbotapi.NewMessage(chatID, fmt.Sprintf("🔍 Found %d results:", len(movies)))
	message.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	return message
}

func notFoundText(suggestion *metadata.Info) string {
	if suggestion == nil {
		return textMovieNotFound
	}
	return fmt.Sprintf("❌ *Not in database*\n\nFound on TMDB:\n🎬 %s (%s)\n⭐ %s/10\n\nContact admin to add!",
		markdown(suggestion.Title), suggestion.Year, formatRating(suggestion.Rating))
}

// cardContent renders a catalog card. withOverview adds the TMDB synopsis preview.
func cardContent(card delivery.Card, withOverview bool) (string, tgbotapi.InlineKeyboardMarkup) {
	parts := ""
	if card.Movie.Parts > 1 {
		parts = fmt.Sprintf("\n📦 Parts: %d", card.Movie.Parts)
	}

	var caption string
	if card.Info != nil {
		caption = fmt.Sprintf("🎬 *%s* (%s)\n⭐ %s/10%s",
			markdown(card.Info.Title), card.Info.Year, formatRating(card.Info.Rating), parts)
		if withOverview && card.Info.Overview != "" {
			caption += "\n\n" + markdown(preview(card.Info.Overview, cardOverviewPreview)) + "..."
		}
	} else {
		caption = fmt.Sprintf("🎬 *%s*%s", markdown(card.Movie.Title), parts)
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("📥 Download", card.Link)),
	)
	return caption, keyboard
}

func formatRating(rating float64) string {
	if rating <= 0 {
		return "N/A"
	}
	return strconv.FormatFloat(rating, 'f', 1, 64)
}

func preview(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit])
}

func partCallbackData(movieCode string, part int) string {
	return callbackPart + ":" + movieCode + ":" + strconv.Itoa(part)
}

// parseCallback splits callback data into its action and arguments.
func parseCallback(data string) (string, []string) {
	fields := strings.Split(data, ":")
	return fields[0], fields[1:]
}
