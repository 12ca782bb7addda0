// Package bot turns Telegram updates into delivery flow calls and renders the results.
package bot

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/moviebot/internal/catalog"
	"github.com/MarcoPoloResearchLab/moviebot/internal/delivery"
	"github.com/MarcoPoloResearchLab/moviebot/internal/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	errMissingSender = errors.New("bot: sender required")
	errMissingFlow   = errors.New("bot: delivery flow required")
	errMissingStores = errors.New("bot: catalog and audience stores required")
)

// Catalog is the admin-facing catalog surface.
type Catalog interface {
	Add(ctx context.Context, movie catalog.Movie) error
	AddPart(ctx context.Context, code string, part int, fileID string) (*catalog.Movie, error)
	Delete(ctx context.Context, code string) (bool, error)
	List(ctx context.Context, limit int) ([]catalog.Movie, error)
	Count(ctx context.Context) (int64, error)
}

// Audience enumerates known users.
type Audience interface {
	Count(ctx context.Context) (int64, error)
	ListIDs(ctx context.Context) ([]int64, error)
}

// SubscriptionChecker reports whether a user passes the channel requirement.
type SubscriptionChecker interface {
	Check(ctx context.Context, userID int64) bool
}

// Config wires a Handler.
type Config struct {
	Sender      telegram.Sender
	Flow        *delivery.Flow
	Catalog     Catalog
	Audience    Audience
	Gate        SubscriptionChecker
	AdminID     int64
	ChannelID   int64
	ChannelLink string
	Logger      *zap.Logger
	NewRunID    func() (uuid.UUID, error)
}

// Handler routes updates to user and admin commands.
type Handler struct {
	sender      telegram.Sender
	flow        *delivery.Flow
	catalog     Catalog
	audience    Audience
	gate        SubscriptionChecker
	adminID     int64
	channelID   int64
	channelLink string
	logger      *zap.Logger
	newRunID    func() (uuid.UUID, error)
}

// NewHandler validates the configuration and builds a Handler.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Sender == nil {
		return nil, errMissingSender
	}
	if cfg.Flow == nil {
		return nil, errMissingFlow
	}
	if cfg.Catalog == nil || cfg.Audience == nil {
		return nil, errMissingStores
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	newRunID := cfg.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewV7
	}
	return &Handler{
		sender:      cfg.Sender,
		flow:        cfg.Flow,
		catalog:     cfg.Catalog,
		audience:    cfg.Audience,
		gate:        cfg.Gate,
		adminID:     cfg.AdminID,
		channelID:   cfg.ChannelID,
		channelLink: cfg.ChannelLink,
		logger:      logger,
		newRunID:    newRunID,
	}, nil
}

// HandleUpdate implements telegram.UpdateHandler.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		h.handleMessage(ctx, update.Message)
	}
}

func (h *Handler) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil || message.Chat == nil || !message.Chat.IsPrivate() {
		return
	}

	if !message.IsCommand() {
		text := strings.TrimSpace(message.Text)
		if text == "" || strings.HasPrefix(text, "/") {
			return
		}
		h.handleSearch(ctx, message, text)
		return
	}

	switch message.Command() {
	case "start":
		h.handleStart(ctx, message)
		return
	case "help":
		h.handleHelp(message)
		return
	}

	if !h.isAdmin(message.From.ID) {
		return
	}
	switch message.Command() {
	case "add":
		h.handleAdd(ctx, message)
	case "addpart":
		h.handleAddPart(ctx, message)
	case "delete":
		h.handleDelete(ctx, message)
	case "list":
		h.handleList(ctx, message)
	case "stats":
		h.handleStats(ctx, message)
	case "broadcast":
		h.handleBroadcast(ctx, message)
	case "checksub":
		h.handleCheckSubscription(ctx, message)
	}
}

func (h *Handler) isAdmin(userID int64) bool {
	return h.adminID != 0 && userID == h.adminID
}

func (h *Handler) handleStart(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	outcome, err := h.flow.Start(ctx, delivery.StartRequest{
		UserID:   userID,
		Username: message.From.UserName,
		Payload:  message.CommandArguments(),
		IsAdmin:  h.isAdmin(userID),
	})
	if err != nil {
		h.logger.Error("start flow failed", zap.Int64("user_id", userID), zap.Error(err))
		h.reply(message.Chat.ID, textTemporaryFailure)
		return
	}

	h.logger.Info("start resolved", zap.Int64("user_id", userID), zap.String("state", string(outcome.State)))
	chatID := message.Chat.ID
	switch outcome.State {
	case delivery.StateWelcome:
		h.sendWelcome(chatID)
	case delivery.StateAwaitSubscription:
		h.send(joinPrompt(chatID, h.channelLink, outcome.Link))
	case delivery.StateErrorExpired:
		h.reply(chatID, textLinkExpired)
	case delivery.StateErrorNotFound:
		h.reply(chatID, textFileUnavailable)
	case delivery.StateSelectPart:
		h.send(partChooserMessage(chatID, outcome.Movie, outcome.Parts))
	case delivery.StateIssueLink:
		h.send(downloadMessage(chatID, outcome.Movie.Title, outcome.Link))
	case delivery.StateDeliver:
		h.deliverFile(chatID, outcome.Movie.Title, outcome.FileID)
	}
}

func (h *Handler) handleHelp(message *tgbotapi.Message) {
	text := textHelp
	if h.isAdmin(message.From.ID) {
		text += textAdminHelp
	}
	h.reply(message.Chat.ID, text)
}

func (h *Handler) handleSearch(ctx context.Context, message *tgbotapi.Message, text string) {
	chatID := message.Chat.ID
	result, err := h.flow.Search(ctx, message.From.ID, message.From.UserName, text)
	if err != nil {
		h.logger.Error("search failed", zap.Int64("user_id", message.From.ID), zap.Error(err))
		h.reply(chatID, textTemporaryFailure)
		return
	}

	switch result.State {
	case delivery.SearchTooShort:
		h.reply(chatID, textQueryTooShort)
	case delivery.SearchNotFound:
		h.reply(chatID, notFoundText(result.Suggestion))
	case delivery.SearchResults:
		if len(result.Movies) == 1 {
			h.sendCard(chatID, h.flow.CardFor(ctx, result.Movies[0]))
			return
		}
		h.send(resultsMessage(chatID, result.Movies))
	}
}

func (h *Handler) sendWelcome(chatID int64) {
	message := tgbotapi.NewMessage(chatID, textWelcome)
	message.ParseMode = tgbotapi.ModeMarkdown
	if h.channelLink != "" {
		message.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("📢 Join Channel", h.channelLink)),
		)
	}
	h.send(message)
}

// sendCard prefers a poster photo and falls back to a text card.
func (h *Handler) sendCard(chatID int64, card delivery.Card) {
	caption, keyboard := cardContent(card, true)
	if card.Info != nil && card.Info.PosterURL != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(card.Info.PosterURL))
		photo.Caption = caption
		photo.ParseMode = tgbotapi.ModeMarkdown
		photo.ReplyMarkup = keyboard
		_, err := h.sender.Send(photo)
		if err == nil {
			return
		}
		h.logger.Warn("poster send failed, falling back to text", zap.String("movie_code", card.Movie.Code), zap.Error(err))
	}
	message := tgbotapi.NewMessage(chatID, caption)
	message.ParseMode = tgbotapi.ModeMarkdown
	message.ReplyMarkup = keyboard
	h.send(message)
}

func (h *Handler) reply(chatID int64, text string) {
	message := tgbotapi.NewMessage(chatID, text)
	message.ParseMode = tgbotapi.ModeMarkdown
	h.send(message)
}

func (h *Handler) send(chattable tgbotapi.Chattable) (tgbotapi.Message, bool) {
	sent, err := h.sender.Send(chattable)
	if err != nil {
		h.logger.Warn("telegram send failed", zap.String("description", telegram.Description(err)))
		return tgbotapi.Message{}, false
	}
	return sent, true
}

func (h *Handler) request(chattable tgbotapi.Chattable) bool {
	if _, err := h.sender.Request(chattable); err != nil {
		h.logger.Warn("telegram request failed", zap.String("description", telegram.Description(err)))
		return false
	}
	return true
}
