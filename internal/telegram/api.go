// Package telegram adapts the Bot API client to the bot's receive loop and
// membership checks.
package telegram

import (
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the outbound subset of the Bot API used by handlers.
type Sender interface {
	Send(chattable tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(chattable tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// UpdateFetcher long-polls for updates.
type UpdateFetcher interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

// ChatMemberGetter resolves a user's membership in a chat.
type ChatMemberGetter interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// RawRequester issues arbitrary Bot API calls.
type RawRequester interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// Connect authenticates the bot token and returns the client.
func Connect(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	return api, nil
}

// SetWebhook registers the public webhook URL with an optional secret token.
func SetWebhook(api RawRequester, url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	if _, err := api.MakeRequest("setWebhook", params); err != nil {
		return fmt.Errorf("telegram: set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook removes any webhook so getUpdates can be used.
func DeleteWebhook(api RawRequester) error {
	if _, err := api.MakeRequest("deleteWebhook", tgbotapi.Params{}); err != nil {
		return fmt.Errorf("telegram: delete webhook: %w", err)
	}
	return nil
}

// Description returns the API error description, or the error text otherwise.
func Description(err error) string {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func containsAny(haystack string, needles ...string) bool {
	lowered := strings.ToLower(haystack)
	for _, needle := range needles {
		if strings.Contains(lowered, needle) {
			return true
		}
	}
	return false
}
