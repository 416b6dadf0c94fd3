package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MessageAPI is the part of *tgbotapi.BotAPI used to send replies.
type MessageAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender sends replies through the Bot API.
type TelegramSender struct {
	api MessageAPI
}

// NewTelegramSender wraps a Bot API client.
func NewTelegramSender(api MessageAPI) *TelegramSender {
	return &TelegramSender{api: api}
}

// Send implements Sender. The Bot API client has no context support, so
// ctx is only checked before sending.
func (s *TelegramSender) Send(ctx context.Context, chatID int64, replyTo int, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("Send: %w", err)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	msg.DisableWebPagePreview = true
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("Send: chat %d: %w", chatID, err)
	}
	return nil
}

// WebhookAPI is the part of *tgbotapi.BotAPI used to manage the webhook.
type WebhookAPI interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// SetWebhook points Telegram at url. A non-empty secret is echoed back by
// Telegram in the X-Telegram-Bot-Api-Secret-Token header of every call.
func SetWebhook(api WebhookAPI, url, secret string) error {
	params := tgbotapi.Params{"url": url}
	params.AddNonEmpty("secret_token", secret)
	params["allowed_updates"] = `["message"]`

	resp, err := api.MakeRequest("setWebhook", params)
	if err != nil {
		return fmt.Errorf("SetWebhook: %w", err)
	}
	if !resp.Ok {
		return fmt.Errorf("SetWebhook: %s", resp.Description)
	}
	return nil
}

// DeleteWebhook removes the webhook so long polling can be used.
func DeleteWebhook(api WebhookAPI) error {
	resp, err := api.MakeRequest("deleteWebhook", tgbotapi.Params{})
	if err != nil {
		return fmt.Errorf("DeleteWebhook: %w", err)
	}
	if !resp.Ok {
		return fmt.Errorf("DeleteWebhook: %s", resp.Description)
	}
	return nil
}
