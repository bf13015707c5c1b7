package transport

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// Telegram implements Chat over the Telegram Bot API.
type Telegram struct {
	bot *tgbotapi.BotAPI
}

// NewTelegram authorizes the bot with the given token.
func NewTelegram(token string) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("transport: telegram auth: %w", err)
	}
	log.Info().Str("bot", bot.Self.UserName).Msg("telegram transport ready")
	return &Telegram{bot: bot}, nil
}

// Send implements Chat. The Bot API client has no context support, so
// cancellation is checked before dispatch; the client's own HTTP timeout
// bounds the call itself.
func (t *Telegram) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("transport: send to %d: %w", chatID, err)
	}
	return nil
}

// LogChat is a Chat implementation that only logs. Used when no Telegram
// token is configured.
type LogChat struct{}

// Send implements Chat.
func (LogChat) Send(_ context.Context, chatID int64, text string) error {
	log.Info().Int64("chat_id", chatID).Str("text", text).Msg("chat send (log transport)")
	return nil
}
