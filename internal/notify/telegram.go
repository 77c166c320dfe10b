// Package notify delivers alert and screener messages over Telegram.
package notify

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Telegram sends messages through an authorized bot.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	logger zerolog.Logger
}

func NewTelegram(bot *tgbotapi.BotAPI) *Telegram {
	return &Telegram{
		bot:    bot,
		logger: log.With().Str("component", "notify").Logger(),
	}
}

// Send delivers one text message to the chat. The context is honored
// before the call only; the bot API itself has no context support.
func (t *Telegram) Send(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send Telegram message")
		return err
	}
	return nil
}
