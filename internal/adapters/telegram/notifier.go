package telegram

import (
	"context"
	"fmt"

	"pyramidbot/internal/ports"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier implements ports.Notifier over a Telegram bot chat.
type Notifier struct {
	bot    *tgbot.BotAPI
	chatID int64
	logger ports.Logger
}

// New creates a Telegram notifier. The token is validated against the bot
// API immediately so misconfiguration surfaces at startup, not on the first
// alert.
func New(token string, chatID int64, logger ports.Logger) (*Notifier, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for Telegram notifier")
	}
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("telegram token and chat id are required")
	}
	bot, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram bot API: %w", err)
	}
	return &Notifier{bot: bot, chatID: chatID, logger: logger}, nil
}

// Send delivers one alert message. Fire-and-forget from the engine's point
// of view: the caller logs the error and moves on.
func (n *Notifier) Send(ctx context.Context, text string) error {
	if n == nil || n.bot == nil || n.chatID == 0 {
		return nil
	}
	if _, err := n.bot.Send(tgbot.NewMessage(n.chatID, text)); err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}
	n.logger.Debug(ctx, "Telegram alert delivered", map[string]interface{}{"chatID": n.chatID})
	return nil
}

// LogNotifier is the fallback when no Telegram chat is configured: alerts
// go to the process log and always "succeed".
type LogNotifier struct {
	Logger ports.Logger
}

func (l *LogNotifier) Send(ctx context.Context, text string) error {
	l.Logger.Warn(ctx, "ALERT: "+text)
	return nil
}
