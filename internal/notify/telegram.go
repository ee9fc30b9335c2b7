package notify

import (
	"fmt"
	"log"
	"strconv"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier pushes notifications to a single Telegram chat.
type TelegramNotifier struct {
	mu     sync.Mutex
	api    *tgbotapi.BotAPI
	chatID int64
	logger *log.Logger
}

var _ Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier creates a notifier for the given bot token and chat ID.
func NewTelegramNotifier(token, chatID string, logger *log.Logger) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}

	return &TelegramNotifier{
		api:    api,
		chatID: id,
		logger: logger,
	}, nil
}

// Notify sends the text. Delivery is best effort: errors are logged and
// swallowed so a Telegram outage never stalls a watcher tick.
func (n *TelegramNotifier) Notify(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil && n.logger != nil {
		n.logger.Printf("Warning: telegram notify failed: %v", err)
	}
}
