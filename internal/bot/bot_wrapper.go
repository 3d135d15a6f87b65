package bot

import (
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotWrapper adapts *tgbotapi.BotAPI to domain.TelegramSender.
type BotWrapper struct {
	*tgbotapi.BotAPI
}

func (w *BotWrapper) GetSelf() tgbotapi.User {
	return w.Self
}

func (w *BotWrapper) StopReceivingUpdates() {
	w.BotAPI.StopReceivingUpdates()
}

// NewBotWrapper connects to Telegram (getMe) through client, which carries the call timeout.
func NewBotWrapper(token string, client *http.Client, debug bool) (*BotWrapper, error) {
	if client == nil {
		client = &http.Client{}
	}
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, err
	}
	api.Debug = debug
	return &BotWrapper{BotAPI: api}, nil
}
