package service

import (
	"nobat/internal/domain"
	"nobat/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type TelegramService struct {
	bot domain.TelegramSender
}

func NewTelegramService(bot domain.TelegramSender) *TelegramService {
	return &TelegramService{
		bot: bot,
	}
}

func (s *TelegramService) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return s.bot.Send(c)
}

func (s *TelegramService) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return s.bot.Request(c)
}

func (s *TelegramService) SendHTML(chatID int64, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = models.ParseModeHTML
	return s.bot.Send(msg)
}

// SendHTMLToChannel posts to a public channel or group addressed by @username.
func (s *TelegramService) SendHTMLToChannel(username, text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessageToChannel(username, text)
	msg.ParseMode = models.ParseModeHTML
	return s.bot.Send(msg)
}

// SendWithOptions attaches a one-time reply keyboard built from rows of option labels.
// Empty rows mean a plain message.
func (s *TelegramService) SendWithOptions(chatID int64, text string, rows [][]string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = models.ParseModeHTML
	if keyboard, ok := OptionsKeyboard(rows); ok {
		msg.ReplyMarkup = keyboard
	}
	return s.bot.Send(msg)
}

// OptionsKeyboard builds a single-select quick-reply keyboard.
func OptionsKeyboard(rows [][]string) (tgbotapi.ReplyKeyboardMarkup, bool) {
	var buttons [][]tgbotapi.KeyboardButton
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		line := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, label := range row {
			line = append(line, tgbotapi.NewKeyboardButton(label))
		}
		buttons = append(buttons, line)
	}
	if len(buttons) == 0 {
		return tgbotapi.ReplyKeyboardMarkup{}, false
	}

	keyboard := tgbotapi.NewReplyKeyboard(buttons...)
	keyboard.OneTimeKeyboard = true
	keyboard.ResizeKeyboard = true
	return keyboard, true
}

func (s *TelegramService) AnswerCallback(callbackID, text string) error {
	callback := tgbotapi.NewCallback(callbackID, text)
	_, err := s.bot.Request(callback)
	return err
}

func (s *TelegramService) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return s.bot.GetUpdatesChan(config)
}

func (s *TelegramService) GetSelf() tgbotapi.User {
	return s.bot.GetSelf()
}

func (s *TelegramService) StopReceivingUpdates() {
	s.bot.StopReceivingUpdates()
}
