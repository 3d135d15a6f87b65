package service

import (
	"testing"

	"nobat/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockTelegramSender struct {
	mock.Mock
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func (m *mockTelegramSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	args := m.Called(c)
	return args.Get(0).(*tgbotapi.APIResponse), args.Error(1)
}

func (m *mockTelegramSender) GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	args := m.Called(config)
	return args.Get(0).(tgbotapi.UpdatesChannel)
}

func (m *mockTelegramSender) GetSelf() tgbotapi.User {
	args := m.Called()
	return args.Get(0).(tgbotapi.User)
}

func (m *mockTelegramSender) StopReceivingUpdates() {
	m.Called()
}

func TestTelegramService(t *testing.T) {
	mockSender := new(mockTelegramSender)
	svc := NewTelegramService(mockSender)

	t.Run("SendHTML", func(t *testing.T) {
		mockSender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.Text == "<b>hi</b>" && msg.ChatID == 123 && msg.ParseMode == models.ParseModeHTML
		})).Return(tgbotapi.Message{}, nil).Once()

		_, err := svc.SendHTML(123, "<b>hi</b>")
		assert.NoError(t, err)
		mockSender.AssertExpectations(t)
	})

	t.Run("SendHTMLToChannel", func(t *testing.T) {
		mockSender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.ChannelUsername == "@staff" && msg.ParseMode == models.ParseModeHTML
		})).Return(tgbotapi.Message{}, nil).Once()

		_, err := svc.SendHTMLToChannel("@staff", "new")
		assert.NoError(t, err)
		mockSender.AssertExpectations(t)
	})

	t.Run("SendWithOptions", func(t *testing.T) {
		mockSender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			if !ok {
				return false
			}
			kb, ok := msg.ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
			return ok && kb.OneTimeKeyboard && kb.ResizeKeyboard &&
				len(kb.Keyboard) == 2 && kb.Keyboard[1][0].Text == "Other"
		})).Return(tgbotapi.Message{}, nil).Once()

		_, err := svc.SendWithOptions(123, "brand?", [][]string{{"MVM", "Chery"}, {"Other"}})
		assert.NoError(t, err)
		mockSender.AssertExpectations(t)
	})

	t.Run("SendWithoutOptions", func(t *testing.T) {
		mockSender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok && msg.ReplyMarkup == nil
		})).Return(tgbotapi.Message{}, nil).Once()

		_, err := svc.SendWithOptions(123, "name?", [][]string{{}})
		assert.NoError(t, err)
		mockSender.AssertExpectations(t)
	})

	t.Run("AnswerCallback", func(t *testing.T) {
		mockSender.On("Request", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			_, ok := c.(tgbotapi.CallbackConfig)
			return ok
		})).Return(&tgbotapi.APIResponse{Ok: true}, nil).Once()

		err := svc.AnswerCallback("cb123", "")
		assert.NoError(t, err)
		mockSender.AssertExpectations(t)
	})

	t.Run("GetSelf", func(t *testing.T) {
		mockSender.On("GetSelf").Return(tgbotapi.User{UserName: "nobat_bot"}).Once()
		assert.Equal(t, "nobat_bot", svc.GetSelf().UserName)
	})
}

func TestOptionsKeyboard_Empty(t *testing.T) {
	_, ok := OptionsKeyboard(nil)
	assert.False(t, ok)
}
