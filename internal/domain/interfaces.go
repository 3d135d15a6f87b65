package domain

import (
	"context"
	"time"

	"nobat/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// SessionStore persists conversation sessions. GetSession returns nil, nil when no session exists.
type SessionStore interface {
	GetSession(ctx context.Context, conversationID int64) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session) error
}

// UpdateDeduper reports whether an update id is seen for the first time.
type UpdateDeduper interface {
	IsNewUpdate(ctx context.Context, updateID int) (bool, error)
}

// Ledger appends a completed appointment and returns the row reference shown to the user.
type Ledger interface {
	AppendAppointment(ctx context.Context, appointment *models.Appointment) (string, error)
}

// RateLimiter reports whether a conversation may send another message within window.
// Counters expire with the window.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, conversationID int64, limit int, window time.Duration) (bool, error)
}

// UpdateGate decides whether an inbound update is processed at all.
type UpdateGate interface {
	UpdateDeduper
	RateLimiter
}

// StateRepository is a backend that keeps sessions, seen update ids and rate counters.
type StateRepository interface {
	SessionStore
	UpdateGate
}

type StateManager interface {
	GetSession(ctx context.Context, conversationID int64) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

type TelegramService interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendHTML(chatID int64, text string) (tgbotapi.Message, error)
	SendHTMLToChannel(username string, text string) (tgbotapi.Message, error)
	SendWithOptions(chatID int64, text string, rows [][]string) (tgbotapi.Message, error)
	AnswerCallback(callbackID string, text string) error
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}
