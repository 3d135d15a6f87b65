package service

import (
	"context"
	"time"

	"nobat/internal/domain"
	"nobat/internal/models"

	"github.com/rs/zerolog"
)

// StateService bounds every store call by the remote timeout and logs failures.
type StateService struct {
	store   domain.SessionStore
	timeout time.Duration
	logger  *zerolog.Logger
	now     func() time.Time
}

func NewStateService(store domain.SessionStore, timeout time.Duration, logger *zerolog.Logger) *StateService {
	return &StateService{
		store:   store,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *StateService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *StateService) GetSession(ctx context.Context, conversationID int64) (*models.Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	session, err := s.store.GetSession(ctx, conversationID)
	if err != nil {
		s.logger.Error().Err(err).Int64("conversation_id", conversationID).Msg("failed to get session")
		return nil, err
	}
	if session != nil && session.Answers == nil {
		session.Answers = make(map[string]string)
	}

	return session, nil
}

// SaveSession stamps UpdatedAt before writing.
func (s *StateService) SaveSession(ctx context.Context, session *models.Session) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	session.UpdatedAt = s.now().UTC()
	if err := s.store.SaveSession(ctx, session); err != nil {
		s.logger.Error().Err(err).
			Int64("conversation_id", session.ConversationID).
			Str("step", string(session.Step)).
			Msg("failed to save session")
		return err
	}
	return nil
}
