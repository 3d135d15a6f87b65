package repository

import (
	"context"
	"sync/atomic"
	"time"

	"nobat/internal/domain"
	"nobat/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStateRepository sends every call to primary until it fails, then serves from
// fallback and retries primary once per recoveryInterval.
type FailoverStateRepository struct {
	primary   domain.StateRepository
	fallback  domain.StateRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *FailoverStateRepository) markDown(err error, op string) {
	r.logger.Error().Err(err).Str("op", op).Msg("Primary state repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(r.now().UnixNano())
}

// shouldProbe reports whether a down primary is due for a recovery attempt.
func (r *FailoverStateRepository) shouldProbe() bool {
	last := r.lastCheck.Load()
	if r.now().Sub(time.Unix(0, last)) <= recoveryInterval {
		return false
	}
	return r.lastCheck.CompareAndSwap(last, r.now().UnixNano())
}

func (r *FailoverStateRepository) usePrimary() bool {
	return !r.isDown.Load() || r.shouldProbe()
}

func (r *FailoverStateRepository) GetSession(ctx context.Context, conversationID int64) (*models.Session, error) {
	if r.usePrimary() {
		session, err := r.primary.GetSession(ctx, conversationID)
		if err == nil {
			r.recovered()
			return session, nil
		}
		r.markDown(err, "get_session")
	}

	return r.fallback.GetSession(ctx, conversationID)
}

func (r *FailoverStateRepository) SaveSession(ctx context.Context, session *models.Session) error {
	if r.usePrimary() {
		err := r.primary.SaveSession(ctx, session)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err, "save_session")
	}

	return r.fallback.SaveSession(ctx, session)
}

func (r *FailoverStateRepository) IsNewUpdate(ctx context.Context, updateID int) (bool, error) {
	if r.usePrimary() {
		isNew, err := r.primary.IsNewUpdate(ctx, updateID)
		if err == nil {
			r.recovered()
			return isNew, nil
		}
		r.markDown(err, "is_new_update")
	}

	return r.fallback.IsNewUpdate(ctx, updateID)
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, conversationID int64, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, conversationID, limit, window)
		if err == nil {
			r.recovered()
			return allowed, nil
		}
		r.markDown(err, "check_rate_limit")
	}

	return r.fallback.CheckRateLimit(ctx, conversationID, limit, window)
}

func (r *FailoverStateRepository) recovered() {
	if r.isDown.CompareAndSwap(true, false) {
		r.logger.Info().Msg("Primary state repository recovered")
	}
}
