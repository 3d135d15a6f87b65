package bot

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.update(outcomePanic)
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

// allow checks the per-conversation message rate in the update gate. A failed check lets
// the message through.
func (b *Bot) allow(ctx context.Context, logger *zerolog.Logger, conversationID int64) bool {
	limit, window := b.config.Bot.RateLimitMessages, b.config.Bot.RateLimitWindow
	if b.gate == nil || limit <= 0 || window <= 0 {
		return true
	}

	rctx, cancel := b.remoteCtx(ctx)
	defer cancel()
	allowed, err := b.gate.CheckRateLimit(rctx, conversationID, limit, window)
	if err != nil {
		b.reportRemote(logger, collaboratorRateLimit, err, "rate limit check failed")
		return true
	}
	return allowed
}

// remoteCtx bounds one collaborator call by the remote timeout.
func (b *Bot) remoteCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := b.config.Bot.RemoteTimeout
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// elapsed observes the processing time of one update.
func (b *Bot) elapsed(start time.Time) {
	if b.metrics == nil {
		return
	}
	b.metrics.UpdateProcessingTime.Observe(time.Since(start).Seconds())
}
