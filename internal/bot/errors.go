package bot

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

const msgTooFast = "⚠️ پیام‌ها خیلی سریع ارسال می‌شوند. لطفاً کمی صبر کنید."

// reportRemote logs a failed collaborator call and counts it. The error is not propagated.
func (b *Bot) reportRemote(logger *zerolog.Logger, collaborator string, err error, msg string) {
	b.metrics.remoteFailure(collaborator)
	logger.Error().
		Err(err).
		Str("collaborator", collaborator).
		Bool("timeout", errors.Is(err, context.DeadlineExceeded)).
		Msg(msg)
}
