package bot

import (
	"context"
	"strconv"
	"strings"

	"nobat/internal/dialogue"
	"nobat/internal/models"

	"github.com/rs/zerolog"
)

// submit runs the confirm → done side effects in order: ledger append, done state, staff
// notification, user confirmation. Each step runs even if the previous one failed.
func (b *Bot) submit(ctx context.Context, logger *zerolog.Logger, chatID int64, session *models.Session) {
	appointment := models.NewAppointment(session, b.now().UTC())

	reference := b.appendToLedger(ctx, logger, appointment)
	session.Reference = reference

	// done must be stored before the user sees the confirmation
	if err := b.stateService.SaveSession(ctx, session); err != nil {
		b.reportRemote(logger, collaboratorState, err, "saving done session failed")
	}

	b.notifyStaff(logger, appointment, reference)
	b.reply(logger, chatID, &dialogue.Reply{Text: dialogue.Confirmation(reference)})

	logger.Info().Str("reference", reference).Msg("appointment submitted")
}

func (b *Bot) appendToLedger(ctx context.Context, logger *zerolog.Logger, appointment *models.Appointment) string {
	ctx, cancel := b.remoteCtx(ctx)
	defer cancel()

	reference, err := b.ledger.AppendAppointment(ctx, appointment)
	if err != nil {
		b.metrics.submission("ledger_failed")
		b.reportRemote(logger, collaboratorLedger, err, "ledger append failed")
		return models.PlaceholderReference
	}
	b.metrics.submission("ok")
	if strings.TrimSpace(reference) == "" {
		return models.PlaceholderReference
	}
	return reference
}

// notifyStaff sends the summary to telegram.staff_chat_id: a numeric chat id or an @channel.
func (b *Bot) notifyStaff(logger *zerolog.Logger, appointment *models.Appointment, reference string) {
	dest := strings.TrimSpace(b.config.Telegram.StaffChatID)
	if dest == "" {
		logger.Debug().Msg("staff chat not configured, skipping notification")
		return
	}

	text := b.flow.StaffSummary(appointment, reference)

	var err error
	if strings.HasPrefix(dest, "@") {
		_, err = b.tgService.SendHTMLToChannel(dest, text)
	} else {
		chatID, perr := strconv.ParseInt(dest, 10, 64)
		if perr != nil {
			logger.Warn().Str("staff_chat_id", dest).Msg("invalid staff chat id, skipping notification")
			return
		}
		_, err = b.tgService.SendHTML(chatID, text)
	}
	if err != nil {
		b.reportRemote(logger, collaboratorTelegram, err, "staff notification failed")
	}
}
