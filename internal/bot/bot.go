package bot

import (
	"context"
	"errors"
	"os"
	"time"

	"nobat/internal/config"
	"nobat/internal/dialogue"
	"nobat/internal/domain"
	"nobat/internal/logging"
	"nobat/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const defaultPollTimeout = 60

type Bot struct {
	tgService    domain.TelegramService
	config       *config.Config
	flow         *dialogue.Flow
	stateService domain.StateManager
	gate         domain.UpdateGate
	ledger       domain.Ledger
	metrics      *Metrics
	logger       *zerolog.Logger
	now          func() time.Time
}

// NewBot wires the update pipeline. gate dedupes and rate-limits updates; gate and metrics
// may be nil.
func NewBot(
	tgService domain.TelegramService,
	cfg *config.Config,
	flow *dialogue.Flow,
	stateService domain.StateManager,
	gate domain.UpdateGate,
	ledger domain.Ledger,
	metrics *Metrics,
	logger *zerolog.Logger,
) (*Bot, error) {
	switch {
	case tgService == nil:
		return nil, errors.New("bot: telegram service is required")
	case cfg == nil:
		return nil, errors.New("bot: config is required")
	case flow == nil:
		return nil, errors.New("bot: dialogue flow is required")
	case stateService == nil:
		return nil, errors.New("bot: state service is required")
	case ledger == nil:
		return nil, errors.New("bot: ledger is required")
	}

	if logger == nil {
		l := zerolog.New(os.Stdout).With().Timestamp().Logger()
		logger = &l
	}

	return &Bot{
		tgService:    tgService,
		config:       cfg,
		flow:         flow,
		stateService: stateService,
		gate:         gate,
		ledger:       ledger,
		metrics:      metrics,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// Start runs long polling until ctx is canceled.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.config.Bot.PollTimeout
	if u.Timeout <= 0 {
		u.Timeout = defaultPollTimeout
	}

	updates := b.tgService.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tgService.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			b.tgService.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate processes one update to completion. It never fails: every problem is logged,
// counted, and the update is acknowledged upstream regardless.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer b.elapsed(start)

	ctx, logger := logging.WithRequest(ctx, b.logger)

	b.withRecovery(func() {
		b.metrics.update(b.processUpdate(ctx, logger, update))
	})
}

// inbound is the part of an update the dialogue cares about.
type inbound struct {
	conversationID int64
	chatID         int64
	text           string
	callbackID     string
}

// extract pulls sender, chat and text out of a message or a callback query.
func extract(update tgbotapi.Update) (inbound, bool) {
	if cq := update.CallbackQuery; cq != nil {
		if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
			return inbound{}, false
		}
		return inbound{
			conversationID: cq.From.ID,
			chatID:         cq.Message.Chat.ID,
			text:           cq.Data,
			callbackID:     cq.ID,
		}, true
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.Text == "" {
		return inbound{}, false
	}
	return inbound{
		conversationID: msg.From.ID,
		chatID:         msg.Chat.ID,
		text:           msg.Text,
	}, true
}

func (b *Bot) processUpdate(ctx context.Context, logger *zerolog.Logger, update tgbotapi.Update) string {
	in, ok := extract(update)
	if !ok {
		return outcomeIgnored
	}

	l := logger.With().
		Int("update_id", update.UpdateID).
		Int64("conversation_id", in.conversationID).
		Logger()
	logger = &l

	if b.gate != nil {
		dctx, cancel := b.remoteCtx(ctx)
		isNew, err := b.gate.IsNewUpdate(dctx, update.UpdateID)
		cancel()
		if err != nil {
			b.reportRemote(logger, collaboratorDedupe, err, "dedupe check failed, dropping update")
			return outcomeDropped
		}
		if !isNew {
			logger.Debug().Msg("duplicate update")
			return outcomeDuplicate
		}
	}

	if !b.allow(ctx, logger, in.conversationID) {
		logger.Warn().Msg("Rate limit exceeded")
		b.reply(logger, in.chatID, &dialogue.Reply{Text: msgTooFast})
		return outcomeLimited
	}

	if in.callbackID != "" {
		if err := b.tgService.AnswerCallback(in.callbackID, ""); err != nil {
			b.reportRemote(logger, collaboratorTelegram, err, "answer callback failed")
		}
	}

	now := b.now()
	session, ok := b.loadSession(ctx, logger, in, now)
	if !ok {
		return outcomeDropped
	}

	out := b.flow.Advance(session, in.text, now)
	b.metrics.step(string(session.Step), stepResult(session, out))

	if out.Submit {
		b.submit(ctx, logger, in.chatID, out.Session)
		return outcomeHandled
	}

	if out.Changed {
		if err := b.stateService.SaveSession(ctx, out.Session); err != nil {
			b.reportRemote(logger, collaboratorState, err, "session save failed, continuing")
		}
	}

	b.reply(logger, in.chatID, out.Reply)
	return outcomeHandled
}

// loadSession returns the stored session, or a fresh one for commands and first contact.
func (b *Bot) loadSession(ctx context.Context, logger *zerolog.Logger, in inbound, now time.Time) (*models.Session, bool) {
	if dialogue.IsCommand(in.text) {
		return b.flow.Initial(in.conversationID, now), true
	}

	session, err := b.stateService.GetSession(ctx, in.conversationID)
	if err != nil {
		b.reportRemote(logger, collaboratorState, err, "session load failed, dropping update")
		return nil, false
	}
	if session == nil {
		session = b.flow.Initial(in.conversationID, now)
	}
	return session, true
}

func stepResult(before *models.Session, out dialogue.Outcome) string {
	switch {
	case before.Step == models.StepDone:
		return "idle"
	case out.Session.Step != before.Step:
		return "advanced"
	case out.Changed:
		return "refreshed"
	}
	return "rejected"
}

func (b *Bot) reply(logger *zerolog.Logger, chatID int64, reply *dialogue.Reply) {
	if reply == nil || reply.Text == "" {
		return
	}
	if _, err := b.tgService.SendWithOptions(chatID, reply.Text, reply.Options); err != nil {
		b.reportRemote(logger, collaboratorTelegram, err, "send reply failed")
	}
}
