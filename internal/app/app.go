// Package app builds the service from configuration. Both the long-running binary and the
// Lambda entry point go through New.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"nobat/internal/api"
	"nobat/internal/appscript"
	"nobat/internal/bot"
	"nobat/internal/config"
	"nobat/internal/database"
	"nobat/internal/dialogue"
	"nobat/internal/domain"
	"nobat/internal/integrations/paramstore"
	"nobat/internal/logging"
	"nobat/internal/metrics"
	"nobat/internal/normalize"
	"nobat/internal/repository"
	"nobat/internal/service"
	"nobat/internal/validation"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Options override collaborators that New would otherwise build from the config.
type Options struct {
	// Sender replaces the Telegram connection made with the bot token.
	Sender domain.TelegramSender
	// Registerer receives the bot metrics; nil means prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
}

type App struct {
	Config *config.Config
	Bot    *bot.Bot
	Server *api.HTTPServer

	logger  *zerolog.Logger
	repos   map[string]domain.StateRepository
	memory  *repository.MemoryStateRepository
	script  *appscript.Client
	db      *database.DB
	awsCfg  *aws.Config
	closers []func() error
}

// LoadConfig reads the config and resolves ssm:/ secret references through Parameter Store.
func LoadConfig(ctx context.Context, path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if !cfg.HasSecretRefs() {
		return cfg, nil
	}

	awsCfg, err := loadAWSConfig(ctx, cfg.DynamoDB.Region)
	if err != nil {
		return nil, err
	}
	client, err := paramstore.NewFromConfig(awsCfg)
	if err != nil {
		return nil, err
	}
	if err := cfg.ResolveSecrets(ctx, client); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// New wires stores, ledger, dialogue flow, Telegram and the webhook server.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, opts Options) (*App, error) {
	a := &App{
		Config: cfg,
		logger: logger,
		repos:  make(map[string]domain.StateRepository),
	}

	built := false
	defer func() {
		if !built {
			_ = a.Close()
		}
	}()

	state, err := a.stateRepository(ctx, cfg.State.Backend)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}
	gate, err := a.stateRepository(ctx, cfg.Dedupe.Backend)
	if err != nil {
		return nil, fmt.Errorf("dedupe store: %w", err)
	}

	ledger, err := a.ledger(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	flow, err := NewFlow(cfg.Dialogue)
	if err != nil {
		return nil, err
	}

	sender := opts.Sender
	if sender == nil {
		sender, err = bot.NewBotWrapper(cfg.Telegram.BotToken, a.telegramClient(), cfg.Telegram.Debug)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	metrics.Register(reg)

	stateService := service.NewStateService(state, cfg.Bot.RemoteTimeout, logging.Component(logger, "state"))
	a.Bot, err = bot.NewBot(
		service.NewTelegramService(sender), cfg, flow,
		stateService, gate, ledger,
		bot.NewMetrics(reg), logging.Component(logger, "bot"),
	)
	if err != nil {
		return nil, err
	}
	a.Server = api.NewHTTPServer(cfg, a.Bot, logging.Component(logger, "http"))

	built = true
	return a, nil
}

// StartBackground runs housekeeping that only makes sense in a long-lived process.
func (a *App) StartBackground(ctx context.Context) {
	if a.memory != nil && a.Config.State.JanitorInterval > 0 {
		go a.memory.StartJanitor(ctx, a.Config.State.JanitorInterval)
	}
	if a.db != nil && a.Config.Database.Backup.Enabled {
		backups := database.NewBackupService(a.db, a.Config.Database.Backup, logging.Component(a.logger, "backup"))
		go backups.Start(ctx)
	}
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewFlow builds the dialogue from its config section.
func NewFlow(cfg config.DialogueConfig) (*dialogue.Flow, error) {
	calendar, err := normalize.ParseCalendar(cfg.Calendar)
	if err != nil {
		return nil, err
	}
	dayOff, err := cfg.Weekday()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	phone, err := validation.CompilePhonePattern(cfg.PhonePattern)
	if err != nil {
		return nil, err
	}

	return dialogue.NewFlow(dialogue.Config{
		Fields:         cfg.Fields,
		BrandOptions:   cfg.BrandOptions,
		ServiceOptions: cfg.ServiceOptions,
		Calendar:       calendar,
		DayOff:         dayOff,
		DateCount:      cfg.DateCount,
		Location:       loc,
		PhonePattern:   phone,
		MinNameLength:  cfg.MinNameLength,
		MinPlateLength: cfg.MinPlateLength,
	})
}

// telegramClient bounds every Bot API call; long polling needs room for the poll itself.
func (a *App) telegramClient() *http.Client {
	timeout := a.Config.Bot.RemoteTimeout
	if a.Config.Telegram.Mode == config.ModePolling {
		timeout += time.Duration(a.Config.Bot.PollTimeout) * time.Second
	}
	return &http.Client{Timeout: timeout}
}
