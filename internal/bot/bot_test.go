package bot

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"nobat/internal/config"
	"nobat/internal/dialogue"
	"nobat/internal/domain"
	"nobat/internal/models"
	"nobat/internal/normalize"
	"nobat/internal/repository"
	"nobat/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	userID    int64 = 777
	staffChat int64 = -100123
)

// Monday
var testNow = time.Date(2025, 10, 20, 10, 0, 0, 0, time.UTC)

type sentMessage struct {
	chatID  int64
	channel string
	text    string
	options [][]string
	html    bool
}

type mockTelegramService struct {
	domain.TelegramService

	mu          sync.Mutex
	updatesChan chan tgbotapi.Update
	sent        []sentMessage
	callbacks   []string
	sendErr     error
	stopped     bool
}

func (m *mockTelegramService) SendWithOptions(chatID int64, text string, rows [][]string) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{chatID: chatID, text: text, options: rows})
	return tgbotapi.Message{}, m.sendErr
}

func (m *mockTelegramService) SendHTML(chatID int64, text string) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{chatID: chatID, text: text, html: true})
	return tgbotapi.Message{}, m.sendErr
}

func (m *mockTelegramService) SendHTMLToChannel(username, text string) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMessage{channel: username, text: text, html: true})
	return tgbotapi.Message{}, m.sendErr
}

func (m *mockTelegramService) AnswerCallback(callbackID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callbackID)
	return nil
}

func (m *mockTelegramService) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updatesChan
}

func (m *mockTelegramService) GetSelf() tgbotapi.User {
	return tgbotapi.User{UserName: "nobat_bot"}
}

func (m *mockTelegramService) StopReceivingUpdates() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *mockTelegramService) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

func (m *mockTelegramService) last(t *testing.T) sentMessage {
	t.Helper()
	msgs := m.messages()
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

type mockLedger struct {
	mu           sync.Mutex
	appointments []*models.Appointment
	reference    string
	err          error
}

func (l *mockLedger) AppendAppointment(_ context.Context, a *models.Appointment) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appointments = append(l.appointments, a)
	return l.reference, l.err
}

type brokenStore struct{}

func (brokenStore) GetSession(context.Context, int64) (*models.Session, error) {
	return nil, errors.New("store unavailable")
}

func (brokenStore) SaveSession(context.Context, *models.Session) error {
	return errors.New("store unavailable")
}

type testEnv struct {
	bot     *Bot
	tg      *mockTelegramService
	store   *repository.MemoryStateRepository
	ledger  *mockLedger
	metrics *Metrics
	nextID  int
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Telegram: config.TelegramConfig{StaffChatID: "-100123"},
		Bot:      config.BotConfig{RemoteTimeout: time.Second},
	}
	for _, m := range mutate {
		m(cfg)
	}

	flow, err := dialogue.NewFlow(dialogue.Config{
		Calendar: normalize.Gregorian{},
		DayOff:   time.Friday,
		Location: time.UTC,
	})
	require.NoError(t, err)

	logger := zerolog.New(io.Discard)
	store := repository.NewMemoryStateRepository(time.Hour, time.Hour)
	tg := &mockTelegramService{updatesChan: make(chan tgbotapi.Update, 1)}
	ledger := &mockLedger{reference: "42"}
	metrics := NewMetrics(prometheus.NewRegistry())

	b, err := NewBot(tg, cfg, flow, service.NewStateService(store, time.Second, &logger), store, ledger, metrics, &logger)
	require.NoError(t, err)
	b.now = func() time.Time { return testNow }

	return &testEnv{bot: b, tg: tg, store: store, ledger: ledger, metrics: metrics}
}

func textUpdate(id int, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: userID},
			Chat: &tgbotapi.Chat{ID: userID},
			Text: text,
		},
	}
}

func (e *testEnv) say(text string) {
	e.nextID++
	e.bot.HandleUpdate(context.Background(), textUpdate(e.nextID, text))
}

func (e *testEnv) session(t *testing.T) *models.Session {
	t.Helper()
	s, err := e.store.GetSession(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, s)
	return s
}

func (e *testEnv) walkToConfirm() {
	for _, text := range []string{
		"/start",
		"علی رضایی",
		"۰۹۱۲۳۴۵۶۷۸۹",
		"MVM",
		"تعمیری",
		"صدای ترمز جلو",
		"2025/10/21",
		"10:30",
	} {
		e.say(text)
	}
}

func TestNewBot_RequiresCollaborators(t *testing.T) {
	_, err := NewBot(nil, &config.Config{}, nil, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestHappyPath(t *testing.T) {
	env := newTestEnv(t)

	env.walkToConfirm()
	assert.Equal(t, models.StepConfirm, env.session(t).Step)
	assert.Contains(t, env.tg.last(t).text, "علی رضایی")

	env.say("تایید")

	require.Len(t, env.ledger.appointments, 1)
	a := env.ledger.appointments[0]
	assert.Equal(t, userID, a.ConversationID)
	assert.Equal(t, "علی رضایی", a.FullName)
	assert.Equal(t, "09123456789", a.Phone)
	assert.Equal(t, "MVM", a.Brand)
	assert.Equal(t, "تعمیری", a.ServiceType)
	assert.Equal(t, "صدای ترمز جلو", a.IssueText)
	assert.Equal(t, "2025/10/21", a.PreferredDate)
	assert.Equal(t, "10:30", a.PreferredTime)
	assert.Equal(t, models.StatusRequested, a.Status)

	var staff, confirmations int
	for _, m := range env.tg.messages() {
		if m.chatID == staffChat {
			staff++
			assert.True(t, m.html)
			assert.Contains(t, m.text, "09123456789")
			assert.Contains(t, m.text, "42")
		}
		if m.chatID == userID && strings.Contains(m.text, dialogue.Confirmation("42")) {
			confirmations++
		}
	}
	assert.Equal(t, 1, staff)
	assert.Equal(t, 1, confirmations)

	s := env.session(t)
	assert.Equal(t, models.StepDone, s.Step)
	assert.Equal(t, "42", s.Reference)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.SubmissionsTotal.WithLabelValues("ok")))
}

func TestFirstContactWithoutStart(t *testing.T) {
	env := newTestEnv(t)

	env.say("مریم احمدی")

	s := env.session(t)
	assert.Equal(t, models.StepAskPhone, s.Step)
	assert.Equal(t, "مریم احمدی", s.Answers[models.FieldFullName])
}

func TestDoneState_OnlyRestartPrompt(t *testing.T) {
	env := newTestEnv(t)
	env.walkToConfirm()
	env.say("تایید")
	before := env.session(t)
	sent := len(env.tg.messages())

	env.say("سلام")

	assert.Len(t, env.tg.messages(), sent+1)
	assert.Contains(t, env.tg.last(t).text, "/start")
	assert.Len(t, env.ledger.appointments, 1)

	after := env.session(t)
	assert.Equal(t, models.StepDone, after.Step)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestReset_ClearsAnswers(t *testing.T) {
	env := newTestEnv(t)
	env.say("/start")
	env.say("علی رضایی")
	env.say("09123456789")
	require.Equal(t, models.StepAskBrand, env.session(t).Step)

	env.say("/reset")

	s := env.session(t)
	assert.Equal(t, models.StepAskName, s.Step)
	assert.Empty(t, s.Answers)
	assert.Nil(t, env.tg.last(t).options)
}

func TestPhoneValidation(t *testing.T) {
	env := newTestEnv(t)
	env.say("/start")
	env.say("علی رضایی")

	env.say("0912345678")
	assert.Equal(t, models.StepAskPhone, env.session(t).Step)
	assert.Contains(t, env.tg.last(t).text, "09123456789")

	env.say("09123456789")
	assert.Equal(t, models.StepAskBrand, env.session(t).Step)
	assert.Equal(t, dialogue.DefaultBrandOptions, env.tg.last(t).options)
}

func TestDuplicateUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.say("/start")

	update := textUpdate(100, "علی رضایی")
	env.bot.HandleUpdate(context.Background(), update)
	sent := len(env.tg.messages())
	first := env.session(t)

	env.bot.HandleUpdate(context.Background(), update)

	assert.Len(t, env.tg.messages(), sent)
	second := env.session(t)
	assert.Equal(t, models.StepAskPhone, second.Step)
	assert.Equal(t, first.UpdatedAt, second.UpdatedAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.UpdatesTotal.WithLabelValues(outcomeDuplicate)))
}

func TestLoadErrorDropsUpdate(t *testing.T) {
	env := newTestEnv(t)
	logger := zerolog.New(io.Discard)
	env.bot.stateService = service.NewStateService(brokenStore{}, time.Second, &logger)

	env.say("علی رضایی")

	assert.Empty(t, env.tg.messages())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.UpdatesTotal.WithLabelValues(outcomeDropped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.RemoteFailures.WithLabelValues(collaboratorState)))
}

func TestCommandSkipsLoad(t *testing.T) {
	env := newTestEnv(t)
	logger := zerolog.New(io.Discard)
	env.bot.stateService = service.NewStateService(brokenStore{}, time.Second, &logger)

	env.say("/start")

	// the reply still goes out even though the save failed
	require.Len(t, env.tg.messages(), 1)
	assert.Contains(t, env.tg.last(t).text, "👤")
}

func TestLedgerFailure_UsesPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.err = errors.New("apps script down")

	env.walkToConfirm()
	env.say("تایید")

	s := env.session(t)
	assert.Equal(t, models.StepDone, s.Step)
	assert.Equal(t, models.PlaceholderReference, s.Reference)
	assert.Contains(t, env.tg.last(t).text, dialogue.Confirmation(models.PlaceholderReference))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.RemoteFailures.WithLabelValues(collaboratorLedger)))
}

func TestEmptyReference_UsesPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	env.ledger.reference = ""

	env.walkToConfirm()
	env.say("بله")

	assert.Equal(t, models.PlaceholderReference, env.session(t).Reference)
}

func TestStaffDestination(t *testing.T) {
	t.Run("Channel", func(t *testing.T) {
		env := newTestEnv(t, func(c *config.Config) { c.Telegram.StaffChatID = "@nobat_staff" })
		env.walkToConfirm()
		env.say("تایید")

		var channel []sentMessage
		for _, m := range env.tg.messages() {
			if m.channel != "" {
				channel = append(channel, m)
			}
		}
		require.Len(t, channel, 1)
		assert.Equal(t, "@nobat_staff", channel[0].channel)
	})

	t.Run("Disabled", func(t *testing.T) {
		env := newTestEnv(t, func(c *config.Config) { c.Telegram.StaffChatID = "" })
		env.walkToConfirm()
		env.say("تایید")

		for _, m := range env.tg.messages() {
			assert.Equal(t, userID, m.chatID)
		}
		assert.Equal(t, models.StepDone, env.session(t).Step)
	})
}

func TestSendFailureStillCompletes(t *testing.T) {
	env := newTestEnv(t)
	env.walkToConfirm()
	env.tg.sendErr = errors.New("telegram 502")

	env.say("تایید")

	assert.Equal(t, models.StepDone, env.session(t).Step)
	assert.Len(t, env.ledger.appointments, 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.RemoteFailures.WithLabelValues(collaboratorTelegram)))
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Bot.RateLimitMessages = 2
		c.Bot.RateLimitWindow = time.Hour
	})

	env.say("/start")
	env.say("علی رضایی")
	env.say("09123456789")

	assert.Equal(t, msgTooFast, env.tg.last(t).text)
	assert.Equal(t, models.StepAskPhone, env.session(t).Step)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.UpdatesTotal.WithLabelValues(outcomeLimited)))
}

func TestCallbackQuery(t *testing.T) {
	env := newTestEnv(t)
	env.say("/start")
	env.say("علی رضایی")
	env.say("09123456789")

	env.bot.HandleUpdate(context.Background(), tgbotapi.Update{
		UpdateID: 500,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb-1",
			From:    &tgbotapi.User{ID: userID},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: userID}},
			Data:    "Chery",
		},
	})

	assert.Equal(t, []string{"cb-1"}, env.tg.callbacks)
	s := env.session(t)
	assert.Equal(t, "Chery", s.Answers[models.FieldBrand])
	assert.Equal(t, models.StepAskServiceType, s.Step)
}

func TestIgnoredUpdates(t *testing.T) {
	env := newTestEnv(t)

	env.bot.HandleUpdate(context.Background(), tgbotapi.Update{UpdateID: 1})
	env.bot.HandleUpdate(context.Background(), tgbotapi.Update{
		UpdateID: 2,
		Message:  &tgbotapi.Message{From: &tgbotapi.User{ID: userID}, Chat: &tgbotapi.Chat{ID: userID}},
	})

	assert.Empty(t, env.tg.messages())
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.UpdatesTotal.WithLabelValues(outcomeIgnored)))
}

type panickingLedger struct{}

func (panickingLedger) AppendAppointment(context.Context, *models.Appointment) (string, error) {
	panic("boom")
}

func TestPanicRecovered(t *testing.T) {
	env := newTestEnv(t)
	env.bot.ledger = panickingLedger{}
	env.walkToConfirm()

	assert.NotPanics(t, func() { env.say("تایید") })
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.UpdatesTotal.WithLabelValues(outcomePanic)))
}

func TestBotStart(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		env.bot.Start(ctx)
		close(done)
	}()

	env.tg.updatesChan <- textUpdate(1, "/start")

	assert.Eventually(t, func() bool { return len(env.tg.messages()) == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
	env.tg.mu.Lock()
	assert.True(t, env.tg.stopped)
	env.tg.mu.Unlock()
}

type limiterDown struct {
	*repository.MemoryStateRepository
}

func (limiterDown) CheckRateLimit(context.Context, int64, int, time.Duration) (bool, error) {
	return false, errors.New("counter unavailable")
}

func TestRateLimit_CheckFailureLetsMessageThrough(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Bot.RateLimitMessages = 1
		c.Bot.RateLimitWindow = time.Hour
	})
	env.bot.gate = limiterDown{env.store}

	env.say("/start")
	env.say("علی رضایی")

	assert.Equal(t, models.StepAskPhone, env.session(t).Step)
	assert.Zero(t, testutil.ToFloat64(env.metrics.UpdatesTotal.WithLabelValues(outcomeLimited)))
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.RemoteFailures.WithLabelValues(collaboratorRateLimit)))
}

func TestRateLimit_Disabled(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 30; i++ {
		env.say("/start")
	}
	assert.Zero(t, testutil.ToFloat64(env.metrics.UpdatesTotal.WithLabelValues(outcomeLimited)))
}
