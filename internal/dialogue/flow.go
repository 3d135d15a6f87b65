// Package dialogue implements the intake conversation as a table of steps.
//
// Flow.Advance is pure: it takes the stored session and one line of user text and
// returns the next session together with at most one reply. Persistence, delivery
// and submission are left to the caller.
package dialogue

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"nobat/internal/models"
	"nobat/internal/normalize"
	"nobat/internal/validation"
)

const (
	CommandStart = "/start"
	CommandReset = "/reset"

	defaultMinName  = 2
	defaultMinPlate = 5
	datesPerRow     = 2
)

var (
	affirmativeTokens = map[string]bool{"تایید": true, "تأیید": true, "بله": true, "ok": true, "yes": true, "confirm": true}
	negativeTokens    = map[string]bool{"لغو": true, "خیر": true, "cancel": true, "no": true}

	confirmOptions = [][]string{{"تایید", "لغو"}}

	// DefaultBrandOptions and DefaultServiceOptions are the quick replies used when none are configured.
	DefaultBrandOptions   = [][]string{{"MVM", "Chery", "Fownix", "Other"}}
	DefaultServiceOptions = [][]string{{"دوره‌ای", "تعمیری"}, {"بررسی", "نصب آپشن", "گارانتی"}}
)

// Config describes the field sequence and the knobs of the per-step validators.
type Config struct {
	Fields         []string
	BrandOptions   [][]string
	ServiceOptions [][]string
	Calendar       normalize.Calendar
	DayOff         time.Weekday
	DateCount      int
	Location       *time.Location
	PhonePattern   *regexp.Regexp
	MinNameLength  int
	MinPlateLength int
}

// Reply is one outbound prompt with optional quick-reply rows.
type Reply struct {
	Text    string
	Options [][]string
}

// Outcome is the result of feeding one message into the flow.
// Changed means Session must be persisted; Submit means the conversation was confirmed
// and the caller owns persistence and the final reply.
type Outcome struct {
	Session *models.Session
	Reply   *Reply
	Changed bool
	Submit  bool
}

type stepSpec struct {
	step     models.Step
	field    string
	validate func(text string, s *models.Session) (string, error)
	options  func(s *models.Session) [][]string
	enter    func(s *models.Session, now time.Time)
}

type Flow struct {
	cfg    Config
	fields []string
	steps  []stepSpec
	index  map[models.Step]int
}

func NewFlow(cfg Config) (*Flow, error) {
	if len(cfg.Fields) == 0 {
		cfg.Fields = models.DefaultFields
	}
	if cfg.BrandOptions == nil {
		cfg.BrandOptions = DefaultBrandOptions
	}
	if cfg.ServiceOptions == nil {
		cfg.ServiceOptions = DefaultServiceOptions
	}
	if cfg.Calendar == nil {
		cfg.Calendar = normalize.Jalali{}
	}
	if cfg.DateCount <= 0 {
		cfg.DateCount = models.DefaultDateCount
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PhonePattern == nil {
		re, err := validation.CompilePhonePattern("")
		if err != nil {
			return nil, err
		}
		cfg.PhonePattern = re
	}
	if cfg.MinNameLength <= 0 {
		cfg.MinNameLength = defaultMinName
	}
	if cfg.MinPlateLength <= 0 {
		cfg.MinPlateLength = defaultMinPlate
	}

	f := &Flow{
		cfg:   cfg,
		index: make(map[models.Step]int, len(cfg.Fields)),
	}
	for _, field := range cfg.Fields {
		field = strings.TrimSpace(field)
		step, ok := models.StepForField[field]
		if !ok {
			return nil, fmt.Errorf("dialogue: unknown field %q", field)
		}
		if _, dup := f.index[step]; dup {
			return nil, fmt.Errorf("dialogue: field %q listed twice", field)
		}
		f.index[step] = len(f.steps)
		f.fields = append(f.fields, field)
		f.steps = append(f.steps, f.specFor(step, field))
	}
	return f, nil
}

func (f *Flow) specFor(step models.Step, field string) stepSpec {
	spec := stepSpec{step: step, field: field}
	switch step {
	case models.StepAskName:
		spec.validate = func(text string, _ *models.Session) (string, error) {
			return validation.Name(text, f.cfg.MinNameLength)
		}
	case models.StepAskPhone:
		spec.validate = func(text string, _ *models.Session) (string, error) {
			return validation.Phone(text, f.cfg.PhonePattern)
		}
	case models.StepAskBrand:
		spec.validate = nonEmpty
		spec.options = func(*models.Session) [][]string { return f.cfg.BrandOptions }
	case models.StepAskServiceType:
		spec.validate = nonEmpty
		spec.options = func(*models.Session) [][]string { return f.cfg.ServiceOptions }
	case models.StepAskPlate:
		spec.validate = func(text string, _ *models.Session) (string, error) {
			return validation.Plate(text, f.cfg.MinPlateLength)
		}
	case models.StepAskIssue:
		spec.validate = nonEmpty
	case models.StepAskDate:
		spec.validate = func(text string, s *models.Session) (string, error) {
			return validation.Date(text, s.OfferedDates)
		}
		spec.options = func(s *models.Session) [][]string { return chunk(s.OfferedDates, datesPerRow) }
		spec.enter = f.offerDates
	case models.StepAskTime:
		spec.validate = func(text string, _ *models.Session) (string, error) {
			return validation.Time(text)
		}
	}
	return spec
}

func nonEmpty(text string, _ *models.Session) (string, error) {
	return validation.NonEmpty(text)
}

func (f *Flow) offerDates(s *models.Session, now time.Time) {
	s.OfferedDates = normalize.NextEligibleDates(now.In(f.cfg.Location), f.cfg.DateCount, f.cfg.DayOff, f.cfg.Calendar)
}

// Fields returns the configured field order.
func (f *Flow) Fields() []string {
	return append([]string(nil), f.fields...)
}

// FirstStep is the step a fresh session starts at.
func (f *Flow) FirstStep() models.Step {
	return f.steps[0].step
}

// Initial returns a fresh session parked at the first step.
func (f *Flow) Initial(conversationID int64, now time.Time) *models.Session {
	s := models.NewSession(conversationID, f.FirstStep())
	f.enter(s, 0, now)
	return s
}

// IsCommand reports whether text is one of the global commands, with or without a @bot suffix.
func IsCommand(text string) bool {
	return command(text) != ""
}

func command(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name := strings.ToLower(fields[0])
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	if name == CommandStart || name == CommandReset {
		return name
	}
	return ""
}

// Advance applies one message to the session. The input session is not modified.
func (f *Flow) Advance(s *models.Session, text string, now time.Time) Outcome {
	text = strings.TrimSpace(normalize.Digits(text))

	switch command(text) {
	case CommandStart:
		return f.restart(s.ConversationID, now, msgGreeting)
	case CommandReset:
		return f.restart(s.ConversationID, now, msgResetDone)
	}

	switch s.Step {
	case models.StepDone:
		return Outcome{Session: s, Reply: &Reply{Text: msgStartAgain}}
	case models.StepConfirm:
		return f.confirm(s, text, now)
	}

	i, ok := f.index[s.Step]
	if !ok {
		return f.restart(s.ConversationID, now, "")
	}
	spec := f.steps[i]

	next := s.Clone()
	changed := false
	if spec.enter != nil && spec.step == models.StepAskDate && len(next.OfferedDates) == 0 {
		spec.enter(next, now)
		changed = true
	}

	value, err := spec.validate(text, next)
	if err != nil {
		reply := &Reply{Text: hintFor(spec.step, err)}
		if spec.options != nil {
			reply.Options = spec.options(next)
		}
		return Outcome{Session: next, Reply: reply, Changed: changed}
	}

	next.Answers[spec.field] = value
	f.enter(next, i+1, now)
	return Outcome{Session: next, Reply: f.prompt(next), Changed: true}
}

func (f *Flow) confirm(s *models.Session, text string, now time.Time) Outcome {
	token := strings.ToLower(text)
	switch {
	case affirmativeTokens[token]:
		next := s.Clone()
		next.Step = models.StepDone
		next.OfferedDates = nil
		return Outcome{Session: next, Changed: true, Submit: true}
	case negativeTokens[token]:
		return f.restart(s.ConversationID, now, msgCanceled)
	}
	return Outcome{Session: s, Reply: &Reply{Text: f.Summary(s), Options: confirmOptions}}
}

func (f *Flow) restart(conversationID int64, now time.Time, notice string) Outcome {
	s := f.Initial(conversationID, now)
	reply := f.prompt(s)
	if notice != "" {
		reply.Text = notice + "\n" + reply.Text
	}
	return Outcome{Session: s, Reply: reply, Changed: true}
}

// enter moves s to the i-th step, or to confirm past the last field, and runs the entry hook.
func (f *Flow) enter(s *models.Session, i int, now time.Time) {
	if i >= len(f.steps) {
		s.Step = models.StepConfirm
		return
	}
	spec := f.steps[i]
	s.Step = spec.step
	if spec.enter != nil {
		spec.enter(s, now)
	}
}

// prompt builds the reply that asks for the session's current step.
func (f *Flow) prompt(s *models.Session) *Reply {
	if s.Step == models.StepConfirm {
		return &Reply{Text: f.Summary(s), Options: confirmOptions}
	}
	i, ok := f.index[s.Step]
	if !ok {
		return &Reply{Text: msgStartAgain}
	}
	spec := f.steps[i]
	reply := &Reply{Text: stepPrompts[spec.step]}
	if spec.options != nil {
		reply.Options = spec.options(s)
	}
	return reply
}

func chunk(items []string, size int) [][]string {
	var rows [][]string
	for len(items) > 0 {
		n := min(size, len(items))
		rows = append(rows, items[:n:n])
		items = items[n:]
	}
	return rows
}
