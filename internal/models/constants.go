package models

const (
	StatusRequested = "requested"
)

const (
	ParseModeHTML = "HTML"
)

// Step is a dialogue state persisted in Session.Step.
type Step string

const (
	StepAskName        Step = "ask_full_name"
	StepAskPhone       Step = "ask_phone"
	StepAskBrand       Step = "ask_brand"
	StepAskServiceType Step = "ask_service_type"
	StepAskPlate       Step = "ask_plate"
	StepAskIssue       Step = "ask_issue"
	StepAskDate        Step = "ask_date"
	StepAskTime        Step = "ask_time"
	StepConfirm        Step = "confirm"
	StepDone           Step = "done"
)

// Answer field names, shared by the session, the ledger payload and the config field list.
const (
	FieldFullName      = "full_name"
	FieldPhone         = "phone"
	FieldBrand         = "brand"
	FieldServiceType   = "service_type"
	FieldPlate         = "plate"
	FieldIssueText     = "issue_text"
	FieldPreferredDate = "preferred_date"
	FieldPreferredTime = "preferred_time"
)

// StepForField maps every collectable field to the step that asks for it.
var StepForField = map[string]Step{
	FieldFullName:      StepAskName,
	FieldPhone:         StepAskPhone,
	FieldBrand:         StepAskBrand,
	FieldServiceType:   StepAskServiceType,
	FieldPlate:         StepAskPlate,
	FieldIssueText:     StepAskIssue,
	FieldPreferredDate: StepAskDate,
	FieldPreferredTime: StepAskTime,
}

// DefaultFields is the field order used when the config does not list one.
var DefaultFields = []string{
	FieldFullName,
	FieldPhone,
	FieldBrand,
	FieldServiceType,
	FieldIssueText,
	FieldPreferredDate,
	FieldPreferredTime,
}

const (
	// DefaultStateTTL время жизни сессии после последней записи
	DefaultStateTTL = 24 * 60 * 60 // 24 часа в секундах

	// DefaultDedupeTTL сколько помним обработанный update_id
	DefaultDedupeTTL = 48 * 60 * 60

	// DefaultRemoteTimeout таймаут любого внешнего вызова
	DefaultRemoteTimeout = 10

	// DefaultDateCount количество предлагаемых дат
	DefaultDateCount = 7

	// PlaceholderReference показывается, если леджер не вернул идентификатор
	PlaceholderReference = "-"
)
