package models

import "time"

// Appointment is the submission payload sent to the ledger.
type Appointment struct {
	ConversationID int64     `json:"conversation_id"`
	FullName       string    `json:"full_name"`
	Phone          string    `json:"phone"`
	Brand          string    `json:"brand"`
	ServiceType    string    `json:"service_type"`
	Plate          string    `json:"plate,omitempty"`
	IssueText      string    `json:"issue_text"`
	PreferredDate  string    `json:"preferred_date"`
	PreferredTime  string    `json:"preferred_time"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewAppointment projects the collected answers into an appointment with the initial status.
func NewAppointment(s *Session, createdAt time.Time) *Appointment {
	return &Appointment{
		ConversationID: s.ConversationID,
		FullName:       s.GetString(FieldFullName),
		Phone:          s.GetString(FieldPhone),
		Brand:          s.GetString(FieldBrand),
		ServiceType:    s.GetString(FieldServiceType),
		Plate:          s.GetString(FieldPlate),
		IssueText:      s.GetString(FieldIssueText),
		PreferredDate:  s.GetString(FieldPreferredDate),
		PreferredTime:  s.GetString(FieldPreferredTime),
		Status:         StatusRequested,
		CreatedAt:      createdAt,
	}
}

// Value returns the appointment value for an answer field name.
func (a *Appointment) Value(field string) string {
	switch field {
	case FieldFullName:
		return a.FullName
	case FieldPhone:
		return a.Phone
	case FieldBrand:
		return a.Brand
	case FieldServiceType:
		return a.ServiceType
	case FieldPlate:
		return a.Plate
	case FieldIssueText:
		return a.IssueText
	case FieldPreferredDate:
		return a.PreferredDate
	case FieldPreferredTime:
		return a.PreferredTime
	}
	return ""
}
