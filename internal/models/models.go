package models

import "time"

// Session is the persisted state of one intake conversation.
type Session struct {
	ConversationID int64             `json:"conversation_id"`
	Step           Step              `json:"step"`
	Answers        map[string]string `json:"answers"`
	OfferedDates   []string          `json:"offered_dates,omitempty"`
	Reference      string            `json:"reference,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// NewSession returns an empty session parked at step.
func NewSession(conversationID int64, step Step) *Session {
	return &Session{
		ConversationID: conversationID,
		Step:           step,
		Answers:        make(map[string]string),
	}
}

// Clone returns a deep copy so callers can compute a new state without touching the old one.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Answers = make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		c.Answers[k] = v
	}
	if s.OfferedDates != nil {
		c.OfferedDates = append([]string(nil), s.OfferedDates...)
	}
	return &c
}

func (s *Session) GetString(key string) string {
	if s.Answers == nil {
		return ""
	}
	return s.Answers[key]
}
