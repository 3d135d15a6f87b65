package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSession_Helpers(t *testing.T) {
	t.Run("NilAnswers", func(t *testing.T) {
		s := &Session{}
		assert.Equal(t, "", s.GetString("any"))
	})

	t.Run("NewSession", func(t *testing.T) {
		s := NewSession(42, StepAskName)
		assert.Equal(t, int64(42), s.ConversationID)
		assert.Equal(t, StepAskName, s.Step)
		assert.NotNil(t, s.Answers)
		assert.Empty(t, s.Answers)
	})

	t.Run("CloneIsDeep", func(t *testing.T) {
		s := NewSession(1, StepAskPhone)
		s.Answers[FieldFullName] = "Ali"
		s.OfferedDates = []string{"1404/08/03"}

		c := s.Clone()
		c.Answers[FieldPhone] = "09123456789"
		c.OfferedDates[0] = "changed"

		assert.NotContains(t, s.Answers, FieldPhone)
		assert.Equal(t, "1404/08/03", s.OfferedDates[0])
		assert.Equal(t, "Ali", c.GetString(FieldFullName))
		assert.Nil(t, (*Session)(nil).Clone())
	})
}

func TestNewAppointment(t *testing.T) {
	now := time.Date(2025, 10, 25, 9, 0, 0, 0, time.UTC)
	s := NewSession(7, StepConfirm)
	s.Answers = map[string]string{
		FieldFullName:      "Ali Rezaei",
		FieldPhone:         "09123456789",
		FieldBrand:         "Chery",
		FieldServiceType:   "تعمیری",
		FieldIssueText:     "noise",
		FieldPreferredDate: "1404/08/04",
		FieldPreferredTime: "10:30",
	}

	app := NewAppointment(s, now)
	assert.Equal(t, int64(7), app.ConversationID)
	assert.Equal(t, StatusRequested, app.Status)
	assert.Equal(t, now, app.CreatedAt)
	assert.Equal(t, "", app.Plate)

	for field, want := range s.Answers {
		assert.Equal(t, want, app.Value(field), field)
	}
	assert.Equal(t, "", app.Value("unknown"))
}
