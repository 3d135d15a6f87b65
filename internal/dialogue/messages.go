package dialogue

import (
	"errors"
	"html"
	"strings"

	"nobat/internal/models"
	"nobat/internal/validation"
)

const (
	msgGreeting     = "سلام! 👋 به ربات رزرو نوبت تعمیرگاه خوش آمدید."
	msgResetDone    = "🔄 ریست شد."
	msgCanceled     = "❌ عملیات لغو شد."
	msgStartAgain   = "برای شروع /start را بزنید."
	msgConfirmHint  = "برای تایید «تایید» یا برای لغو «لغو» را بفرستید."
	msgSummaryTitle = "اطلاعات شما:"
	msgStaffTitle   = "🆕 نوبت جدید ثبت شد"
	msgSubmitted    = "✅ درخواست شما ثبت شد. همکاران با شما تماس می‌گیرند."
	msgReference    = "شناسه نوبت: "

	msgAskName    = "👤 لطفاً نام و نام‌خانوادگی‌تان را بنویسید."
	msgAskPhone   = "📱 شماره موبایل خود را بفرستید (مثال: 09123456789)"
	msgAskBrand   = "🚗 برند خودروی شما چیست؟"
	msgAskService = "🔧 نوع خدمت را انتخاب کنید"
	msgAskPlate   = "🔢 شماره پلاک خودرو را وارد کنید."
	msgAskIssue   = "📝 لطفاً توضیحی کوتاه در مورد مشکل یا درخواست بنویسید."
	msgAskDate    = "📅 یکی از تاریخ‌های زیر را انتخاب کنید:"
	msgAskTime    = "⏰ ساعت دلخواه (مثال: 10:30) را وارد کنید."
)

var fieldLabels = map[string]string{
	models.FieldFullName:      "👤 نام",
	models.FieldPhone:         "📞 موبایل",
	models.FieldBrand:         "🚗 برند",
	models.FieldServiceType:   "🔧 خدمت",
	models.FieldPlate:         "🔢 پلاک",
	models.FieldIssueText:     "📝 توضیحات",
	models.FieldPreferredDate: "🗓 تاریخ",
	models.FieldPreferredTime: "⏰ ساعت",
}

var stepPrompts = map[models.Step]string{
	models.StepAskName:        msgAskName,
	models.StepAskPhone:       msgAskPhone,
	models.StepAskBrand:       msgAskBrand,
	models.StepAskServiceType: msgAskService,
	models.StepAskPlate:       msgAskPlate,
	models.StepAskIssue:       msgAskIssue,
	models.StepAskDate:        msgAskDate,
	models.StepAskTime:        msgAskTime,
}

// hintFor maps a validation error to the correction text shown to the user.
func hintFor(step models.Step, err error) string {
	switch {
	case errors.Is(err, validation.ErrEmpty) && step == models.StepAskName:
		return "لطفاً نام را وارد کنید."
	case errors.Is(err, validation.ErrEmpty):
		return "این مورد نمی‌تواند خالی باشد."
	case errors.Is(err, validation.ErrNameTooShort):
		return "نام وارد شده خیلی کوتاه است؛ لطفاً نام کامل را بنویسید."
	case errors.Is(err, validation.ErrInvalidPhone):
		return "فرمت شماره اشتباه است؛ مثال: 09123456789"
	case errors.Is(err, validation.ErrPlateTooShort):
		return "شماره پلاک کامل نیست؛ لطفاً دوباره وارد کنید."
	case errors.Is(err, validation.ErrInvalidDateFormat):
		return "فرمت تاریخ اشتباه است؛ یکی از تاریخ‌های پیشنهادی را انتخاب کنید."
	case errors.Is(err, validation.ErrDateNotOffered):
		return "این تاریخ در فهرست نیست؛ یکی از تاریخ‌های پیشنهادی را انتخاب کنید."
	case errors.Is(err, validation.ErrInvalidTime):
		return "فرمت ساعت اشتباه است؛ مثال: 10:30"
	}
	return "ورودی نامعتبر است؛ لطفاً دوباره تلاش کنید."
}

func writeField(b *strings.Builder, field, value string) {
	b.WriteString(fieldLabels[field])
	b.WriteString(": ")
	b.WriteString(html.EscapeString(value))
	b.WriteString("\n")
}

// Summary renders the collected answers for the confirm step, in flow order.
func (f *Flow) Summary(s *models.Session) string {
	var b strings.Builder
	b.WriteString(msgSummaryTitle)
	b.WriteString("\n")
	for _, field := range f.fields {
		writeField(&b, field, s.GetString(field))
	}
	b.WriteString("\n")
	b.WriteString(msgConfirmHint)
	return b.String()
}

// StaffSummary renders the notification sent to the staff chat.
func (f *Flow) StaffSummary(a *models.Appointment, reference string) string {
	var b strings.Builder
	b.WriteString(msgStaffTitle)
	b.WriteString("\n")
	for _, field := range f.fields {
		writeField(&b, field, a.Value(field))
	}
	b.WriteString("🆔 ")
	b.WriteString(html.EscapeString(reference))
	return b.String()
}

// Confirmation is the final message to the user after submission.
func Confirmation(reference string) string {
	return msgSubmitted + "\n" + msgReference + html.EscapeString(reference)
}
