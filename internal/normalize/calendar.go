package normalize

import (
	"fmt"
	"strings"
	"time"
)

// Calendar renders a civil date as a YYYY/MM/DD label.
type Calendar interface {
	Name() string
	Format(t time.Time) string
}

type Gregorian struct{}

func (Gregorian) Name() string { return "gregorian" }

func (Gregorian) Format(t time.Time) string {
	return fmt.Sprintf("%04d/%02d/%02d", t.Year(), int(t.Month()), t.Day())
}

// Jalali renders dates in the solar Hijri calendar.
type Jalali struct{}

func (Jalali) Name() string { return "jalali" }

func (Jalali) Format(t time.Time) string {
	jy, jm, jd := GregorianToJalali(t.Year(), int(t.Month()), t.Day())
	return fmt.Sprintf("%04d/%02d/%02d", jy, jm, jd)
}

// ParseCalendar resolves a configured calendar name. Empty means jalali.
func ParseCalendar(name string) (Calendar, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "jalali", "persian", "shamsi":
		return Jalali{}, nil
	case "gregorian":
		return Gregorian{}, nil
	}
	return nil, fmt.Errorf("unknown calendar %q", name)
}

// cumulative day counts before each Gregorian month in a common year
var gregorianMonthOffsets = [12]int{0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334}

// GregorianToJalali converts a Gregorian date using a day count folded over the
// 33-year (12053 day) and 4-year (1461 day) Jalali cycles.
func GregorianToJalali(gy, gm, gd int) (jy, jm, jd int) {
	gy2 := gy
	if gm > 2 {
		gy2 = gy + 1
	}
	days := 355666 + 365*gy + (gy2+3)/4 - (gy2+99)/100 + (gy2+399)/400 + gd + gregorianMonthOffsets[gm-1]

	jy = -1595 + 33*(days/12053)
	days %= 12053
	jy += 4 * (days / 1461)
	days %= 1461
	if days > 365 {
		jy += (days - 1) / 365
		days = (days - 1) % 365
	}

	if days < 186 {
		jm = 1 + days/31
		jd = 1 + days%31
	} else {
		jm = 7 + (days-186)/30
		jd = 1 + (days-186)%30
	}
	return jy, jm, jd
}
