// Package validation holds the per-step input predicates of the intake dialogue.
// Callers pass digit-normalized text; a nil error means the returned value may be stored.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrEmpty             = errors.New("empty answer")
	ErrNameTooShort      = errors.New("name too short")
	ErrInvalidPhone      = errors.New("invalid phone number")
	ErrPlateTooShort     = errors.New("plate too short")
	ErrInvalidDateFormat = errors.New("invalid date format")
	ErrDateNotOffered    = errors.New("date was not offered")
	ErrInvalidTime       = errors.New("invalid time")
)

// DefaultPhonePattern matches an Iranian mobile number: 09 followed by nine digits.
const DefaultPhonePattern = `^09\d{9}$`

var (
	dateRegex  = regexp.MustCompile(`^\d{4}/\d{2}/\d{2}$`)
	timeRegex  = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?$`)
	phoneStrip = strings.NewReplacer(" ", "", "-", "", "\u00a0", "")
)

// CompilePhonePattern compiles a configured phone pattern, falling back to DefaultPhonePattern.
func CompilePhonePattern(pattern string) (*regexp.Regexp, error) {
	if strings.TrimSpace(pattern) == "" {
		pattern = DefaultPhonePattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile phone pattern: %w", err)
	}
	return re, nil
}

// NonEmpty accepts any text that is not blank.
func NonEmpty(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// Name accepts a name of at least minRunes characters.
func Name(text string, minRunes int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmpty
	}
	if utf8.RuneCountInString(text) < minRunes {
		return "", ErrNameTooShort
	}
	return text, nil
}

// Phone strips separators and matches the national mobile pattern.
func Phone(text string, pattern *regexp.Regexp) (string, error) {
	phone := phoneStrip.Replace(strings.TrimSpace(text))
	if phone == "" {
		return "", ErrEmpty
	}
	if !pattern.MatchString(phone) {
		return "", ErrInvalidPhone
	}
	return phone, nil
}

// Plate accepts a plate with at least minRunes non-space characters.
func Plate(text string, minRunes int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmpty
	}
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	if n < minRunes {
		return "", ErrPlateTooShort
	}
	return text, nil
}

// Date accepts a YYYY/MM/DD label that is one of the offered dates.
func Date(text string, offered []string) (string, error) {
	text = strings.TrimSpace(text)
	if !dateRegex.MatchString(text) {
		return "", ErrInvalidDateFormat
	}
	if !slices.Contains(offered, text) {
		return "", ErrDateNotOffered
	}
	return text, nil
}

// Time accepts H, HH, H:MM or HH:MM and returns the canonical HH:MM form.
func Time(text string) (string, error) {
	m := timeRegex.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", ErrInvalidTime
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if hour > 23 || minute > 59 {
		return "", ErrInvalidTime
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}
