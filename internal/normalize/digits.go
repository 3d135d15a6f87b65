// Package normalize converts localized numerals and renders the upcoming-dates window.
package normalize

import "strings"

const (
	arabicIndicZero = '٠'
	persianZero     = '۰'
)

// Digits maps Arabic-Indic (U+0660..U+0669) and Persian (U+06F0..U+06F9) digits to ASCII.
// Every other rune passes through unchanged.
func Digits(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= arabicIndicZero && r <= arabicIndicZero+9:
			return '0' + (r - arabicIndicZero)
		case r >= persianZero && r <= persianZero+9:
			return '0' + (r - persianZero)
		}
		return r
	}, text)
}
