package widget

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidEmail is returned by ValidateEmail.
var ErrInvalidEmail = errors.New("widget: invalid email")

var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	intentRegex  = regexp.MustCompile(`(?i)\b(book|schedule|appointment|meeting)\b`)
	dateHintExpr = regexp.MustCompile(`(?i)\b(?:\d{4}-\d{2}-\d{2}|tomorrow|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	timeHintExpr = regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2})?\s?(?:am|pm)\b|\b\d{1,2}:\d{2}\b`)
)

// ValidateEmail checks the address shape.
func ValidateEmail(email string) error {
	if !emailRegex.MatchString(strings.TrimSpace(email)) {
		return ErrInvalidEmail
	}
	return nil
}

// Intent is what a visitor message asks for.
type Intent struct {
	Booking bool
	Date    string
	Time    string
}

// ParseIntent detects a booking request and any date/time hints in text.
func ParseIntent(text string) Intent {
	return Intent{
		Booking: intentRegex.MatchString(text),
		Date:    dateHintExpr.FindString(text),
		Time:    strings.TrimSpace(timeHintExpr.FindString(text)),
	}
}
