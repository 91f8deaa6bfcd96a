package negotiator

import (
	"regexp"
	"strings"
	"time"
)

var yesPattern = regexp.MustCompile(`(?i)^y(es)?$`)

// IsYes reports whether text is an affirmative "y" or "yes".
func IsYes(text string) bool {
	return yesPattern.MatchString(strings.TrimSpace(text))
}

var exactCancelPhrases = map[string]struct{}{
	"cancel":      {},
	"stop":        {},
	"quit":        {},
	"exit":        {},
	"abort":       {},
	"nope":        {},
	"back":        {},
	"never mind":  {},
	"nevermind":   {},
	"forget it":   {},
	"not now":     {},
	"start over":  {},
	"book later":  {},
	"not booking": {},
}

var containedCancelPhrases = []string{
	"cancel",
	"never mind",
	"forget it",
	"don't want",
	"don’t want",
	"not booking",
	"maybe another time",
	"some other time",
	"will book later",
}

// IsCancel reports whether text asks to abandon the booking. Single words
// must match exactly; longer phrases may appear anywhere in the text.
func IsCancel(text string) bool {
	norm := strings.ToLower(strings.Join(strings.Fields(text), " "))
	norm = strings.TrimRight(norm, ".!")
	if norm == "" {
		return false
	}
	if _, ok := exactCancelPhrases[norm]; ok {
		return true
	}
	for _, phrase := range containedCancelPhrases {
		if strings.Contains(norm, phrase) {
			return true
		}
	}
	return false
}

// FormatInstant renders t for chat messages, e.g. "Mon, Mar 3 2025 at 10:00 AM".
func FormatInstant(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("Mon, Jan 2 2006 at 3:04 PM")
}

// FormatSlot renders a slot button label.
func FormatSlot(t time.Time) string {
	return t.Format("3:04 PM")
}
