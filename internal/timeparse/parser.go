// Package timeparse turns visitor-typed date/time text into an instant.
//
// Parsing is two-staged: a strict structured parse of explicit dates and
// times, then a natural-language fallback for relative phrases such as
// "tomorrow at 3pm" or "next friday".
package timeparse

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var (
	// ErrUnparseable means neither stage understood the text.
	ErrUnparseable = errors.New("timeparse: could not understand date/time")
	// ErrParserUnavailable means the strict stage failed and no
	// natural-language parser is configured.
	ErrParserUnavailable = errors.New("timeparse: natural-language parser not available")
)

// NaturalParser is the fallback stage. *when.Parser satisfies it.
type NaturalParser interface {
	Parse(text string, base time.Time) (*when.Result, error)
}

// Parser runs the strict stage then the natural-language stage.
type Parser struct {
	natural NaturalParser
}

// New returns a parser with the English natural-language fallback.
func New() *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{natural: w}
}

// NewStrict returns a parser without a fallback stage.
func NewStrict() *Parser {
	return &Parser{}
}

// NewWithNatural returns a parser using np as the fallback stage.
func NewWithNatural(np NaturalParser) *Parser {
	return &Parser{natural: np}
}

// HasNatural reports whether a fallback stage is configured.
func (p *Parser) HasNatural() bool {
	return p != nil && p.natural != nil
}

var strictLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 3:04 PM",
	"2006-01-02 3:04PM",
	"2006-01-02 3 PM",
	"2006-01-02 3PM",
	"2006-01-02 at 15:04",
	"2006-01-02 at 3:04 PM",
	"2006-01-02 at 3 PM",
	"2006-01-02 at 3PM",
}

// Parse interprets raw relative to now. Wall-clock values without an offset
// are read in now's location.
func (p *Parser) Parse(raw string, now time.Time) (time.Time, error) {
	text := normalize(raw)
	if text == "" {
		if p.HasNatural() {
			return time.Time{}, ErrUnparseable
		}
		return time.Time{}, ErrParserUnavailable
	}

	if t, ok := parseStrict(text, now.Location()); ok {
		return t, nil
	}
	if !p.HasNatural() {
		return time.Time{}, ErrParserUnavailable
	}

	r, err := p.natural.Parse(text, now)
	if err != nil || r == nil || r.Time.IsZero() {
		return time.Time{}, ErrUnparseable
	}
	return r.Time.In(now.Location()), nil
}

// ParseDay resolves a day for slot re-selection. "YYYY-MM-DD" is taken
// literally; anything else goes through Parse. The result is midnight in
// now's location.
func (p *Parser) ParseDay(raw string, now time.Time) (time.Time, error) {
	text := strings.TrimSpace(raw)
	if d, err := time.ParseInLocation("2006-01-02", text, now.Location()); err == nil {
		return d, nil
	}
	t, err := p.Parse(text, now)
	if err != nil {
		return time.Time{}, err
	}
	return StartOfDay(t), nil
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func parseStrict(text string, loc *time.Location) (time.Time, bool) {
	if !strings.ContainsFunc(text, unicode.IsDigit) {
		return time.Time{}, false
	}
	candidate := stripWeekday(text)

	for _, layout := range strictLayouts {
		if t, err := time.ParseInLocation(layout, strings.ToUpper(candidate), loc); err == nil {
			return t, true
		}
		if t, err := time.ParseInLocation(layout, candidate, loc); err == nil {
			return t, true
		}
	}

	t, err := dateparse.ParseIn(candidate, loc)
	if err != nil || t.Year() < 1970 {
		return time.Time{}, false
	}
	return t, true
}

func normalize(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

var weekdayTokens = map[string]struct{}{
	"monday": {}, "tuesday": {}, "wednesday": {}, "thursday": {}, "friday": {}, "saturday": {}, "sunday": {},
	"mon": {}, "tue": {}, "tues": {}, "wed": {}, "thu": {}, "thur": {}, "thurs": {}, "fri": {}, "sat": {}, "sun": {},
}

// stripWeekday drops a leading weekday token ("monday 2025-03-03 10:00").
func stripWeekday(text string) string {
	first, rest, found := strings.Cut(text, " ")
	if !found {
		return text
	}
	if _, ok := weekdayTokens[strings.TrimRight(strings.ToLower(first), ",")]; ok {
		return strings.TrimSpace(rest)
	}
	return text
}
