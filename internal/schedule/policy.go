// Package schedule holds the working-hours policy and open-slot computation
// used while negotiating a meeting time.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultMeetingMinutes is used when a client does not configure a duration.
	DefaultMeetingMinutes = 40
	// SlotStep is the spacing between candidate slot starts.
	SlotStep = 30 * time.Minute
)

// DefaultWindow is the day window used for slot computation on days the
// policy does not list.
var DefaultWindow = Window{Start: 9 * 60, End: 17 * 60}

// ErrOutsideHours is wrapped by PolicyViolation.
var ErrOutsideHours = errors.New("schedule: time is outside available hours")

// Window is a wall-clock interval expressed in minutes after midnight.
type Window struct {
	Start int
	End   int
}

// String renders the window as "09:00 - 17:00".
func (w Window) String() string {
	return formatClock(w.Start) + " - " + formatClock(w.End)
}

// Contains reports whether minute lies in [Start, End], end inclusive.
func (w Window) Contains(minute int) bool {
	return minute >= w.Start && minute <= w.End
}

// DayWindow pairs a weekday with its window, for announcements.
type DayWindow struct {
	Day    time.Weekday
	Window Window
}

// Policy maps weekdays to working windows plus a meeting duration.
// It is immutable once built.
type Policy struct {
	days     map[time.Weekday]Window
	duration time.Duration
}

// PolicyViolation describes a candidate rejected by the working-hours check.
type PolicyViolation struct {
	Day    time.Weekday
	Window Window
	At     time.Time
}

func (v *PolicyViolation) Error() string {
	return fmt.Sprintf("%s is outside available hours for %s (%s)", v.At.Format("15:04"), DayName(v.Day), v.Window)
}

func (v *PolicyViolation) Unwrap() error { return ErrOutsideHours }

// NewPolicy builds a policy from weekday names ("monday") to ["HH:MM","HH:MM"]
// pairs. Every populated day must satisfy start < end.
func NewPolicy(hours map[string][]string, durationMinutes int) (*Policy, error) {
	p := &Policy{
		days:     make(map[time.Weekday]Window, len(hours)),
		duration: time.Duration(durationMinutes) * time.Minute,
	}
	if durationMinutes <= 0 {
		p.duration = DefaultMeetingMinutes * time.Minute
	}
	for name, pair := range hours {
		day, ok := ParseWeekday(name)
		if !ok {
			return nil, fmt.Errorf("schedule: unknown weekday %q", name)
		}
		if len(pair) != 2 {
			return nil, fmt.Errorf("schedule: %s needs [start, end], got %d values", name, len(pair))
		}
		start, err := parseClock(pair[0])
		if err != nil {
			return nil, fmt.Errorf("schedule: %s start: %w", name, err)
		}
		end, err := parseClock(pair[1])
		if err != nil {
			return nil, fmt.Errorf("schedule: %s end: %w", name, err)
		}
		if start >= end {
			return nil, fmt.Errorf("schedule: %s start %s must be before end %s", name, pair[0], pair[1])
		}
		p.days[day] = Window{Start: start, End: end}
	}
	return p, nil
}

// Duration is the meeting length.
func (p *Policy) Duration() time.Duration {
	if p == nil || p.duration <= 0 {
		return DefaultMeetingMinutes * time.Minute
	}
	return p.duration
}

// DurationMinutes is the meeting length in whole minutes.
func (p *Policy) DurationMinutes() int {
	return int(p.Duration() / time.Minute)
}

// Window returns the configured window for day, if any.
func (p *Policy) Window(day time.Weekday) (Window, bool) {
	if p == nil {
		return Window{}, false
	}
	w, ok := p.days[day]
	return w, ok
}

// SlotWindow returns the configured window for day or DefaultWindow.
func (p *Policy) SlotWindow(day time.Weekday) Window {
	if w, ok := p.Window(day); ok {
		return w
	}
	return DefaultWindow
}

// HasHours reports whether any day is configured.
func (p *Policy) HasHours() bool {
	return p != nil && len(p.days) > 0
}

// Windows lists the configured days Monday first.
func (p *Policy) Windows() []DayWindow {
	if p == nil {
		return nil
	}
	out := make([]DayWindow, 0, len(p.days))
	for i := 0; i < 7; i++ {
		day := time.Weekday((i + 1) % 7)
		if w, ok := p.days[day]; ok {
			out = append(out, DayWindow{Day: day, Window: w})
		}
	}
	return out
}

// CheckHours validates a directly parsed candidate. Days without an entry
// pass; otherwise the candidate's minute of day must lie in the window with
// the end minute inclusive.
func (p *Policy) CheckHours(t time.Time) error {
	w, ok := p.Window(t.Weekday())
	if !ok {
		return nil
	}
	if w.Contains(MinuteOfDay(t)) {
		return nil
	}
	return &PolicyViolation{Day: t.Weekday(), Window: w, At: t}
}

// FormatWindows renders one "Monday: 09:00 - 17:00" line per configured day.
func (p *Policy) FormatWindows() string {
	lines := make([]string, 0, 7)
	for _, dw := range p.Windows() {
		lines = append(lines, fmt.Sprintf("%s: %s", dw.Day, dw.Window))
	}
	return strings.Join(lines, "\n")
}

// MinuteOfDay returns hours*60+minutes in t's location.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// DayName returns the lowercase English weekday name used in client configs.
func DayName(day time.Weekday) string {
	return strings.ToLower(day.String())
}

// ParseWeekday accepts full or three-letter English weekday names.
func ParseWeekday(name string) (time.Weekday, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := DayName(d)
		if name == full || name == full[:3] {
			return d, true
		}
	}
	return time.Sunday, false
}

func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
