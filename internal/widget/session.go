package widget

import (
	"strings"
	"time"

	"github.com/wolfman30/convo-widget/internal/calendar"
)

// DefaultHistoryTurns caps the conversation history forwarded to the relay.
const DefaultHistoryTurns = 20

// BookingState tracks a booking the visitor asked for.
type BookingState struct {
	InProgress bool
	Date       string
	Time       string
}

// Flags are one-shot per-session prompts.
type Flags struct {
	Greeted bool
}

type leadStage int

const (
	stageName leadStage = iota
	stageEmail
	stageDone
)

// Session is the state of one open widget. It is owned by the session loop
// goroutine and never shared.
type Session struct {
	ID       string
	ClientID string
	Location *time.Location

	Name  string
	Email string
	stage leadStage

	Booking  BookingState
	Bookings int
	Flags    Flags

	history    []calendar.Turn
	maxHistory int
	chatLog    strings.Builder
}

// NewSession starts an anonymous session.
func NewSession(id, clientID string, loc *time.Location, maxHistory int) *Session {
	if loc == nil {
		loc = time.UTC
	}
	if maxHistory <= 0 {
		maxHistory = DefaultHistoryTurns
	}
	return &Session{ID: id, ClientID: clientID, Location: loc, maxHistory: maxHistory}
}

// LeadCaptured reports whether name and email are known.
func (s *Session) LeadCaptured() bool {
	return s.stage == stageDone
}

// AddTurn appends a (visitor, bot) exchange, dropping the oldest beyond the cap.
func (s *Session) AddTurn(user, bot string) {
	s.history = append(s.history, calendar.Turn{User: user, Bot: bot})
	if over := len(s.history) - s.maxHistory; over > 0 {
		s.history = append([]calendar.Turn(nil), s.history[over:]...)
	}
}

// History returns a copy of the capped conversation history.
func (s *Session) History() []calendar.Turn {
	return append([]calendar.Turn(nil), s.history...)
}

// Log appends one line to the transcript sent with the summary.
func (s *Session) Log(line string) {
	s.chatLog.WriteString(line)
	s.chatLog.WriteByte('\n')
}

// ChatLog is the transcript so far.
func (s *Session) ChatLog() string {
	return s.chatLog.String()
}

// ResolveLocation loads an IANA zone name, falling back when it is empty or
// unknown.
func ResolveLocation(name string, fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fallback
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return fallback
	}
	return loc
}
