// Package negotiator runs the booking conversation: it turns free-form
// date/time input into a validated, conflict-free appointment, falling back
// to slot picking and server-suggested alternates along the way.
//
// A Negotiator belongs to one widget session and runs at most one
// negotiation at a time. Every wait on the visitor goes through the
// Dialogue, so cancelling the context abandons the negotiation.
package negotiator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/wolfman30/convo-widget/internal/calendar"
	"github.com/wolfman30/convo-widget/internal/dialogue"
	"github.com/wolfman30/convo-widget/internal/observability/metrics"
	"github.com/wolfman30/convo-widget/internal/schedule"
	"github.com/wolfman30/convo-widget/pkg/logging"
)

var (
	// ErrNoLead halts a negotiation started before name and email are known.
	ErrNoLead = errors.New("negotiator: lead not captured")
	// ErrCancelled is returned when the visitor backs out.
	ErrCancelled = errors.New("negotiator: booking cancelled")
	// ErrAlreadyRunning is returned by Run while another negotiation is active.
	ErrAlreadyRunning = errors.New("negotiator: negotiation already in progress")
)

// State names a step of the negotiation.
type State string

const (
	StateAwaitingLead            State = "awaiting_lead"
	StateCollectingDateTime      State = "collecting_datetime"
	StateValidatingHours         State = "validating_hours"
	StatePickingSlot             State = "picking_slot"
	StateCollectingPurpose       State = "collecting_purpose"
	StateAwaitingConfirmation    State = "awaiting_confirmation"
	StateSubmitting              State = "submitting"
	StateOfferingAlternate       State = "offering_alternate"
	StateAwaitingAltConfirmation State = "awaiting_alt_confirmation"
	StateCollectingPurposeReuse  State = "collecting_purpose_reuse"
	StateTerminal                State = "terminal"
)

// Status is how a negotiation ended.
type Status string

const (
	StatusBooked    Status = "booked"
	StatusCancelled Status = "cancelled"
	StatusHalted    Status = "halted"
	StatusAbandoned Status = "abandoned"
)

// Dialogue is the visitor-facing side of a session.
type Dialogue interface {
	Say(ctx context.Context, msg dialogue.Message) error
	Await(ctx context.Context) (dialogue.Input, error)
}

// Availability returns busy intervals for a day. Implementations degrade to
// an empty list instead of failing.
type Availability interface {
	FetchBusy(ctx context.Context, acct calendar.Account, date time.Time) []schedule.BusyInterval
}

// Gateway submits a booking and normalizes the outcome.
type Gateway interface {
	Submit(ctx context.Context, req calendar.BookingRequest) calendar.Outcome
}

// TimeParser interprets typed date/time text.
type TimeParser interface {
	Parse(raw string, now time.Time) (time.Time, error)
	ParseDay(raw string, now time.Time) (time.Time, error)
}

// Lead is the visitor identity captured before booking.
type Lead struct {
	Name  string
	Email string
}

func (l Lead) captured() bool {
	return l.Name != "" && l.Email != ""
}

// Request describes one negotiation.
type Request struct {
	Account      calendar.Account
	Lead         Lead
	Provider     string
	Location     *time.Location
	QuickOptions []string
}

// Result summarizes a finished negotiation.
type Result struct {
	Status           Status
	Trail            []State
	BookedAt         time.Time
	Purpose          string
	ConfirmationLink string
	Attempts         int
}

// Config wires a Negotiator.
type Config struct {
	Parser       TimeParser
	Availability Availability
	Gateway      Gateway
	Policy       *schedule.Policy
	Logger       *logging.Logger
	Metrics      *metrics.BookingMetrics
	Now          func() time.Time
}

// Negotiator runs booking negotiations for one session.
type Negotiator struct {
	parser  TimeParser
	avail   Availability
	gateway Gateway
	policy  *schedule.Policy
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
	now     func() time.Time

	running atomic.Bool
}

// New builds a negotiator. Parser, Availability and Gateway are required.
func New(cfg Config) *Negotiator {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Policy == nil {
		cfg.Policy, _ = schedule.NewPolicy(nil, schedule.DefaultMeetingMinutes)
	}
	return &Negotiator{
		parser:  cfg.Parser,
		avail:   cfg.Availability,
		gateway: cfg.Gateway,
		policy:  cfg.Policy,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}
}

// Active reports whether a negotiation is in progress.
func (n *Negotiator) Active() bool {
	return n.running.Load()
}

// Run drives one negotiation to its end. A nil error means the booking was
// created. ErrNoLead, ErrCancelled, timeparse.ErrParserUnavailable and
// context errors report the other endings; the Result is always populated.
func (n *Negotiator) Run(ctx context.Context, dlg Dialogue, req Request) (Result, error) {
	if !n.running.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRunning
	}
	defer n.running.Store(false)

	if req.Location == nil {
		req.Location = time.UTC
	}
	f := &flow{
		n:      n,
		dlg:    dlg,
		req:    req,
		loc:    req.Location,
		logger: n.logger,
		state:  StateAwaitingLead,
		trail:  []State{StateAwaitingLead},
	}

	err := f.run(ctx)
	switch {
	case err == nil:
		f.result.Status = StatusBooked
	case errors.Is(err, ErrCancelled):
		f.result.Status = StatusCancelled
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		f.result.Status = StatusAbandoned
	default:
		f.result.Status = StatusHalted
	}
	f.result.Trail = f.trail
	n.metrics.ObserveNegotiation(string(f.result.Status))
	f.logger.Info("booking negotiation finished",
		"status", f.result.Status,
		"attempts", f.result.Attempts,
		"transitions", len(f.trail)-1,
	)
	return f.result, err
}
