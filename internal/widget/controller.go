// Package widget owns a visitor session: greeting, lead capture, booking
// intent detection, the Q&A relay and the end-of-session summary.
package widget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/convo-widget/internal/archive"
	"github.com/wolfman30/convo-widget/internal/calendar"
	"github.com/wolfman30/convo-widget/internal/dialogue"
	"github.com/wolfman30/convo-widget/internal/negotiator"
	"github.com/wolfman30/convo-widget/internal/observability/metrics"
	"github.com/wolfman30/convo-widget/internal/widgetcfg"
	"github.com/wolfman30/convo-widget/pkg/logging"
)

const (
	msgGreeting          = "👋 Hi there! What's your name?"
	msgInvalidEmail      = "❌ Please enter a valid email."
	msgMissingToken      = "❌ Missing token"
	msgBookingInProgress = "You already have a booking in progress."

	defaultSummaryTimeout = 5 * time.Second
)

// CalendarAPI is everything the controller needs from the calendar service.
type CalendarAPI interface {
	negotiator.Availability
	negotiator.Gateway
	Ask(ctx context.Context, q calendar.Question) string
	SendSummary(ctx context.Context, s calendar.Summary) error
}

// TranscriptArchiver keeps a copy of each finished session.
type TranscriptArchiver interface {
	ArchiveSession(ctx context.Context, t archive.SessionTranscript) error
}

// Sender pushes messages to the widget.
type Sender interface {
	Send(ctx context.Context, msg dialogue.Message) error
}

// Config wires a Controller.
type Config struct {
	Session        *Session
	Widget         *widgetcfg.Widget
	Parser         negotiator.TimeParser
	Calendar       CalendarAPI
	Sender         Sender
	Archiver       TranscriptArchiver
	Inbox          *dialogue.Inbox
	Logger         *logging.Logger
	Metrics        *metrics.BookingMetrics
	SummaryTimeout time.Duration
	Now            func() time.Time
}

// Controller runs one session loop.
type Controller struct {
	session        *Session
	widget         *widgetcfg.Widget
	calendar       CalendarAPI
	sender         Sender
	archiver       TranscriptArchiver
	inbox          *dialogue.Inbox
	negotiator     *negotiator.Negotiator
	logger         *logging.Logger
	summaryTimeout time.Duration
}

// New builds a controller and its per-session negotiator.
func New(cfg Config) *Controller {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = defaultSummaryTimeout
	}
	if cfg.Inbox == nil {
		cfg.Inbox = dialogue.NewInbox(dialogue.DefaultInboxSize)
	}
	logger := cfg.Logger.ForSession(cfg.Session.ClientID, cfg.Session.ID)
	return &Controller{
		session:  cfg.Session,
		widget:   cfg.Widget,
		calendar: cfg.Calendar,
		sender:   cfg.Sender,
		archiver: cfg.Archiver,
		inbox:    cfg.Inbox,
		negotiator: negotiator.New(negotiator.Config{
			Parser:       cfg.Parser,
			Availability: cfg.Calendar,
			Gateway:      cfg.Calendar,
			Policy:       cfg.Widget.Policy,
			Logger:       logger,
			Metrics:      cfg.Metrics,
			Now:          cfg.Now,
		}),
		logger:         logger,
		summaryTimeout: cfg.SummaryTimeout,
	}
}

// Inbox is where the transport delivers visitor events.
func (c *Controller) Inbox() *dialogue.Inbox {
	return c.inbox
}

// Session exposes the controller's session, for tests and the transport.
func (c *Controller) Session() *Session {
	return c.session
}

// Run greets the visitor and handles events until ctx ends.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.greet(ctx); err != nil {
		return err
	}
	for {
		in, err := c.inbox.Await(ctx)
		if err != nil {
			return err
		}
		if err := c.Handle(ctx, in); err != nil {
			return err
		}
	}
}

func (c *Controller) greet(ctx context.Context) error {
	if c.session.Flags.Greeted || c.session.LeadCaptured() {
		return nil
	}
	c.session.Flags.Greeted = true
	return c.say(ctx, dialogue.Text(msgGreeting))
}

// Handle processes one visitor event outside a negotiation.
func (c *Controller) Handle(ctx context.Context, in dialogue.Input) error {
	switch in.Kind {
	case dialogue.InputQuickOption:
		if in.Text == c.widget.BookingOption() {
			return c.startBooking(ctx)
		}
	case dialogue.InputSlot, dialogue.InputDate:
		return nil
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil
	}
	if !c.session.LeadCaptured() {
		return c.captureLead(ctx, text)
	}

	if intent := ParseIntent(text); intent.Booking {
		c.session.Booking = BookingState{InProgress: true, Date: intent.Date, Time: intent.Time}
		return c.startBooking(ctx)
	}
	return c.relay(ctx, text)
}

func (c *Controller) captureLead(ctx context.Context, text string) error {
	switch c.session.stage {
	case stageName:
		c.session.Name = text
		c.session.stage = stageEmail
		return c.say(ctx, dialogue.Text(fmt.Sprintf("Great, %s! Now, what's your email?", text)))
	default:
		if err := ValidateEmail(text); err != nil {
			c.logger.Debug("lead email rejected", "error", err)
			return c.say(ctx, dialogue.Text(msgInvalidEmail))
		}
		c.session.Email = text
		c.session.stage = stageDone
		c.logger.Info("lead captured")
		thanks := fmt.Sprintf("✅ Thanks, %s! I'm %s. How can I help?", c.session.Name, c.widget.Config.ChatbotName)
		if err := c.say(ctx, dialogue.Text(thanks)); err != nil {
			return err
		}
		return c.say(ctx, dialogue.Message{Kind: dialogue.KindQuickOptions, Options: c.widget.QuickOptions()})
	}
}

func (c *Controller) startBooking(ctx context.Context) error {
	req := negotiator.Request{
		Account:      c.account(),
		Provider:     c.widget.Config.BookingProvider,
		Location:     c.session.Location,
		QuickOptions: c.widget.QuickOptions(),
	}
	if c.session.LeadCaptured() {
		req.Lead = negotiator.Lead{Name: c.session.Name, Email: c.session.Email}
	}

	c.session.Booking.InProgress = true
	res, err := c.negotiator.Run(ctx, &sessionDialogue{c: c}, req)
	c.session.Booking = BookingState{}

	if res.Status == negotiator.StatusBooked {
		c.session.Bookings++
		c.session.Log(fmt.Sprintf("Booked %s: %s", res.BookedAt.UTC().Format(time.RFC3339), res.ConfirmationLink))
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, negotiator.ErrAlreadyRunning):
		return c.say(ctx, dialogue.Text(msgBookingInProgress))
	default:
		c.logger.Info("booking ended without a booking", "status", res.Status, "reason", err)
		return nil
	}
}

func (c *Controller) relay(ctx context.Context, text string) error {
	c.session.Log("You: " + text)
	if c.widget.Config.Token == "" {
		return c.say(ctx, dialogue.Message{Kind: dialogue.KindError, Text: msgMissingToken})
	}
	if err := c.say(ctx, dialogue.Message{Kind: dialogue.KindTyping}); err != nil {
		return err
	}

	answer := c.calendar.Ask(ctx, calendar.Question{
		Account: c.account(),
		Text:    text,
		History: c.session.History(),
		Booking: calendar.BookingHint{
			InProgress: c.session.Booking.InProgress,
			Date:       c.session.Booking.Date,
			Time:       c.session.Booking.Time,
		},
	})
	if answer == calendar.RelayFailureAnswer {
		return c.say(ctx, dialogue.Message{Kind: dialogue.KindError, Text: answer})
	}

	c.session.AddTurn(text, answer)
	c.session.Log(c.widget.Config.ChatbotName + ": " + answer)
	return c.say(ctx, dialogue.Text(c.widget.Config.ChatbotName+": "+answer))
}

// Close flushes the transcript for a captured lead and archives the session
// when an archiver is configured. It uses its own timeout because the session
// context is usually already cancelled.
func (c *Controller) Close() {
	log := c.session.ChatLog()
	if strings.TrimSpace(log) == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.summaryTimeout)
	defer cancel()

	if c.archiver != nil {
		err := c.archiver.ArchiveSession(ctx, archive.SessionTranscript{
			SessionID: c.session.ID,
			ClientID:  c.session.ClientID,
			Email:     c.session.Email,
			Timezone:  c.session.Location.String(),
			ChatLog:   log,
			Bookings:  c.session.Bookings,
		})
		if err != nil {
			c.logger.Warn("transcript archive failed", "error", err)
		}
	}

	if !c.session.LeadCaptured() {
		return
	}
	err := c.calendar.SendSummary(ctx, calendar.Summary{
		Account: c.account(),
		Name:    c.session.Name,
		Email:   c.session.Email,
		ChatLog: log,
	})
	if err != nil {
		c.logger.Warn("summary flush failed", "error", err)
		return
	}
	c.logger.Info("summary flushed", "bytes", len(log))
}

func (c *Controller) account() calendar.Account {
	return calendar.Account{ClientID: c.widget.Config.ClientID, Token: c.widget.Config.Token}
}

func (c *Controller) say(ctx context.Context, msg dialogue.Message) error {
	return c.sender.Send(ctx, msg)
}

// sessionDialogue feeds the negotiator from the session inbox. A booking
// quick-option click while a negotiation is waiting is answered here and
// never reaches the negotiator.
type sessionDialogue struct {
	c *Controller
}

func (d *sessionDialogue) Say(ctx context.Context, msg dialogue.Message) error {
	return d.c.say(ctx, msg)
}

func (d *sessionDialogue) Await(ctx context.Context) (dialogue.Input, error) {
	for {
		in, err := d.c.inbox.Await(ctx)
		if err != nil {
			return dialogue.Input{}, err
		}
		if in.Kind == dialogue.InputQuickOption && in.Text == d.c.widget.BookingOption() {
			d.c.logger.Info("rejected booking start during active negotiation")
			if err := d.c.say(ctx, dialogue.Text(msgBookingInProgress)); err != nil {
				return dialogue.Input{}, err
			}
			continue
		}
		return in, nil
	}
}
