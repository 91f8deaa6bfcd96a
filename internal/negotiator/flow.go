package negotiator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/convo-widget/internal/calendar"
	"github.com/wolfman30/convo-widget/internal/dialogue"
	"github.com/wolfman30/convo-widget/internal/schedule"
	"github.com/wolfman30/convo-widget/internal/timeparse"
	"github.com/wolfman30/convo-widget/pkg/logging"
)

const (
	msgNeedLead          = "Before booking, may I have your name and email?"
	msgDateTimeQuestion  = "What date and time would you like?\n(e.g., 2025-08-01 4 PM or 'next Friday at noon')"
	msgParserUnavailable = "⚠️ Internal error: time parser not available."
	msgUnparseable       = "❌ I couldn't understand the time. Please pick manually:"
	msgPurpose           = "What's the purpose of this meeting?"
	msgPurposeEmpty      = "Please tell me the purpose of this meeting."
	msgConfirm           = "Confirm this booking? (yes / no)"
	msgDeclined          = "Okay, booking canceled. Let me know if you want to try again."
	msgBooking           = "Booking your appointment…"
	msgAnythingElse      = "Anything else I can help you with?"
	msgPickAnother       = "Okay, you can pick another time."
	msgReusePurpose      = "Use the same purpose as before? (yes / no)"
	msgNewPurpose        = "What's the new purpose of this meeting?"
	msgCancelled         = "❌ Booking cancelled."
)

// errDeclined is a cancellation the visitor was already told about.
var errDeclined = fmt.Errorf("%w: declined at confirmation", ErrCancelled)

// flow is the mutable state of one Run.
type flow struct {
	n      *Negotiator
	dlg    Dialogue
	req    Request
	loc    *time.Location
	logger *logging.Logger

	state State
	trail []State

	candidate time.Time
	purpose   string
	failure   *calendar.Failure
	pickDate  time.Time
	afterPick State

	result Result
}

func (f *flow) run(ctx context.Context) error {
	for f.state != StateTerminal {
		var err error
		switch f.state {
		case StateAwaitingLead:
			err = f.checkLead(ctx)
		case StateCollectingDateTime:
			err = f.collectDateTime(ctx)
		case StateValidatingHours:
			err = f.validateHours(ctx)
		case StatePickingSlot:
			err = f.pickSlot(ctx)
		case StateCollectingPurpose:
			err = f.collectPurpose(ctx)
		case StateAwaitingConfirmation:
			err = f.awaitConfirmation(ctx)
		case StateSubmitting:
			err = f.submit(ctx)
		case StateOfferingAlternate:
			err = f.offerAlternate(ctx)
		case StateAwaitingAltConfirmation:
			err = f.awaitAltConfirmation(ctx)
		case StateCollectingPurposeReuse:
			err = f.collectPurposeReuse(ctx)
		default:
			err = fmt.Errorf("negotiator: unknown state %q", f.state)
		}
		if err != nil {
			if errors.Is(err, ErrCancelled) && !errors.Is(err, errDeclined) {
				_ = f.say(ctx, dialogue.Text(msgCancelled))
			}
			f.transition(StateTerminal)
			return err
		}
	}
	return nil
}

func (f *flow) transition(to State) {
	from := f.state
	f.state = to
	f.trail = append(f.trail, to)
	f.n.metrics.ObserveTransition(string(from), string(to))
	f.logger.Debug("booking state transition", "from", from, "to", to)
}

func (f *flow) now() time.Time {
	return f.n.now().In(f.loc)
}

func (f *flow) say(ctx context.Context, msg dialogue.Message) error {
	return f.dlg.Say(ctx, msg)
}

func (f *flow) sayText(ctx context.Context, text string) error {
	return f.dlg.Say(ctx, dialogue.Text(text))
}

// awaitText waits for typed text or a quick-option click. Slot and date
// events outside the picker are ignored.
func (f *flow) awaitText(ctx context.Context) (string, error) {
	for {
		in, err := f.dlg.Await(ctx)
		if err != nil {
			return "", err
		}
		switch in.Kind {
		case dialogue.InputMessage, dialogue.InputQuickOption:
			return strings.TrimSpace(in.Text), nil
		}
	}
}

func (f *flow) checkLead(ctx context.Context) error {
	if !f.req.Lead.captured() {
		if err := f.sayText(ctx, msgNeedLead); err != nil {
			return err
		}
		return ErrNoLead
	}
	f.transition(StateCollectingDateTime)
	return nil
}

func (f *flow) collectDateTime(ctx context.Context) error {
	prompt := msgDateTimeQuestion
	if f.n.policy.HasHours() {
		prompt = "📆 Available booking windows:\n" + f.n.policy.FormatWindows() + "\n\n" + msgDateTimeQuestion
	}
	if err := f.sayText(ctx, prompt); err != nil {
		return err
	}

	text, err := f.awaitText(ctx)
	if err != nil {
		return err
	}
	if IsCancel(text) {
		return ErrCancelled
	}

	parsed, err := f.n.parser.Parse(text, f.now())
	switch {
	case err == nil:
		f.candidate = parsed.In(f.loc)
		f.transition(StateValidatingHours)
		return nil
	case errors.Is(err, timeparse.ErrParserUnavailable):
		f.logger.Error("time parser unavailable", "error", err)
		if sayErr := f.sayText(ctx, msgParserUnavailable); sayErr != nil {
			return sayErr
		}
		return err
	default:
		f.logger.Info("could not parse booking time, falling back to slot picking", "input", text)
		if err := f.sayText(ctx, msgUnparseable); err != nil {
			return err
		}
		f.startPicking(timeparse.StartOfDay(f.now()), StateCollectingPurpose)
		return nil
	}
}

func (f *flow) validateHours(ctx context.Context) error {
	err := f.n.policy.CheckHours(f.candidate)
	var violation *schedule.PolicyViolation
	if errors.As(err, &violation) {
		msg := fmt.Sprintf("❌ That time is outside your availability for %s. Please try a different time.", schedule.DayName(violation.Day))
		if err := f.sayText(ctx, msg); err != nil {
			return err
		}
		f.transition(StateCollectingDateTime)
		return nil
	}
	f.transition(StateCollectingPurpose)
	return nil
}

func (f *flow) startPicking(date time.Time, next State) {
	f.pickDate = date
	f.afterPick = next
	f.transition(StatePickingSlot)
}

func (f *flow) pickSlot(ctx context.Context) error {
	chosen, err := f.runPicker(ctx, f.pickDate)
	if err != nil {
		return err
	}
	f.candidate = chosen
	f.transition(f.afterPick)
	return nil
}

func (f *flow) collectPurpose(ctx context.Context) error {
	if err := f.sayText(ctx, msgPurpose); err != nil {
		return err
	}
	purpose, err := f.awaitPurpose(ctx)
	if err != nil {
		return err
	}
	f.purpose = purpose
	f.transition(StateAwaitingConfirmation)
	return nil
}

// awaitPurpose re-prompts until the visitor types something.
func (f *flow) awaitPurpose(ctx context.Context) (string, error) {
	for {
		text, err := f.awaitText(ctx)
		if err != nil {
			return "", err
		}
		if IsCancel(text) {
			return "", ErrCancelled
		}
		if text != "" {
			return text, nil
		}
		if err := f.sayText(ctx, msgPurposeEmpty); err != nil {
			return "", err
		}
	}
}

func (f *flow) awaitConfirmation(ctx context.Context) error {
	summary := fmt.Sprintf("📅 Meeting at: %s (%s)\n📝 Purpose: %s\n⏱️ Duration: %d minutes",
		FormatInstant(f.candidate, f.loc), f.loc.String(), f.purpose, f.n.policy.DurationMinutes())
	if err := f.sayText(ctx, summary); err != nil {
		return err
	}
	if err := f.sayText(ctx, msgConfirm); err != nil {
		return err
	}

	answer, err := f.awaitText(ctx)
	if err != nil {
		return err
	}
	if !IsYes(answer) {
		if err := f.sayText(ctx, msgDeclined); err != nil {
			return err
		}
		return errDeclined
	}
	f.transition(StateSubmitting)
	return nil
}

func (f *flow) submit(ctx context.Context) error {
	if err := f.say(ctx, dialogue.Message{Kind: dialogue.KindTyping, Text: msgBooking}); err != nil {
		return err
	}

	f.result.Attempts++
	outcome := f.n.gateway.Submit(ctx, calendar.BookingRequest{
		Account:  f.req.Account,
		Name:     f.req.Lead.Name,
		Email:    f.req.Lead.Email,
		At:       f.candidate,
		Timezone: f.loc.String(),
		Purpose:  f.purpose,
		Provider: f.req.Provider,
	})

	if outcome.OK() {
		f.result.BookedAt = f.candidate
		f.result.Purpose = f.purpose
		f.result.ConfirmationLink = outcome.ConfirmationLink
		f.logger.Info("booking confirmed", "attempts", f.result.Attempts, "datetime", f.candidate.UTC().Format(time.RFC3339))

		booked := fmt.Sprintf("✅ Your appointment is booked for %s!\n%s", FormatInstant(f.candidate, f.loc), outcome.ConfirmationLink)
		if err := f.say(ctx, dialogue.Message{Kind: dialogue.KindMessage, Text: booked, Link: outcome.ConfirmationLink}); err != nil {
			return err
		}
		if err := f.sayText(ctx, msgAnythingElse); err != nil {
			return err
		}
		if len(f.req.QuickOptions) > 0 {
			if err := f.say(ctx, dialogue.Message{Kind: dialogue.KindQuickOptions, Options: f.req.QuickOptions}); err != nil {
				return err
			}
		}
		f.transition(StateTerminal)
		return nil
	}

	f.failure = outcome.Failure
	f.logger.Info("booking attempt rejected",
		"attempts", f.result.Attempts,
		"message", f.failure.Message,
		"has_suggestion", f.failure.Suggested != nil,
	)
	if f.failure.Suggested != nil {
		f.transition(StateOfferingAlternate)
		return nil
	}
	return f.recoverFromFailure(ctx)
}

// recoverFromFailure shows the windows and the server message, then opens
// the picker on the failed attempt's day (never earlier than today).
func (f *flow) recoverFromFailure(ctx context.Context) error {
	msg := "⚠️ " + f.failure.Message
	if f.n.policy.HasHours() {
		msg += "\n\n📆 Available booking windows:\n" + f.n.policy.FormatWindows() + "\n\nLet's pick a valid time now:"
	} else {
		msg += "\nLet's pick a valid time now:"
	}
	if err := f.sayText(ctx, msg); err != nil {
		return err
	}

	anchor := timeparse.StartOfDay(f.candidate.In(f.loc))
	if today := timeparse.StartOfDay(f.now()); anchor.Before(today) {
		anchor = today
	}
	f.startPicking(anchor, StateCollectingPurposeReuse)
	return nil
}

func (f *flow) offerAlternate(ctx context.Context) error {
	if err := f.sayText(ctx, "⚠️ "+f.failure.Message); err != nil {
		return err
	}
	offer := fmt.Sprintf("📅 Next available time: %s. Want to book this instead? (yes / no)", FormatInstant(*f.failure.Suggested, f.loc))
	if err := f.sayText(ctx, offer); err != nil {
		return err
	}
	f.transition(StateAwaitingAltConfirmation)
	return nil
}

func (f *flow) awaitAltConfirmation(ctx context.Context) error {
	answer, err := f.awaitText(ctx)
	if err != nil {
		return err
	}
	if IsYes(answer) {
		f.candidate = f.failure.Suggested.In(f.loc)
		f.transition(StateCollectingPurposeReuse)
		return nil
	}
	if err := f.sayText(ctx, msgPickAnother); err != nil {
		return err
	}
	return f.recoverFromFailure(ctx)
}

func (f *flow) collectPurposeReuse(ctx context.Context) error {
	if err := f.sayText(ctx, msgReusePurpose); err != nil {
		return err
	}
	answer, err := f.awaitText(ctx)
	if err != nil {
		return err
	}
	if !IsYes(answer) {
		if err := f.sayText(ctx, msgNewPurpose); err != nil {
			return err
		}
		purpose, err := f.awaitPurpose(ctx)
		if err != nil {
			return err
		}
		f.purpose = purpose
	}
	f.transition(StateSubmitting)
	return nil
}
