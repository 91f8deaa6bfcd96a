package negotiator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/convo-widget/internal/dialogue"
	"github.com/wolfman30/convo-widget/internal/schedule"
	"github.com/wolfman30/convo-widget/internal/timeparse"
)

const (
	msgSlotNotOffered = "That time isn't one of the listed options. Please pick one of the times shown."
	msgBadPickerDate  = "❌ I couldn't understand that date. Pick a time above, or type a date like 2025-08-01."
)

// runPicker offers open slots for date and waits until the visitor picks
// one. Asking for another date re-fetches busy intervals for that date.
func (f *flow) runPicker(ctx context.Context, date time.Time) (time.Time, error) {
	for {
		slots := f.openSlots(ctx, date)
		if err := f.say(ctx, slotsMessage(date, slots)); err != nil {
			return time.Time{}, err
		}

		next, chosen, err := f.awaitPick(ctx, slots)
		if err != nil {
			return time.Time{}, err
		}
		if !chosen.IsZero() {
			f.logger.Info("slot picked", "slot", chosen.UTC().Format(time.RFC3339))
			return chosen, nil
		}
		date = next
	}
}

// openSlots computes the slots for date that have not started yet.
func (f *flow) openSlots(ctx context.Context, date time.Time) []time.Time {
	date = timeparse.StartOfDay(date.In(f.loc))
	busy := f.n.avail.FetchBusy(ctx, f.req.Account, date)
	all := schedule.ComputeSlots(date, busy, f.n.policy)

	now := f.now()
	open := make([]time.Time, 0, len(all))
	for _, s := range all {
		if !s.Before(now) {
			open = append(open, s)
		}
	}
	return open
}

func slotsMessage(date time.Time, slots []time.Time) dialogue.Message {
	day := date.Format("Mon Jan 2 2006")
	msg := dialogue.Message{Kind: dialogue.KindSlots, Date: date, Slots: slots}
	if len(slots) == 0 {
		msg.Text = fmt.Sprintf("😞 No available slots on %s. Pick another date, or type cancel.", day)
		return msg
	}
	labels := make([]string, len(slots))
	for i, s := range slots {
		labels[i] = fmt.Sprintf("%d) %s", i+1, FormatSlot(s))
	}
	msg.Text = fmt.Sprintf("📅 Available times for %s:\n%s\nPick a time, or choose another date.", day, strings.Join(labels, "\n"))
	return msg
}

// awaitPick resolves to either a chosen slot or a new date to show.
func (f *flow) awaitPick(ctx context.Context, slots []time.Time) (time.Time, time.Time, error) {
	for {
		in, err := f.dlg.Await(ctx)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}

		switch in.Kind {
		case dialogue.InputSlot:
			if s, ok := findSlot(slots, in.Slot); ok {
				return time.Time{}, s, nil
			}
			if err := f.sayText(ctx, msgSlotNotOffered); err != nil {
				return time.Time{}, time.Time{}, err
			}
		case dialogue.InputDate:
			return timeparse.StartOfDay(in.Date.In(f.loc)), time.Time{}, nil
		default:
			text := strings.TrimSpace(in.Text)
			if IsCancel(text) {
				return time.Time{}, time.Time{}, ErrCancelled
			}
			if s, ok := matchSlotText(text, slots); ok {
				return time.Time{}, s, nil
			}
			day, err := f.n.parser.ParseDay(text, f.now())
			if err == nil {
				return day.In(f.loc), time.Time{}, nil
			}
			if err := f.sayText(ctx, msgBadPickerDate); err != nil {
				return time.Time{}, time.Time{}, err
			}
		}
	}
}

func findSlot(slots []time.Time, want time.Time) (time.Time, bool) {
	for _, s := range slots {
		if s.Equal(want) {
			return s, true
		}
	}
	return time.Time{}, false
}

// matchSlotText accepts a 1-based index ("2") or a listed time of day
// ("10:30", "10:30 am", "2pm").
func matchSlotText(text string, slots []time.Time) (time.Time, bool) {
	if n, err := strconv.Atoi(text); err == nil {
		if n >= 1 && n <= len(slots) {
			return slots[n-1], true
		}
		return time.Time{}, false
	}

	norm := strings.ToUpper(strings.ReplaceAll(text, " ", ""))
	for _, s := range slots {
		if s.Format("15:04") == norm || s.Format("3:04PM") == norm {
			return s, true
		}
		if s.Minute() == 0 && s.Format("3PM") == norm {
			return s, true
		}
	}
	return time.Time{}, false
}
