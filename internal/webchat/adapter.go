package webchat

import (
	"fmt"
	"time"

	"github.com/wolfman30/convo-widget/internal/dialogue"
)

// InboundMessage is what the widget sends.
type InboundMessage struct {
	Type      string `json:"type"` // "message", "quick_option", "slot", "date", "ping"
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Option    string `json:"option,omitempty"`
	Slot      string `json:"slot,omitempty"` // RFC 3339 instant
	Date      string `json:"date,omitempty"` // YYYY-MM-DD
}

// OutboundMessage is what we send to the widget.
type OutboundMessage struct {
	Type      string   `json:"type"` // "session", "message", "typing", "slots", "quick_options", "error", "pong"
	Text      string   `json:"text,omitempty"`
	Link      string   `json:"link,omitempty"`
	Date      string   `json:"date,omitempty"`
	Slots     []string `json:"slots,omitempty"`
	Options   []string `json:"options,omitempty"`
	SessionID string   `json:"session_id,omitempty"`
	Timezone  string   `json:"timezone,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

// toInput converts a widget frame into a dialogue event. Slots and dates
// are read in the session location.
func toInput(msg InboundMessage, loc *time.Location) (dialogue.Input, error) {
	switch msg.Type {
	case "message", "":
		return dialogue.Input{Kind: dialogue.InputMessage, Text: msg.Text}, nil
	case "quick_option":
		text := msg.Option
		if text == "" {
			text = msg.Text
		}
		return dialogue.Input{Kind: dialogue.InputQuickOption, Text: text}, nil
	case "slot":
		t, err := time.Parse(time.RFC3339, msg.Slot)
		if err != nil {
			return dialogue.Input{}, fmt.Errorf("webchat: invalid slot %q: %w", msg.Slot, err)
		}
		return dialogue.Input{Kind: dialogue.InputSlot, Slot: t.In(loc)}, nil
	case "date":
		d, err := time.ParseInLocation("2006-01-02", msg.Date, loc)
		if err != nil {
			return dialogue.Input{}, fmt.Errorf("webchat: invalid date %q: %w", msg.Date, err)
		}
		return dialogue.Input{Kind: dialogue.InputDate, Date: d}, nil
	default:
		return dialogue.Input{}, fmt.Errorf("webchat: unknown message type %q", msg.Type)
	}
}

// fromMessage renders a dialogue message as a widget frame.
func fromMessage(msg dialogue.Message, loc *time.Location, now time.Time) OutboundMessage {
	out := OutboundMessage{
		Type:      string(msg.Kind),
		Text:      msg.Text,
		Link:      msg.Link,
		Options:   msg.Options,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	if !msg.Date.IsZero() {
		out.Date = msg.Date.In(loc).Format("2006-01-02")
	}
	if msg.Kind == dialogue.KindSlots {
		out.Slots = make([]string, 0, len(msg.Slots))
		for _, s := range msg.Slots {
			out.Slots = append(out.Slots, s.In(loc).Format(time.RFC3339))
		}
	}
	return out
}
