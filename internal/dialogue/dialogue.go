// Package dialogue defines the messages exchanged between the widget and the
// booking engine, and the single-resolution wait used to suspend a flow until
// the visitor responds.
package dialogue

import (
	"context"
	"errors"
	"time"
)

// MessageKind selects how the widget renders an outbound message.
type MessageKind string

const (
	KindMessage      MessageKind = "message"
	KindTyping       MessageKind = "typing"
	KindSlots        MessageKind = "slots"
	KindQuickOptions MessageKind = "quick_options"
	KindError        MessageKind = "error"
)

// Message is pushed to the widget.
type Message struct {
	Kind    MessageKind
	Text    string
	Link    string
	Date    time.Time
	Slots   []time.Time
	Options []string
}

// Text is a plain bot message.
func Text(text string) Message {
	return Message{Kind: KindMessage, Text: text}
}

// InputKind identifies what the visitor did.
type InputKind string

const (
	InputMessage     InputKind = "message"
	InputSlot        InputKind = "slot"
	InputDate        InputKind = "date"
	InputQuickOption InputKind = "quick_option"
)

// Input is one visitor event: typed text, a slot click, a date pick or a
// quick-option click.
type Input struct {
	Kind InputKind
	Text string
	Slot time.Time
	Date time.Time
}

// ErrInboxFull is returned when events arrive faster than the session loop
// consumes them.
var ErrInboxFull = errors.New("dialogue: inbox full")

// DefaultInboxSize bounds buffered visitor events per session.
const DefaultInboxSize = 32

// Inbox buffers visitor events for one session. Deliver may be called from
// any goroutine; Await is called by the session loop only.
type Inbox struct {
	events chan Input
}

func NewInbox(size int) *Inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	return &Inbox{events: make(chan Input, size)}
}

// Deliver enqueues in without blocking.
func (b *Inbox) Deliver(in Input) error {
	select {
	case b.events <- in:
		return nil
	default:
		return ErrInboxFull
	}
}

// Await resolves exactly once with the first buffered or next delivered
// event, or with ctx's error when the session goes away first.
func (b *Inbox) Await(ctx context.Context) (Input, error) {
	select {
	case in := <-b.events:
		return in, nil
	case <-ctx.Done():
		return Input{}, ctx.Err()
	}
}
