package webchat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/convo-widget/internal/dialogue"
)

func TestToInput(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	in, err := toInput(InboundMessage{Type: "message", Text: "hi"}, ny)
	require.NoError(t, err)
	assert.Equal(t, dialogue.Input{Kind: dialogue.InputMessage, Text: "hi"}, in)

	in, err = toInput(InboundMessage{Type: "quick_option", Option: "Book Appointment"}, ny)
	require.NoError(t, err)
	assert.Equal(t, dialogue.InputQuickOption, in.Kind)
	assert.Equal(t, "Book Appointment", in.Text)

	in, err = toInput(InboundMessage{Type: "slot", Slot: "2025-03-03T15:00:00Z"}, ny)
	require.NoError(t, err)
	assert.Equal(t, dialogue.InputSlot, in.Kind)
	assert.Equal(t, 10, in.Slot.Hour())

	in, err = toInput(InboundMessage{Type: "date", Date: "2025-03-05"}, ny)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 5, 0, 0, 0, 0, ny), in.Date)

	for _, bad := range []InboundMessage{
		{Type: "slot", Slot: "tomorrow"},
		{Type: "date", Date: "05/03/2025"},
		{Type: "rating"},
	} {
		_, err := toInput(bad, ny)
		assert.Error(t, err, bad.Type)
	}
}

func TestFromMessage(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	out := fromMessage(dialogue.Message{
		Kind:  dialogue.KindSlots,
		Text:  "📅 Available times",
		Date:  time.Date(2025, 3, 3, 0, 0, 0, 0, ny),
		Slots: []time.Time{time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC)},
	}, ny, now)

	assert.Equal(t, "slots", out.Type)
	assert.Equal(t, "2025-03-03", out.Date)
	assert.Equal(t, []string{"2025-03-03T09:00:00-05:00"}, out.Slots)
	assert.Equal(t, "2025-03-01T08:00:00Z", out.Timestamp)

	out = fromMessage(dialogue.Message{Kind: dialogue.KindMessage, Text: "booked", Link: "https://x"}, ny, now)
	assert.Equal(t, "message", out.Type)
	assert.Equal(t, "https://x", out.Link)
	assert.Empty(t, out.Slots)
	assert.Empty(t, out.Date)
}
