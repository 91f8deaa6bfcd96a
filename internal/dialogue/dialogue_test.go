package dialogue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboxFirstEventWins(t *testing.T) {
	box := NewInbox(4)
	require.NoError(t, box.Deliver(Input{Kind: InputMessage, Text: "first"}))
	require.NoError(t, box.Deliver(Input{Kind: InputMessage, Text: "second"}))

	got, err := box.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", got.Text)

	got, err = box.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", got.Text)
}

func TestInboxAwaitBlocksUntilDelivery(t *testing.T) {
	box := NewInbox(1)
	done := make(chan Input, 1)
	go func() {
		in, _ := box.Await(context.Background())
		done <- in
	}()

	slot := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	require.NoError(t, box.Deliver(Input{Kind: InputSlot, Slot: slot}))

	select {
	case in := <-done:
		assert.Equal(t, InputSlot, in.Kind)
		assert.True(t, slot.Equal(in.Slot))
	case <-time.After(time.Second):
		t.Fatal("await did not resolve")
	}
}

func TestInboxAwaitCancelled(t *testing.T) {
	box := NewInbox(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := box.Await(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestInboxFull(t *testing.T) {
	box := NewInbox(1)
	require.NoError(t, box.Deliver(Input{Text: "a"}))
	assert.ErrorIs(t, box.Deliver(Input{Text: "b"}), ErrInboxFull)
}
