package api

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/netmond/connectivity"
)

func TestForwardNeverBlocksThePublisher(t *testing.T) {
	in := make(chan *connectivity.Event)
	out, overflow := forward(in, 2)

	sent := make([]*connectivity.Event, 5)
	for i := range sent {
		sent[i] = &connectivity.Event{ID: uuid.New(), Kind: connectivity.Changed}

		select {
		case in <- sent[i]:
		case <-time.After(time.Second):
			require.FailNow(t, "publisher blocked", "event %v", i)
		}
	}

	select {
	case <-overflow:
	case <-time.After(time.Second):
		require.FailNow(t, "overflow not signalled")
	}

	close(in)

	var received []*connectivity.Event
	for event := range out {
		received = append(received, event)
	}

	assert.Equal(t, sent[:2], received)
}

func TestForwardKeepsOrder(t *testing.T) {
	in := make(chan *connectivity.Event)
	out, overflow := forward(in, eventBuffer)

	first := &connectivity.Event{ID: uuid.New(), Kind: connectivity.Disconnected}
	second := &connectivity.Event{ID: uuid.New(), Kind: connectivity.Connected}

	in <- first
	in <- second
	close(in)

	assert.Equal(t, first, <-out)
	assert.Equal(t, second, <-out)

	_, ok := <-out
	assert.False(t, ok)

	select {
	case <-overflow:
		assert.Fail(t, "overflow signalled without a full buffer")
	default:
	}
}
