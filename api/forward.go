package api

import (
	"github.com/the-lightning-land/netmond/connectivity"
)

// eventBuffer is how many events a websocket client may lag behind.
const eventBuffer = 64

// forward drains in without ever blocking on the reader of out. When out
// is full the overflow channel is closed and further events are dropped.
// out is closed once in is.
func forward(in <-chan *connectivity.Event, size int) (<-chan *connectivity.Event, <-chan struct{}) {
	out := make(chan *connectivity.Event, size)
	overflow := make(chan struct{})

	go func() {
		defer close(out)

		overflowed := false

		for event := range in {
			if overflowed {
				continue
			}

			select {
			case out <- event:
			default:
				overflowed = true
				close(overflow)
			}
		}
	}()

	return out, overflow
}
