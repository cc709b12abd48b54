package connectivity

import (
	"sync"

	"github.com/cskr/pubsub/v2"
)

const defaultCapacity = 16

// Client receives events in emission order until cancelled. The Events
// channel has to be drained, a stalled client holds back all others.
type Client struct {
	Events <-chan *Event
	Cancel func()
}

// hub fans events out to clients. Every event is published on the topic
// of its kind only, so a client subscribed to several kinds receives it once.
type hub struct {
	mu       sync.RWMutex
	closed   bool
	ps       *pubsub.PubSub[Kind, *Event]
	capacity int
}

func newHub(capacity int) *hub {
	if capacity <= 0 {
		capacity = defaultCapacity
	}

	return &hub{
		ps:       pubsub.New[Kind, *Event](capacity),
		capacity: capacity,
	}
}

func (h *hub) publish(event *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	h.ps.Pub(event, event.Kind)
}

// subscribe registers a client. The sticky event, when given and of a
// subscribed kind, is delivered before any later event.
func (h *hub) subscribe(sticky *Event, kinds ...Kind) *Client {
	if len(kinds) == 0 {
		kinds = Kinds
	}

	events := make(chan *Event, h.capacity)

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		close(events)
		return &Client{Events: events, Cancel: func() {}}
	}

	if sticky != nil && hasKind(kinds, sticky.Kind) {
		events <- sticky
	}

	h.ps.AddSub(events, kinds...)

	var once sync.Once

	return &Client{
		Events: events,
		Cancel: func() {
			once.Do(func() {
				go h.unsubscribe(events)

				// pubsub closes the channel once it is unsubscribed
				for range events {
				}
			})
		},
	}
}

func (h *hub) unsubscribe(events chan *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	h.ps.Unsub(events)
}

// close shuts the fan-out down and closes all client channels.
func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.closed = true
	h.ps.Shutdown()
}

func hasKind(kinds []Kind, kind Kind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}

	return false
}
