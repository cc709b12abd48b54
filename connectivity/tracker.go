package connectivity

import (
	"sync"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/netmond/network"
)

type Config struct {
	Source network.Source
	Logger Logger
	// Capacity is the buffer size of every client's channel.
	Capacity int
}

// Tracker owns the currently active network. Raw signals only trigger a
// re-query of the source, which stays the source of truth.
type Tracker struct {
	source network.Source
	log    Logger
	hub    *hub
	// legacy is set when the source delivers aggregate signals only and
	// the tracker has to feed the monitors itself.
	legacy   bool
	monitors map[network.Transport]*Monitor

	mu      sync.Mutex
	running bool
	closed  bool
	active  *network.Descriptor
	sticky  *Event
	client  *network.SignalClient
	done    chan struct{}
	wg      sync.WaitGroup
}

func New(config *Config) *Tracker {
	tracker := &Tracker{
		source:   config.Source,
		hub:      newHub(config.Capacity),
		monitors: make(map[network.Transport]*Monitor),
	}

	if config.Logger != nil {
		tracker.log = config.Logger
	} else {
		tracker.log = noopLogger{}
	}

	subscriber, ok := config.Source.(network.TransportSubscriber)
	tracker.legacy = !ok

	for _, transport := range network.Transports {
		tracker.monitors[transport] = newMonitor(transport, subscriber, tracker.hub.publish, tracker.log)
	}

	return tracker
}

// Start subscribes to the source, seeds all state and emits one synthetic
// Connected or Disconnected event describing it.
func (t *Tracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	if t.running {
		return ErrAlreadyStarted
	}

	if t.source == nil {
		return ErrMissingSource
	}

	client, err := t.source.Subscribe()
	if err != nil {
		return errors.Errorf("could not subscribe to source: %v", err)
	}

	descriptors, err := t.source.EnumerateAll()
	if err != nil {
		client.Cancel()
		return errors.Errorf("could not enumerate networks: %v", err)
	}

	active, err := t.source.QueryActive()
	if err != nil {
		client.Cancel()
		return errors.Errorf("could not query active network: %v", err)
	}

	for transport, monitor := range t.monitors {
		monitor.SetSeed(firstActive(descriptors, transport))
	}

	t.running = true
	t.client = client
	t.done = make(chan struct{})

	if active.Active() {
		t.active = active
		t.emit(Connected, active.Transport(), active, nil)
	} else {
		t.active = nil
		t.emit(Disconnected, network.None, nil, nil)
	}

	for _, transport := range network.Transports {
		err := t.monitors[transport].Start()
		if err != nil {
			t.running = false
			t.active = nil
			t.sticky = nil
			t.client = nil
			close(t.done)
			client.Cancel()

			for _, monitor := range t.monitors {
				monitor.Stop()
			}

			return errors.Errorf("could not start monitor: %v", err)
		}
	}

	t.log.Infof("Started tracking with %v active", active)

	t.wg.Add(1)
	go t.consume(client, t.done)

	return nil
}

// Stop unsubscribes from the source and clears all state. It is safe to
// call more than once and emits nothing once it returns.
func (t *Tracker) Stop() {
	t.mu.Lock()

	if !t.running {
		t.mu.Unlock()
		return
	}

	t.running = false
	t.active = nil
	t.sticky = nil

	client := t.client
	t.client = nil
	close(t.done)

	t.mu.Unlock()

	client.Cancel()
	t.wg.Wait()

	for _, monitor := range t.monitors {
		monitor.Stop()
	}

	t.log.Infof("Stopped tracking")
}

// Close stops the tracker and closes the channels of all clients.
func (t *Tracker) Close() {
	t.Stop()

	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	t.hub.close()
}

func (t *Tracker) consume(client *network.SignalClient, done <-chan struct{}) {
	defer t.wg.Done()

	for {
		select {
		case signal, ok := <-client.Signals:
			if !ok {
				return
			}

			t.HandleSignal(signal)
		case <-done:
			return
		}
	}
}

// HandleSignal classifies a raw signal. Signals are processed one at a
// time, in the order they arrive.
func (t *Tracker) HandleSignal(signal *network.Signal) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		t.log.Debugf("Dropping signal while stopped")
		return
	}

	err := signal.Validate()
	if err != nil {
		t.log.Warnf("Dropping malformed signal: %v", err)
		return
	}

	active, err := t.source.QueryActive()
	if err != nil {
		t.log.Warnf("Dropping %v signal from %v, could not query active network: %v", signal.Kind, signal.Origin, err)
		return
	}

	t.classify(active)
}

func (t *Tracker) classify(active *network.Descriptor) {
	if !active.Active() {
		active = nil
	}

	previous := t.active

	switch {
	case previous == nil && active == nil:
		return

	case active == nil:
		t.active = nil
		t.routeLost(previous.Transport())
		t.emit(Disconnected, previous.Transport(), nil, previous)

	case previous == nil:
		t.active = active
		t.routeAvailable(active)
		t.emit(Connected, active.Transport(), active, nil)

	case previous.Transport() != active.Transport():
		t.active = active
		t.routeLost(previous.Transport())
		t.routeAvailable(active)
		t.emit(Changed, active.Transport(), active, previous)
		t.emit(Connected, active.Transport(), active, previous)

	default:
		// same transport, nothing to report
		t.active = active
	}
}

func (t *Tracker) routeAvailable(descriptor *network.Descriptor) {
	if !t.legacy {
		return
	}

	if monitor, ok := t.monitors[descriptor.Transport()]; ok {
		monitor.Available(descriptor)
	}
}

func (t *Tracker) routeLost(transport network.Transport) {
	if !t.legacy {
		return
	}

	if monitor, ok := t.monitors[transport]; ok {
		monitor.Lost()
	}
}

func (t *Tracker) emit(kind Kind, transport network.Transport, current *network.Descriptor, previous *network.Descriptor) {
	event := newEvent(kind, transport, current, previous)

	if kind == Connected || kind == Disconnected {
		t.sticky = event
	}

	t.log.Debugf("Emitting %v (%v -> %v)", kind, previous, current)

	t.hub.publish(event)
}

// Subscribe returns a client for the given kinds, all kinds when none are
// given. The last Connected or Disconnected event is replayed first.
func (t *Tracker) Subscribe(kinds ...Kind) *Client {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.hub.subscribe(t.sticky, kinds...)
}

// Active returns the active network, NoNetwork when there is none.
func (t *Tracker) Active() *network.Descriptor {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active == nil {
		return network.NoNetwork
	}

	return t.active
}

func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.running
}

// Monitor returns the monitor of the transport, nil for transports
// without one.
func (t *Tracker) Monitor(transport network.Transport) *Monitor {
	return t.monitors[transport]
}

func firstActive(descriptors []*network.Descriptor, transport network.Transport) *network.Descriptor {
	for _, descriptor := range descriptors {
		if descriptor.Active() && descriptor.Transport() == transport {
			return descriptor
		}
	}

	return nil
}
