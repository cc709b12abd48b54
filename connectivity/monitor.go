package connectivity

import (
	"sync"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/netmond/network"
)

// Monitor owns the connected state of a single transport. It only emits
// when that state actually flips.
type Monitor struct {
	transport network.Transport
	// source is nil when the tracker routes aggregate signals instead
	source  network.TransportSubscriber
	publish func(*Event)
	log     Logger

	mu       sync.Mutex
	running  bool
	current  *network.Descriptor
	notified bool
	client   *network.AvailabilityClient
	done     chan struct{}
	wg       sync.WaitGroup
}

func newMonitor(transport network.Transport, source network.TransportSubscriber, publish func(*Event), log Logger) *Monitor {
	return &Monitor{
		transport: transport,
		source:    source,
		publish:   publish,
		log:       log,
	}
}

func (m *Monitor) Transport() network.Transport {
	return m.transport
}

// SetSeed sets the state the monitor starts from, so a transport which is
// already connected at boot is not reported as disconnected first.
func (m *Monitor) SetSeed(descriptor *network.Descriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.log.Warnf("Ignoring seed for running %v monitor", m.transport)
		return
	}

	if descriptor.Active() && descriptor.Transport() == m.transport {
		m.current = descriptor
	} else {
		m.current = nil
	}
}

// Start emits the initial transport event and, when the source can filter
// by transport, consumes its availability signals.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyStarted
	}

	if m.source != nil {
		client, err := m.source.SubscribeTransport(m.transport)
		if err != nil {
			return errors.Errorf("could not subscribe to %v: %v", m.transport, err)
		}

		m.client = client
		m.done = make(chan struct{})

		m.wg.Add(1)
		go m.consume(client, m.done)
	}

	m.running = true
	m.notified = m.current != nil

	if m.notified {
		m.emit(TransportConnected, m.current, nil)
	} else {
		m.emit(TransportDisconnected, nil, nil)
	}

	return nil
}

// Stop cancels the subscription and clears the state. No event is emitted
// once it returns.
func (m *Monitor) Stop() {
	m.mu.Lock()

	if !m.running {
		m.mu.Unlock()
		return
	}

	m.running = false
	m.current = nil
	m.notified = false

	client := m.client
	done := m.done
	m.client = nil
	m.done = nil

	m.mu.Unlock()

	if client != nil {
		close(done)
		client.Cancel()
	}

	m.wg.Wait()
}

func (m *Monitor) consume(client *network.AvailabilityClient, done <-chan struct{}) {
	defer m.wg.Done()

	for {
		select {
		case availability, ok := <-client.Availability:
			if !ok {
				return
			}

			if availability == nil || availability.Descriptor == nil {
				m.Lost()
			} else {
				m.Available(availability.Descriptor)
			}
		case <-done:
			return
		}
	}
}

// Available records the network of the transport. A descriptor which is not
// connected counts as a loss.
func (m *Monitor) Available(descriptor *network.Descriptor) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	if !descriptor.Active() {
		m.lost()
		return
	}

	if descriptor.Transport() != m.transport {
		m.log.Warnf("Dropping %v on %v monitor", descriptor, m.transport)
		return
	}

	m.current = descriptor

	if !m.notified {
		m.notified = true
		m.emit(TransportConnected, descriptor, nil)
	}
}

func (m *Monitor) Lost() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	m.lost()
}

func (m *Monitor) lost() {
	previous := m.current
	m.current = nil

	if m.notified {
		m.notified = false
		m.emit(TransportDisconnected, nil, previous)
	}
}

func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.notified
}

// Current returns the network of the transport, nil when disconnected.
func (m *Monitor) Current() *network.Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current
}

func (m *Monitor) emit(kind Kind, current *network.Descriptor, previous *network.Descriptor) {
	m.log.Debugf("Emitting %v for %v", kind, m.transport)
	m.publish(newEvent(kind, m.transport, current, previous))
}
