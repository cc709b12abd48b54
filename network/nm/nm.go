// Package nm is a connectivity source on NetworkManager. Besides aggregate
// signals it delivers the availability of each transport.
package nm

import (
	"sync"

	"github.com/Wifx/gonetworkmanager"
	"github.com/go-errors/errors"
	"github.com/godbus/dbus/v5"
	"github.com/the-lightning-land/netmond/network"
)

// check Source compliance to its interfaces during compile time
var _ network.Source = (*Source)(nil)
var _ network.TransportSubscriber = (*Source)(nil)

const noConnection = dbus.ObjectPath("/")

type Config struct {
	Logger Logger
}

type signalSub struct {
	signals chan *network.Signal
	done    chan struct{}
}

type transportSub struct {
	transport network.Transport
	last      *network.Descriptor
	updates   chan *network.Availability
	done      chan struct{}
}

type Source struct {
	log Logger
	nm  gonetworkmanager.NetworkManager

	// replaced in tests
	primary   func() (*network.Descriptor, error)
	enumerate func() ([]*network.Descriptor, error)

	mu            sync.Mutex
	nextId        uint32
	signalSubs    map[uint32]*signalSub
	transportSubs map[uint32]*transportSub
	done          chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

func New(config *Config) *Source {
	source := &Source{
		signalSubs:    make(map[uint32]*signalSub),
		transportSubs: make(map[uint32]*transportSub),
		done:          make(chan struct{}),
	}

	if config.Logger != nil {
		source.log = config.Logger
	} else {
		source.log = noopLogger{}
	}

	source.primary = source.queryPrimary
	source.enumerate = source.queryActivated

	return source
}

func (s *Source) Start() error {
	nm, err := gonetworkmanager.NewNetworkManager()
	if err != nil {
		return errors.Errorf("could not connect to NetworkManager: %v", err)
	}

	s.nm = nm

	s.wg.Add(1)
	go s.run(nm.Subscribe())

	return nil
}

func (s *Source) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)

		if s.nm != nil {
			s.nm.Unsubscribe()
		}
	})

	s.wg.Wait()

	return nil
}

func (s *Source) run(signals <-chan *dbus.Signal) {
	defer s.wg.Done()

	for {
		select {
		case signal, ok := <-signals:
			if !ok {
				return
			}

			s.log.Debugf("Got %v from %v", signal.Name, signal.Path)
			s.dispatch(signal.Name)
		case <-s.done:
			return
		}
	}
}

// dispatch notifies all aggregate subscribers and the transport subscribers
// whose network changed.
func (s *Source) dispatch(origin string) {
	descriptors, err := s.enumerate()
	if err != nil {
		s.log.Warnf("Could not enumerate connections: %v", err)
	}

	s.mu.Lock()

	var signalSubs []*signalSub
	for _, sub := range s.signalSubs {
		signalSubs = append(signalSubs, sub)
	}

	type update struct {
		sub          *transportSub
		availability *network.Availability
	}

	var updates []update
	if err == nil {
		for _, sub := range s.transportSubs {
			current := firstOf(descriptors, sub.transport)
			if current.Equal(sub.last) {
				continue
			}

			sub.last = current
			updates = append(updates, update{sub, &network.Availability{Descriptor: current}})
		}
	}

	s.mu.Unlock()

	signal := &network.Signal{Kind: network.SignalChanged, Origin: origin}

	for _, sub := range signalSubs {
		select {
		case sub.signals <- signal:
		case <-sub.done:
		case <-s.done:
			return
		}
	}

	for _, u := range updates {
		select {
		case u.sub.updates <- u.availability:
		case <-u.sub.done:
		case <-s.done:
			return
		}
	}
}

func (s *Source) Subscribe() (*network.SignalClient, error) {
	sub := &signalSub{
		signals: make(chan *network.Signal),
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	id := s.nextId
	s.nextId++
	s.signalSubs[id] = sub
	s.mu.Unlock()

	var once sync.Once

	return &network.SignalClient{
		Signals: sub.signals,
		Cancel: func() {
			once.Do(func() {
				s.mu.Lock()
				delete(s.signalSubs, id)
				s.mu.Unlock()

				close(sub.done)
			})
		},
	}, nil
}

// SubscribeTransport delivers the activated network of the transport
// whenever it changes, starting with the current one.
func (s *Source) SubscribeTransport(transport network.Transport) (*network.AvailabilityClient, error) {
	descriptors, err := s.enumerate()
	if err != nil {
		return nil, errors.Errorf("could not enumerate connections: %v", err)
	}

	sub := &transportSub{
		transport: transport,
		last:      firstOf(descriptors, transport),
		// the current state is buffered so it never blocks
		updates: make(chan *network.Availability, 1),
		done:    make(chan struct{}),
	}

	sub.updates <- &network.Availability{Descriptor: sub.last}

	s.mu.Lock()
	id := s.nextId
	s.nextId++
	s.transportSubs[id] = sub
	s.mu.Unlock()

	var once sync.Once

	return &network.AvailabilityClient{
		Availability: sub.updates,
		Cancel: func() {
			once.Do(func() {
				s.mu.Lock()
				delete(s.transportSubs, id)
				s.mu.Unlock()

				close(sub.done)
			})
		},
	}, nil
}

func (s *Source) QueryActive() (*network.Descriptor, error) {
	return s.primary()
}

func (s *Source) EnumerateAll() ([]*network.Descriptor, error) {
	return s.enumerate()
}

func (s *Source) queryPrimary() (*network.Descriptor, error) {
	if s.nm == nil {
		return nil, errors.New("not started")
	}

	conn, err := s.nm.GetPropertyPrimaryConnection()
	if err != nil {
		return nil, errors.Errorf("could not get primary connection: %v", err)
	}

	if conn == nil || conn.GetPath() == noConnection {
		return network.NoNetwork, nil
	}

	descriptor, err := describe(conn)
	if err != nil {
		return nil, err
	}

	if descriptor == nil {
		return network.NoNetwork, nil
	}

	return descriptor, nil
}

func (s *Source) queryActivated() ([]*network.Descriptor, error) {
	if s.nm == nil {
		return nil, errors.New("not started")
	}

	conns, err := s.nm.GetPropertyActiveConnections()
	if err != nil {
		return nil, errors.Errorf("could not get active connections: %v", err)
	}

	var descriptors []*network.Descriptor

	for _, conn := range conns {
		descriptor, err := describe(conn)
		if err != nil {
			s.log.Debugf("Skipping connection %v: %v", conn.GetPath(), err)
			continue
		}

		if descriptor != nil {
			descriptors = append(descriptors, descriptor)
		}
	}

	return descriptors, nil
}

// describe converts an active connection, nil for loopback connections.
func describe(conn gonetworkmanager.ActiveConnection) (*network.Descriptor, error) {
	typ, err := conn.GetPropertyType()
	if err != nil {
		return nil, errors.Errorf("could not get type: %v", err)
	}

	if typ == "loopback" {
		return nil, nil
	}

	state, err := conn.GetPropertyState()
	if err != nil {
		return nil, errors.Errorf("could not get state: %v", err)
	}

	transport := transportOf(typ)

	// the connection id defaults to the SSID for wireless connections
	extra, err := conn.GetPropertyID()
	if err != nil {
		return nil, errors.Errorf("could not get id: %v", err)
	}

	subtype := 0

	devices, err := conn.GetPropertyDevices()
	if err == nil && len(devices) > 0 {
		if deviceType, err := devices[0].GetPropertyDeviceType(); err == nil {
			subtype = int(deviceType)
		}

		if transport != network.Wifi {
			if iface, err := devices[0].GetPropertyInterface(); err == nil && iface != "" {
				extra = iface
			}
		}
	}

	connected := state == gonetworkmanager.NmActiveConnectionStateActivated

	return network.NewDescriptor(transport, connected, subtype, extra), nil
}

func transportOf(typ string) network.Transport {
	switch typ {
	case "802-11-wireless":
		return network.Wifi
	case "802-3-ethernet":
		return network.Wired
	case "gsm", "cdma":
		return network.Cellular
	default:
		return network.Other
	}
}

func firstOf(descriptors []*network.Descriptor, transport network.Transport) *network.Descriptor {
	for _, descriptor := range descriptors {
		if descriptor.Active() && descriptor.Transport() == transport {
			return descriptor
		}
	}

	return nil
}
