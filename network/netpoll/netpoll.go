// Package netpoll is a connectivity source which polls the state of the
// network interfaces. It only delivers aggregate signals.
package netpoll

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/the-lightning-land/netmond/network"
)

// check Source compliance to its interface during compile time
var _ network.Source = (*Source)(nil)

const DefaultInterval = 2 * time.Second

// preference orders the transports considered for the active network
var preference = []network.Transport{network.Wired, network.Wifi, network.Cellular, network.Other}

type Config struct {
	Interval time.Duration
	Logger   Logger
}

type subscription struct {
	signals chan *network.Signal
	done    chan struct{}
}

type Source struct {
	interval   time.Duration
	log        Logger
	interfaces func() (net.InterfaceStatList, error)

	mu          sync.Mutex
	nextId      uint32
	subs        map[uint32]*subscription
	fingerprint string
	done        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func New(config *Config) *Source {
	source := &Source{
		interval:   config.Interval,
		interfaces: net.Interfaces,
		subs:       make(map[uint32]*subscription),
		done:       make(chan struct{}),
	}

	if source.interval <= 0 {
		source.interval = DefaultInterval
	}

	if config.Logger != nil {
		source.log = config.Logger
	} else {
		source.log = noopLogger{}
	}

	return source
}

func (s *Source) Start() error {
	stats, err := s.interfaces()
	if err != nil {
		return errors.Errorf("could not list interfaces: %v", err)
	}

	s.mu.Lock()
	s.fingerprint = fingerprint(describeAll(stats))
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()

	return nil
}

func (s *Source) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
	})

	s.wg.Wait()

	return nil
}

func (s *Source) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.poll()
		case <-s.done:
			return
		}
	}
}

// poll signals a change whenever the set of interfaces or their state
// differs from the last poll.
func (s *Source) poll() {
	stats, err := s.interfaces()
	if err != nil {
		s.log.Warnf("Could not list interfaces: %v", err)
		return
	}

	current := fingerprint(describeAll(stats))

	s.mu.Lock()

	if current == s.fingerprint {
		s.mu.Unlock()
		return
	}

	s.log.Debugf("Interfaces changed from %v to %v", s.fingerprint, current)
	s.fingerprint = current

	var subs []*subscription
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}

	s.mu.Unlock()

	signal := &network.Signal{Kind: network.SignalChanged, Origin: "netpoll"}

	for _, sub := range subs {
		select {
		case sub.signals <- signal:
		case <-sub.done:
		case <-s.done:
			return
		}
	}
}

func (s *Source) Subscribe() (*network.SignalClient, error) {
	sub := &subscription{
		signals: make(chan *network.Signal),
		done:    make(chan struct{}),
	}

	s.mu.Lock()
	id := s.nextId
	s.nextId++
	s.subs[id] = sub
	s.mu.Unlock()

	var once sync.Once

	return &network.SignalClient{
		Signals: sub.signals,
		Cancel: func() {
			once.Do(func() {
				s.mu.Lock()
				delete(s.subs, id)
				s.mu.Unlock()

				close(sub.done)
			})
		},
	}, nil
}

// QueryActive returns the first connected interface by transport
// preference, wired before wireless before cellular.
func (s *Source) QueryActive() (*network.Descriptor, error) {
	descriptors, err := s.EnumerateAll()
	if err != nil {
		return nil, err
	}

	for _, transport := range preference {
		for _, descriptor := range descriptors {
			if descriptor.Active() && descriptor.Transport() == transport {
				return descriptor, nil
			}
		}
	}

	return network.NoNetwork, nil
}

func (s *Source) EnumerateAll() ([]*network.Descriptor, error) {
	stats, err := s.interfaces()
	if err != nil {
		return nil, errors.Errorf("could not list interfaces: %v", err)
	}

	return describeAll(stats), nil
}

func describeAll(stats []net.InterfaceStat) []*network.Descriptor {
	var descriptors []*network.Descriptor

	for _, stat := range stats {
		if descriptor := describe(stat); descriptor != nil {
			descriptors = append(descriptors, descriptor)
		}
	}

	return descriptors
}

// describe converts an interface, nil for loopback interfaces.
func describe(stat net.InterfaceStat) *network.Descriptor {
	if stat.Name == "lo" || hasFlag(stat.Flags, "loopback") {
		return nil
	}

	connected := hasFlag(stat.Flags, "up") && hasFlag(stat.Flags, "running") && hasRoutableAddr(stat.Addrs)

	return network.NewDescriptor(transportOf(stat.Name), connected, stat.Index, stat.Name)
}

func transportOf(name string) network.Transport {
	switch {
	case strings.HasPrefix(name, "wl"):
		return network.Wifi
	case strings.HasPrefix(name, "ww"), strings.HasPrefix(name, "rmnet"), strings.HasPrefix(name, "usb"):
		return network.Cellular
	case strings.HasPrefix(name, "en"), strings.HasPrefix(name, "eth"):
		return network.Wired
	default:
		return network.Other
	}
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}

	return false
}

// hasRoutableAddr ignores IPv6 link local addresses, which every interface
// that is up carries.
func hasRoutableAddr(addrs net.InterfaceAddrList) bool {
	for _, addr := range addrs {
		if !strings.HasPrefix(strings.ToLower(addr.Addr), "fe80:") {
			return true
		}
	}

	return false
}

func fingerprint(descriptors []*network.Descriptor) string {
	var parts []string

	for _, descriptor := range descriptors {
		parts = append(parts, fmt.Sprintf("%v/%v/%v", descriptor.Extra(), descriptor.Transport(), descriptor.Connected()))
	}

	sort.Strings(parts)

	return strings.Join(parts, ",")
}
