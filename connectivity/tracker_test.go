package connectivity

import (
	"sync"
	"testing"
	"time"

	"github.com/go-errors/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/netmond/network"
)

var (
	homeWifi  = network.NewDescriptor(network.Wifi, true, 0, "\"home\"")
	otherWifi = network.NewDescriptor(network.Wifi, true, 0, "\"office\"")
	ethernet  = network.NewDescriptor(network.Wired, true, 0, "eth0")
	downWired = network.NewDescriptor(network.Wired, false, 0, "eth0")
)

// fakeSource only delivers aggregate signals.
type fakeSource struct {
	mu       sync.Mutex
	active   *network.Descriptor
	all      []*network.Descriptor
	queryErr error
	signals  chan *network.Signal
}

func newFakeSource(active *network.Descriptor, all ...*network.Descriptor) *fakeSource {
	return &fakeSource{
		active:  active,
		all:     all,
		signals: make(chan *network.Signal),
	}
}

func (s *fakeSource) Subscribe() (*network.SignalClient, error) {
	return &network.SignalClient{Signals: s.signals, Cancel: func() {}}, nil
}

func (s *fakeSource) QueryActive() (*network.Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queryErr != nil {
		return nil, s.queryErr
	}

	if s.active == nil {
		return network.NoNetwork, nil
	}

	return s.active, nil
}

func (s *fakeSource) EnumerateAll() ([]*network.Descriptor, error) {
	return s.all, nil
}

func (s *fakeSource) setActive(active *network.Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = active
}

// fakeTransportSource additionally delivers availability per transport.
type fakeTransportSource struct {
	*fakeSource
	feedMu sync.Mutex
	feeds  map[network.Transport]chan *network.Availability
}

func newFakeTransportSource(active *network.Descriptor, all ...*network.Descriptor) *fakeTransportSource {
	return &fakeTransportSource{
		fakeSource: newFakeSource(active, all...),
		feeds:      make(map[network.Transport]chan *network.Availability),
	}
}

func (s *fakeTransportSource) SubscribeTransport(transport network.Transport) (*network.AvailabilityClient, error) {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()

	feed := make(chan *network.Availability, 8)
	s.feeds[transport] = feed

	return &network.AvailabilityClient{Availability: feed, Cancel: func() {}}, nil
}

func (s *fakeTransportSource) feed(transport network.Transport) chan *network.Availability {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()

	return s.feeds[transport]
}

func nextEvent(t *testing.T, client *Client) *Event {
	t.Helper()

	select {
	case event, ok := <-client.Events:
		require.True(t, ok, "events channel closed")
		return event
	case <-time.After(time.Second):
		require.FailNow(t, "timed out waiting for event")
	}

	return nil
}

func requireNoEvent(t *testing.T, client *Client) {
	t.Helper()

	select {
	case event, ok := <-client.Events:
		if ok {
			require.Failf(t, "unexpected event", "%v on %v", event.Kind, event.Transport)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func requireEvent(t *testing.T, client *Client, kind Kind, transport network.Transport) *Event {
	t.Helper()

	event := nextEvent(t, client)
	require.Equal(t, kind, event.Kind)
	require.Equal(t, transport, event.Transport)

	return event
}

func startTracker(t *testing.T, source network.Source) (*Tracker, *Client) {
	t.Helper()

	tracker := New(&Config{Source: source})
	require.NoError(t, tracker.Start())
	t.Cleanup(tracker.Close)

	client := tracker.Subscribe()
	t.Cleanup(client.Cancel)

	return tracker, client
}

func TestStartEmitsSyntheticEvent(t *testing.T) {
	t.Run("no active network", func(t *testing.T) {
		_, client := startTracker(t, newFakeSource(nil))

		event := requireEvent(t, client, Disconnected, network.None)
		assert.Nil(t, event.Current)
		requireNoEvent(t, client)
	})

	t.Run("active network", func(t *testing.T) {
		tracker, client := startTracker(t, newFakeSource(homeWifi, homeWifi))

		event := requireEvent(t, client, Connected, network.Wifi)
		assert.True(t, homeWifi.Equal(event.Current))
		assert.True(t, homeWifi.Equal(tracker.Active()))
		assert.True(t, tracker.Monitor(network.Wifi).Connected())
	})

	t.Run("seeded monitors", func(t *testing.T) {
		tracker := New(&Config{Source: newFakeSource(homeWifi, homeWifi, downWired)})
		client := tracker.Subscribe()
		defer tracker.Close()

		require.NoError(t, tracker.Start())

		requireEvent(t, client, Connected, network.Wifi)
		requireEvent(t, client, TransportConnected, network.Wifi)
		requireEvent(t, client, TransportDisconnected, network.Cellular)
		requireEvent(t, client, TransportDisconnected, network.Wired)
	})
}

func TestStartErrors(t *testing.T) {
	tracker := New(&Config{})
	assert.Equal(t, ErrMissingSource, tracker.Start())
	assert.False(t, tracker.Running())

	tracker = New(&Config{Source: newFakeSource(nil)})
	require.NoError(t, tracker.Start())
	assert.Equal(t, ErrAlreadyStarted, tracker.Start())

	tracker.Close()
	assert.Equal(t, ErrClosed, tracker.Start())

	source := newFakeSource(nil)
	source.queryErr = errors.New("bus gone")
	tracker = New(&Config{Source: source})
	require.Error(t, tracker.Start())
	assert.False(t, tracker.Running())
}

func TestDuplicateSignalsEmitOnce(t *testing.T) {
	source := newFakeSource(nil)
	tracker, client := startTracker(t, source)
	requireEvent(t, client, Disconnected, network.None)

	source.setActive(homeWifi)

	for i := 0; i < 3; i++ {
		tracker.HandleSignal(&network.Signal{Kind: network.SignalAvailable, Descriptor: homeWifi})
	}

	requireEvent(t, client, TransportConnected, network.Wifi)
	requireEvent(t, client, Connected, network.Wifi)
	requireNoEvent(t, client)
}

func TestTransportChangeOrder(t *testing.T) {
	source := newFakeSource(homeWifi, homeWifi)
	tracker, client := startTracker(t, source)
	requireEvent(t, client, Connected, network.Wifi)

	source.setActive(ethernet)
	tracker.HandleSignal(&network.Signal{Kind: network.SignalChanged})

	requireEvent(t, client, TransportDisconnected, network.Wifi)
	requireEvent(t, client, TransportConnected, network.Wired)

	changed := requireEvent(t, client, Changed, network.Wired)
	assert.True(t, homeWifi.Equal(changed.Previous))
	assert.True(t, ethernet.Equal(changed.Current))

	connected := requireEvent(t, client, Connected, network.Wired)
	assert.True(t, ethernet.Equal(connected.Current))

	requireNoEvent(t, client)
}

func TestDisconnect(t *testing.T) {
	source := newFakeSource(ethernet, ethernet)
	tracker, client := startTracker(t, source)
	requireEvent(t, client, Connected, network.Wired)

	// a known but down default counts as no network
	source.setActive(downWired)
	tracker.HandleSignal(&network.Signal{Kind: network.SignalLost})

	requireEvent(t, client, TransportDisconnected, network.Wired)

	event := requireEvent(t, client, Disconnected, network.Wired)
	assert.True(t, ethernet.Equal(event.Previous))
	assert.Nil(t, event.Current)
	assert.Equal(t, network.NoNetwork, tracker.Active())

	tracker.HandleSignal(&network.Signal{Kind: network.SignalLost})
	requireNoEvent(t, client)
}

func TestSameTransportRefreshesSnapshot(t *testing.T) {
	source := newFakeSource(homeWifi, homeWifi)
	tracker, client := startTracker(t, source)
	requireEvent(t, client, Connected, network.Wifi)

	source.setActive(otherWifi)
	tracker.HandleSignal(&network.Signal{Kind: network.SignalChanged})

	requireNoEvent(t, client)
	assert.True(t, otherWifi.Equal(tracker.Active()))
}

func TestMalformedSignalsAreDropped(t *testing.T) {
	logger, hook := test.NewNullLogger()

	source := newFakeSource(nil)
	tracker := New(&Config{Source: source, Logger: logger})
	require.NoError(t, tracker.Start())
	defer tracker.Close()

	client := tracker.Subscribe()
	defer client.Cancel()
	requireEvent(t, client, Disconnected, network.None)

	source.setActive(homeWifi)

	tracker.HandleSignal(nil)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	tracker.HandleSignal(&network.Signal{Kind: network.SignalAvailable, Origin: "test"})
	assert.Contains(t, hook.LastEntry().Message, "malformed")

	tracker.HandleSignal(&network.Signal{Kind: network.SignalKind(42)})

	requireNoEvent(t, client)
	assert.Equal(t, network.NoNetwork, tracker.Active())
}

func TestQueryErrorLeavesStateUnchanged(t *testing.T) {
	logger, hook := test.NewNullLogger()

	source := newFakeSource(homeWifi, homeWifi)
	tracker := New(&Config{Source: source, Logger: logger})
	require.NoError(t, tracker.Start())
	defer tracker.Close()

	client := tracker.Subscribe()
	defer client.Cancel()
	requireEvent(t, client, Connected, network.Wifi)

	source.mu.Lock()
	source.queryErr = errors.New("no reply")
	source.mu.Unlock()

	tracker.HandleSignal(&network.Signal{Kind: network.SignalLost})

	requireNoEvent(t, client)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.True(t, homeWifi.Equal(tracker.Active()))
}

func TestSignalsFromSourceSubscription(t *testing.T) {
	source := newFakeSource(nil)
	tracker, client := startTracker(t, source)
	requireEvent(t, client, Disconnected, network.None)

	source.setActive(ethernet)
	source.signals <- &network.Signal{Kind: network.SignalAvailable, Descriptor: ethernet, Origin: "test"}

	requireEvent(t, client, TransportConnected, network.Wired)
	requireEvent(t, client, Connected, network.Wired)
	assert.True(t, ethernet.Equal(tracker.Active()))
}

func TestNoEventsAfterStop(t *testing.T) {
	source := newFakeSource(nil)
	tracker, client := startTracker(t, source)
	requireEvent(t, client, Disconnected, network.None)

	tracker.Stop()
	tracker.Stop()
	assert.False(t, tracker.Running())

	source.setActive(homeWifi)
	tracker.HandleSignal(&network.Signal{Kind: network.SignalChanged})
	tracker.Monitor(network.Wifi).Available(homeWifi)

	requireNoEvent(t, client)
	assert.Equal(t, network.NoNetwork, tracker.Active())

	// a restarted tracker reports again
	require.NoError(t, tracker.Start())
	requireEvent(t, client, Connected, network.Wifi)
}

func TestConcurrentSignalsAreSerialized(t *testing.T) {
	source := newFakeSource(nil)
	tracker, client := startTracker(t, source)
	requireEvent(t, client, Disconnected, network.None)

	source.setActive(ethernet)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.HandleSignal(&network.Signal{Kind: network.SignalChanged})
		}()
	}
	wg.Wait()

	requireEvent(t, client, TransportConnected, network.Wired)
	requireEvent(t, client, Connected, network.Wired)
	requireNoEvent(t, client)
}

func TestSubscribeFiltersKinds(t *testing.T) {
	source := newFakeSource(homeWifi, homeWifi)
	tracker, _ := startTracker(t, source)

	client := tracker.Subscribe(Changed)
	defer client.Cancel()

	source.setActive(ethernet)
	tracker.HandleSignal(&network.Signal{Kind: network.SignalChanged})

	requireEvent(t, client, Changed, network.Wired)
	requireNoEvent(t, client)
}

func TestStickyReplay(t *testing.T) {
	source := newFakeSource(homeWifi, homeWifi)
	tracker, first := startTracker(t, source)
	requireEvent(t, first, Connected, network.Wifi)

	source.setActive(ethernet)
	tracker.HandleSignal(&network.Signal{Kind: network.SignalChanged})

	late := tracker.Subscribe()
	defer late.Cancel()

	event := requireEvent(t, late, Connected, network.Wired)
	assert.True(t, ethernet.Equal(event.Current))
	requireNoEvent(t, late)
}

func TestCloseClosesClients(t *testing.T) {
	tracker := New(&Config{Source: newFakeSource(nil)})
	require.NoError(t, tracker.Start())

	client := tracker.Subscribe()
	tracker.Close()

	for range client.Events {
	}

	closed := tracker.Subscribe()
	_, ok := <-closed.Events
	assert.False(t, ok)

	// cancelling after close returns
	client.Cancel()
}

func TestClientCancelStopsDelivery(t *testing.T) {
	source := newFakeSource(nil)
	tracker, client := startTracker(t, source)
	requireEvent(t, client, Disconnected, network.None)

	client.Cancel()

	source.setActive(homeWifi)
	tracker.HandleSignal(&network.Signal{Kind: network.SignalChanged})

	_, ok := <-client.Events
	assert.False(t, ok)
}

func TestModernSourceFeedsMonitors(t *testing.T) {
	source := newFakeTransportSource(nil)
	tracker := New(&Config{Source: source})
	client := tracker.Subscribe(TransportConnected, TransportDisconnected)
	defer tracker.Close()

	require.NoError(t, tracker.Start())

	for _, transport := range network.Transports {
		requireEvent(t, client, TransportDisconnected, transport)
	}

	// aggregate signals are not routed to the monitors
	source.setActive(homeWifi)
	tracker.HandleSignal(&network.Signal{Kind: network.SignalChanged})
	requireNoEvent(t, client)
	assert.False(t, tracker.Monitor(network.Wifi).Connected())

	feed := source.feed(network.Wifi)
	require.NotNil(t, feed)

	feed <- &network.Availability{Descriptor: homeWifi}
	feed <- &network.Availability{Descriptor: homeWifi}
	feed <- &network.Availability{Descriptor: otherWifi}

	requireEvent(t, client, TransportConnected, network.Wifi)
	requireNoEvent(t, client)
	assert.True(t, otherWifi.Equal(tracker.Monitor(network.Wifi).Current()))

	feed <- &network.Availability{}

	event := requireEvent(t, client, TransportDisconnected, network.Wifi)
	assert.True(t, otherWifi.Equal(event.Previous))
	assert.Nil(t, tracker.Monitor(network.Wifi).Current())
}

func TestOtherTransportHasNoMonitor(t *testing.T) {
	vpn := network.NewDescriptor(network.Other, true, 0, "tun0")

	source := newFakeSource(nil)
	tracker, client := startTracker(t, source)
	requireEvent(t, client, Disconnected, network.None)

	source.setActive(vpn)
	tracker.HandleSignal(&network.Signal{Kind: network.SignalChanged})

	requireEvent(t, client, Connected, network.Other)
	requireNoEvent(t, client)
	assert.Nil(t, tracker.Monitor(network.Other))
}
