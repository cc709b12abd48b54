package connectivity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/netmond/network"
)

type recorder struct {
	events []*Event
}

func (r *recorder) publish(event *Event) {
	r.events = append(r.events, event)
}

func (r *recorder) kinds() []Kind {
	var kinds []Kind
	for _, event := range r.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

func TestMonitorSuppressesSelfTransitions(t *testing.T) {
	rec := &recorder{}
	monitor := newMonitor(network.Wired, nil, rec.publish, noopLogger{})

	require.NoError(t, monitor.Start())
	assert.Equal(t, ErrAlreadyStarted, monitor.Start())

	monitor.Lost()
	monitor.Available(ethernet)
	monitor.Available(ethernet)
	monitor.Available(downWired)
	monitor.Lost()
	monitor.Available(nil)

	assert.Equal(t, []Kind{TransportDisconnected, TransportConnected, TransportDisconnected}, rec.kinds())
}

func TestMonitorSeed(t *testing.T) {
	rec := &recorder{}
	monitor := newMonitor(network.Wifi, nil, rec.publish, noopLogger{})

	// descriptors of other transports do not seed
	monitor.SetSeed(ethernet)
	monitor.SetSeed(homeWifi)

	require.NoError(t, monitor.Start())
	assert.Equal(t, []Kind{TransportConnected}, rec.kinds())
	assert.True(t, monitor.Connected())

	monitor.SetSeed(nil)
	assert.True(t, homeWifi.Equal(monitor.Current()))

	monitor.Available(homeWifi)
	assert.Len(t, rec.events, 1)
}

func TestMonitorIgnoresOtherTransports(t *testing.T) {
	rec := &recorder{}
	monitor := newMonitor(network.Cellular, nil, rec.publish, noopLogger{})
	require.NoError(t, monitor.Start())

	monitor.Available(homeWifi)

	assert.False(t, monitor.Connected())
	assert.Len(t, rec.events, 1)
}

func TestMonitorStopClearsState(t *testing.T) {
	rec := &recorder{}
	monitor := newMonitor(network.Wifi, nil, rec.publish, noopLogger{})

	monitor.SetSeed(homeWifi)
	require.NoError(t, monitor.Start())

	monitor.Stop()
	monitor.Stop()

	assert.False(t, monitor.Connected())
	assert.Nil(t, monitor.Current())

	monitor.Lost()
	assert.Len(t, rec.events, 1)
}
