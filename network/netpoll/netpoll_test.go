package netpoll

import (
	"sync"
	"testing"
	"time"

	"github.com/go-errors/errors"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/netmond/network"
)

var (
	up   = []string{"up", "broadcast", "multicast", "running"}
	down = []string{"broadcast", "multicast"}
	ipv4 = net.InterfaceAddrList{{Addr: "192.168.1.20/24"}}
	ll   = net.InterfaceAddrList{{Addr: "fe80::1c2a:5bff:fe11:2233/64"}}
)

type fakeInterfaces struct {
	mu    sync.Mutex
	stats net.InterfaceStatList
	err   error
}

func (f *fakeInterfaces) set(stats ...net.InterfaceStat) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stats = stats
}

func (f *fakeInterfaces) list() (net.InterfaceStatList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.stats, f.err
}

func newTestSource(f *fakeInterfaces, interval time.Duration) *Source {
	source := New(&Config{Interval: interval})
	source.interfaces = f.list
	return source
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		stat      net.InterfaceStat
		transport network.Transport
		connected bool
	}{
		{net.InterfaceStat{Name: "wlan0", Flags: up, Addrs: ipv4}, network.Wifi, true},
		{net.InterfaceStat{Name: "wlp2s0", Flags: up, Addrs: ll}, network.Wifi, false},
		{net.InterfaceStat{Name: "eth0", Flags: down, Addrs: ipv4}, network.Wired, false},
		{net.InterfaceStat{Name: "enp3s0", Flags: up, Addrs: ipv4}, network.Wired, true},
		{net.InterfaceStat{Name: "wwan0", Flags: up, Addrs: ipv4}, network.Cellular, true},
		{net.InterfaceStat{Name: "rmnet_data0", Flags: up, Addrs: ipv4}, network.Cellular, true},
		{net.InterfaceStat{Name: "tun0", Flags: up, Addrs: ipv4}, network.Other, true},
	}

	for _, tt := range tests {
		t.Run(tt.stat.Name, func(t *testing.T) {
			descriptor := describe(tt.stat)
			require.NotNil(t, descriptor)

			assert.Equal(t, tt.transport, descriptor.Transport())
			assert.Equal(t, tt.connected, descriptor.Connected())
			assert.Equal(t, tt.stat.Name, descriptor.Extra())
		})
	}

	assert.Nil(t, describe(net.InterfaceStat{Name: "lo", Flags: []string{"up", "loopback", "running"}}))
}

func TestQueryActivePrefersWired(t *testing.T) {
	f := &fakeInterfaces{}
	source := newTestSource(f, time.Hour)

	f.set(
		net.InterfaceStat{Name: "wwan0", Flags: up, Addrs: ipv4},
		net.InterfaceStat{Name: "wlan0", Flags: up, Addrs: ipv4},
		net.InterfaceStat{Name: "eth0", Flags: up, Addrs: ipv4},
	)

	active, err := source.QueryActive()
	require.NoError(t, err)
	assert.Equal(t, network.Wired, active.Transport())

	f.set(
		net.InterfaceStat{Name: "wwan0", Flags: up, Addrs: ipv4},
		net.InterfaceStat{Name: "wlan0", Flags: up, Addrs: ipv4},
		net.InterfaceStat{Name: "eth0", Flags: down},
	)

	active, err = source.QueryActive()
	require.NoError(t, err)
	assert.Equal(t, network.Wifi, active.Transport())

	f.set(net.InterfaceStat{Name: "eth0", Flags: down})

	active, err = source.QueryActive()
	require.NoError(t, err)
	assert.Equal(t, network.NoNetwork, active)

	f.mu.Lock()
	f.err = errors.New("netlink")
	f.mu.Unlock()

	_, err = source.QueryActive()
	assert.Error(t, err)
}

func TestPollSignalsChanges(t *testing.T) {
	f := &fakeInterfaces{}
	f.set(net.InterfaceStat{Name: "eth0", Flags: down})

	source := newTestSource(f, 5*time.Millisecond)

	client, err := source.Subscribe()
	require.NoError(t, err)
	defer client.Cancel()

	require.NoError(t, source.Start())
	defer source.Stop()

	select {
	case signal := <-client.Signals:
		assert.Failf(t, "unexpected signal", "%v", signal.Kind)
	case <-time.After(30 * time.Millisecond):
	}

	f.set(net.InterfaceStat{Name: "eth0", Flags: up, Addrs: ipv4})

	select {
	case signal := <-client.Signals:
		assert.Equal(t, network.SignalChanged, signal.Kind)
		assert.NoError(t, signal.Validate())
	case <-time.After(time.Second):
		require.FailNow(t, "no signal received")
	}
}

func TestStopWithStalledSubscriber(t *testing.T) {
	f := &fakeInterfaces{}
	f.set(net.InterfaceStat{Name: "eth0", Flags: down})

	source := newTestSource(f, time.Millisecond)

	_, err := source.Subscribe()
	require.NoError(t, err)
	require.NoError(t, source.Start())

	f.set(net.InterfaceStat{Name: "eth0", Flags: up, Addrs: ipv4})
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = source.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		require.FailNow(t, "stop blocked")
	}
}
