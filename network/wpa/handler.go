package wpa

import (
	"sync"

	"github.com/go-errors/errors"
	"github.com/godbus/dbus/v5"
)

type subscription struct {
	path    dbus.ObjectPath
	name    string
	signals chan *dbus.Signal
	done    chan struct{}
}

type subscriptions struct {
	sync.Mutex
	nextId uint32
	subs   map[uint32]*subscription
}

// wpaSignalHandler replaces the default signal channel of the connection
// and routes every signal to the subscriptions matching its path and name.
type wpaSignalHandler struct {
	*Wpa
}

var _ dbus.SignalHandler = (*wpaSignalHandler)(nil)

func (n wpaSignalHandler) DeliverSignal(iface, name string, signal *dbus.Signal) {
	n.deliverSignal(iface, name, signal)
}

// watch registers a match rule and delivers matching signals of the
// given object until cancel is called or the connection is stopped, which
// both close done.
func (w *Wpa) watch(path dbus.ObjectPath, iface string, member string) (*subscription, func(), error) {
	call := w.conn.BusObject().AddMatchSignal(iface, member, dbus.WithMatchObjectPath(path))
	if call.Err != nil {
		return nil, nil, errors.Errorf("could not add signal %v: %v", member, call.Err)
	}

	sub := &subscription{
		path:    path,
		name:    iface + "." + member,
		signals: make(chan *dbus.Signal, signalBufferSize),
		done:    make(chan struct{}),
	}

	w.subs.Lock()
	id := w.subs.nextId
	w.subs.nextId++
	w.subs.subs[id] = sub
	w.subs.Unlock()

	var once sync.Once

	cancel := func() {
		once.Do(func() {
			w.subs.Lock()
			if _, ok := w.subs.subs[id]; ok {
				delete(w.subs.subs, id)
				close(sub.done)
			}
			w.subs.Unlock()

			if w.conn != nil {
				_ = w.conn.BusObject().RemoveMatchSignal(iface, member, dbus.WithMatchObjectPath(path))
			}
		})
	}

	return sub, cancel, nil
}

func (w *Wpa) deliverSignal(iface, name string, signal *dbus.Signal) {
	w.subs.Lock()
	var targets []*subscription
	for _, sub := range w.subs.subs {
		if sub.name == signal.Name && sub.path == signal.Path {
			targets = append(targets, sub)
		}
	}
	w.subs.Unlock()

	for _, sub := range targets {
		select {
		case sub.signals <- signal:
		case <-sub.done:
		}
	}
}
