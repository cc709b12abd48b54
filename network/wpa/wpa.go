package wpa

import (
	"github.com/go-errors/errors"
	"github.com/godbus/dbus/v5"
)

const (
	service          = "fi.w1.wpa_supplicant1"
	servicePath      = "/fi/w1/wpa_supplicant1"
	interfaceIface   = service + ".Interface"
	networkIface     = service + ".Network"
	bssIface         = service + ".BSS"
	propertiesIface  = "org.freedesktop.DBus.Properties"
	noObject         = dbus.ObjectPath("/")
	signalBufferSize = 64
)

// Wpa is a connection to wpa_supplicant on the system bus.
type Wpa struct {
	conn *dbus.Conn
	obj  dbus.BusObject
	subs subscriptions
}

func New() *Wpa {
	return &Wpa{
		subs: subscriptions{
			subs: make(map[uint32]*subscription),
		},
	}
}

func (w *Wpa) Start() error {
	conn, err := dbus.ConnectSystemBus(dbus.WithSignalHandler(wpaSignalHandler{w}))
	if err != nil {
		return errors.Errorf("could not connect to system bus: %v", err)
	}

	w.conn = conn
	w.obj = conn.Object(service, servicePath)

	return nil
}

func (w *Wpa) Stop() error {
	if w.conn == nil {
		return nil
	}

	w.subs.Lock()
	for id, sub := range w.subs.subs {
		close(sub.done)
		delete(w.subs.subs, id)
	}
	w.subs.Unlock()

	err := w.conn.Close()
	if err != nil {
		return errors.Errorf("could not close system bus connection: %v", err)
	}

	w.conn = nil

	return nil
}

func (w *Wpa) GetInterface(ifname string) (*Interface, error) {
	if w.conn == nil {
		return nil, errors.New("wpa is not started")
	}

	call := w.obj.Call(service+".GetInterface", 0, ifname)
	if call.Err != nil {
		return nil, errors.Errorf("could not get interface %v: %v", ifname, call.Err)
	}

	var path dbus.ObjectPath
	err := call.Store(&path)
	if err != nil {
		return nil, errors.Errorf("could not store value: %v", err)
	}

	return &Interface{
		wpa: w,
		obj: w.conn.Object(service, path),
	}, nil
}
