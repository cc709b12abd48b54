package wpa

import (
	"github.com/go-errors/errors"
	"github.com/godbus/dbus/v5"
)

// Interface is a network interface controlled by wpa_supplicant.
type Interface struct {
	wpa *Wpa
	obj dbus.BusObject
}

func (i *Interface) Path() dbus.ObjectPath {
	return i.obj.Path()
}

func (i *Interface) Scan() error {
	call := i.obj.Call(interfaceIface+".Scan", 0, map[string]interface{}{
		"Type": "active",
	})
	if call.Err != nil {
		return errors.Errorf("could not scan: %v", call.Err)
	}

	return nil
}

type BSSAddedClient struct {
	BSSAdded <-chan *BSS
	Cancel   func()
}

func (i *Interface) BSSAdded() (*BSSAddedClient, error) {
	sub, cancel, err := i.wpa.watch(i.obj.Path(), interfaceIface, "BSSAdded")
	if err != nil {
		return nil, err
	}

	bssChan := make(chan *BSS)

	go func() {
		defer close(bssChan)

		for {
			select {
			case signal := <-sub.signals:
				if len(signal.Body) < 1 {
					continue
				}

				path, ok := signal.Body[0].(dbus.ObjectPath)
				if !ok {
					continue
				}

				select {
				case bssChan <- i.bss(path):
				case <-sub.done:
					return
				}
			case <-sub.done:
				return
			}
		}
	}()

	return &BSSAddedClient{
		BSSAdded: bssChan,
		Cancel:   cancel,
	}, nil
}

type ScanDoneClient struct {
	ScanDone <-chan bool
	Cancel   func()
}

func (i *Interface) ScanDone() (*ScanDoneClient, error) {
	sub, cancel, err := i.wpa.watch(i.obj.Path(), interfaceIface, "ScanDone")
	if err != nil {
		return nil, err
	}

	doneChan := make(chan bool)

	go func() {
		defer close(doneChan)

		for {
			select {
			case signal := <-sub.signals:
				if len(signal.Body) < 1 {
					continue
				}

				success, ok := signal.Body[0].(bool)
				if !ok {
					continue
				}

				select {
				case doneChan <- success:
				case <-sub.done:
					return
				}
			case <-sub.done:
				return
			}
		}
	}()

	return &ScanDoneClient{
		ScanDone: doneChan,
		Cancel:   cancel,
	}, nil
}

type PropertiesChangedClient struct {
	Changes <-chan map[string]dbus.Variant
	Cancel  func()
}

// PropertiesChanged delivers the changed properties of the interface,
// among them State and DisconnectReason.
func (i *Interface) PropertiesChanged() (*PropertiesChangedClient, error) {
	sub, cancel, err := i.wpa.watch(i.obj.Path(), interfaceIface, "PropertiesChanged")
	if err != nil {
		return nil, err
	}

	changesChan := make(chan map[string]dbus.Variant)

	go func() {
		defer close(changesChan)

		for {
			select {
			case signal := <-sub.signals:
				if len(signal.Body) < 1 {
					continue
				}

				props, ok := signal.Body[0].(map[string]dbus.Variant)
				if !ok {
					continue
				}

				select {
				case changesChan <- props:
				case <-sub.done:
					return
				}
			case <-sub.done:
				return
			}
		}
	}()

	return &PropertiesChangedClient{
		Changes: changesChan,
		Cancel:  cancel,
	}, nil
}

func (i *Interface) BSSs() ([]*BSS, error) {
	v, err := i.obj.GetProperty(interfaceIface + ".BSSs")
	if err != nil {
		return nil, errors.Errorf("could not get bsss: %v", err)
	}

	objectPaths, ok := v.Value().([]dbus.ObjectPath)
	if !ok {
		return nil, errors.Errorf("could not convert bsss: %v", v)
	}

	var bsss []*BSS

	for _, objectPath := range objectPaths {
		bsss = append(bsss, i.bss(objectPath))
	}

	return bsss, nil
}

// CurrentBSS returns the access point the interface is associated with,
// nil when there is none.
func (i *Interface) CurrentBSS() (*BSS, error) {
	v, err := i.obj.GetProperty(interfaceIface + ".CurrentBSS")
	if err != nil {
		return nil, errors.Errorf("could not get current bss: %v", err)
	}

	path, ok := v.Value().(dbus.ObjectPath)
	if !ok {
		return nil, errors.Errorf("could not convert current bss: %v", v)
	}

	if path == noObject || path == "" {
		return nil, nil
	}

	return i.bss(path), nil
}

// State returns the supplicant state, e.g. "completed" or "4way_handshake".
func (i *Interface) State() (string, error) {
	v, err := i.obj.GetProperty(interfaceIface + ".State")
	if err != nil {
		return "", errors.Errorf("could not get state: %v", err)
	}

	state, ok := v.Value().(string)
	if !ok {
		return "", errors.Errorf("could not convert state: %v", v)
	}

	return state, nil
}

func (i *Interface) Networks() ([]*Network, error) {
	v, err := i.obj.GetProperty(interfaceIface + ".Networks")
	if err != nil {
		return nil, errors.Errorf("could not get networks: %v", err)
	}

	objectPaths, ok := v.Value().([]dbus.ObjectPath)
	if !ok {
		return nil, errors.Errorf("could not convert networks: %v", v)
	}

	var networks []*Network

	for _, objectPath := range objectPaths {
		networks = append(networks, i.Network(objectPath))
	}

	return networks, nil
}

// Network returns the configured network at the given path.
func (i *Interface) Network(path dbus.ObjectPath) *Network {
	return &Network{
		wpa: i.wpa,
		obj: i.wpa.conn.Object(service, path),
	}
}

// AddNetwork creates a network from wpa_supplicant configuration fields.
// String values are quoted by wpa_supplicant, byte arrays are stored as hex.
func (i *Interface) AddNetwork(args map[string]interface{}) (*Network, error) {
	call := i.obj.Call(interfaceIface+".AddNetwork", 0, args)
	if call.Err != nil {
		return nil, errors.Errorf("could not add network: %v", call.Err)
	}

	var objPath dbus.ObjectPath
	err := call.Store(&objPath)
	if err != nil {
		return nil, errors.Errorf("could not store value: %v", err)
	}

	return i.Network(objPath), nil
}

func (i *Interface) RemoveNetwork(net *Network) error {
	call := i.obj.Call(interfaceIface+".RemoveNetwork", 0, net.obj.Path())
	if call.Err != nil {
		return errors.Errorf("could not remove network: %v", call.Err)
	}

	return nil
}

func (i *Interface) RemoveAllNetworks() error {
	call := i.obj.Call(interfaceIface+".RemoveAllNetworks", 0)
	if call.Err != nil {
		return errors.Errorf("could not remove all networks: %v", call.Err)
	}

	return nil
}

// SelectNetwork disables all other networks and connects to the given one.
func (i *Interface) SelectNetwork(net *Network) error {
	call := i.obj.Call(interfaceIface+".SelectNetwork", 0, net.obj.Path())
	if call.Err != nil {
		return errors.Errorf("could not select network: %v", call.Err)
	}

	return nil
}

func (i *Interface) Reconnect() error {
	call := i.obj.Call(interfaceIface+".Reconnect", 0)
	if call.Err != nil {
		return errors.Errorf("could not reconnect: %v", call.Err)
	}

	return nil
}

func (i *Interface) Disconnect() error {
	call := i.obj.Call(interfaceIface+".Disconnect", 0)
	if call.Err != nil {
		return errors.Errorf("could not disconnect: %v", call.Err)
	}

	return nil
}

func (i *Interface) bss(path dbus.ObjectPath) *BSS {
	return &BSS{
		obj: i.wpa.conn.Object(service, path),
	}
}
