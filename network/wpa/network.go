package wpa

import (
	"github.com/go-errors/errors"
	"github.com/godbus/dbus/v5"
)

// Network is a network configured on an interface.
type Network struct {
	wpa *Wpa
	obj dbus.BusObject
}

func (n *Network) String() string {
	return string(n.obj.Path())
}

func (n *Network) Path() dbus.ObjectPath {
	return n.obj.Path()
}

// Properties returns the configuration fields of the network. Values are
// formatted as in wpa_supplicant.conf, so the ssid comes back quoted.
func (n *Network) Properties() (map[string]string, error) {
	v, err := n.obj.GetProperty(networkIface + ".Properties")
	if err != nil {
		return nil, errors.Errorf("could not get network properties: %v", err)
	}

	raw, ok := v.Value().(map[string]dbus.Variant)
	if !ok {
		return nil, errors.Errorf("could not convert network properties: %v", v)
	}

	props := make(map[string]string, len(raw))

	for key, val := range raw {
		if s, ok := val.Value().(string); ok {
			props[key] = s
		}
	}

	return props, nil
}

// SetProperties overwrites the given configuration fields.
func (n *Network) SetProperties(args map[string]interface{}) error {
	call := n.obj.Call(propertiesIface+".Set", 0, networkIface, "Properties", dbus.MakeVariant(args))
	if call.Err != nil {
		return errors.Errorf("could not set network properties: %v", call.Err)
	}

	return nil
}

func (n *Network) Enabled() (bool, error) {
	v, err := n.obj.GetProperty(networkIface + ".Enabled")
	if err != nil {
		return false, errors.Errorf("could not get enabled: %v", err)
	}

	enabled, ok := v.Value().(bool)
	if !ok {
		return false, errors.Errorf("could not convert enabled: %v", v)
	}

	return enabled, nil
}

func (n *Network) SetEnabled(enabled bool) error {
	call := n.obj.Call(propertiesIface+".Set", 0, networkIface, "Enabled", dbus.MakeVariant(enabled))
	if call.Err != nil {
		return errors.Errorf("could not set enabled: %v", call.Err)
	}

	return nil
}
