package wpa

import (
	"encoding/hex"
	"strings"

	"github.com/go-errors/errors"
	"github.com/godbus/dbus/v5"
)

// BSS is an access point seen by the interface.
type BSS struct {
	obj dbus.BusObject
}

func (b *BSS) String() string {
	return string(b.obj.Path())
}

type Bss struct {
	Ssid  string
	Bssid string
	// Capabilities lists the security markers, e.g. "[RSN-WPA-PSK][ESS]".
	Capabilities string
	Signal       int16
	Frequency    uint16
}

func (b *BSS) GetAll() (*Bss, error) {
	call := b.obj.Call(propertiesIface+".GetAll", 0, bssIface)
	if call.Err != nil {
		return nil, errors.Errorf("could not get all properties: %v", call.Err)
	}

	props, ok := call.Body[0].(map[string]dbus.Variant)
	if !ok {
		return nil, errors.Errorf("could not convert output")
	}

	bss := Bss{}

	if val, ok := props["SSID"]; ok {
		if ssid, ok := val.Value().([]byte); ok {
			bss.Ssid = string(ssid)
		} else {
			return nil, errors.Errorf("could not convert SSID to string: %v", val)
		}
	} else {
		return nil, errors.Errorf("mandatory property SSID was missing")
	}

	if val, ok := props["BSSID"]; ok {
		if bssid, ok := val.Value().([]byte); ok {
			bss.Bssid = hex.EncodeToString(bssid)
		} else {
			return nil, errors.Errorf("could not convert BSSID to string: %v", val)
		}
	} else {
		return nil, errors.Errorf("mandatory property BSSID was missing")
	}

	if val, ok := props["Signal"]; ok {
		bss.Signal, _ = val.Value().(int16)
	}

	if val, ok := props["Frequency"]; ok {
		bss.Frequency, _ = val.Value().(uint16)
	}

	bss.Capabilities = capabilities(props)

	return &bss, nil
}

func capabilities(props map[string]dbus.Variant) string {
	var sb strings.Builder

	for _, proto := range []string{"WPA", "RSN"} {
		val, ok := props[proto]
		if !ok {
			continue
		}

		settings, ok := val.Value().(map[string]dbus.Variant)
		if !ok {
			continue
		}

		keyMgmt, ok := settings["KeyMgmt"]
		if !ok {
			continue
		}

		suites, _ := keyMgmt.Value().([]string)
		for _, suite := range suites {
			sb.WriteString("[" + proto + "-" + strings.ToUpper(suite) + "]")
		}
	}

	if sb.Len() == 0 {
		if val, ok := props["Privacy"]; ok {
			if privacy, _ := val.Value().(bool); privacy {
				sb.WriteString("[WEP]")
			}
		}
	}

	sb.WriteString("[ESS]")

	return sb.String()
}
