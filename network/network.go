package network

import "fmt"

// Transport is the category of a network interface.
type Transport int

const (
	None Transport = iota
	Wifi
	Cellular
	Wired
	Other
)

func (t Transport) String() string {
	switch t {
	case None:
		return "NONE"
	case Wifi:
		return "WIFI"
	case Cellular:
		return "CELLULAR"
	case Wired:
		return "WIRED"
	case Other:
		return "OTHER"
	default:
		return "INVALID TRANSPORT"
	}
}

// Transports lists the transports which are owned by a dedicated monitor.
var Transports = []Transport{Wifi, Cellular, Wired}

// Descriptor is an immutable snapshot of one network's identity and state.
type Descriptor struct {
	transport Transport
	connected bool
	subtype   int
	extra     string
}

// NoNetwork describes the absence of an active network.
var NoNetwork = &Descriptor{transport: None}

// NewDescriptor creates a descriptor. Extra holds the transport specific
// name of the network, the SSID for Wifi or the interface name otherwise.
func NewDescriptor(transport Transport, connected bool, subtype int, extra string) *Descriptor {
	if transport == None {
		return NoNetwork
	}

	return &Descriptor{
		transport: transport,
		connected: connected,
		subtype:   subtype,
		extra:     extra,
	}
}

func (d *Descriptor) Transport() Transport {
	if d == nil {
		return None
	}
	return d.transport
}

func (d *Descriptor) Connected() bool {
	return d != nil && d.connected
}

func (d *Descriptor) Subtype() int {
	if d == nil {
		return 0
	}
	return d.subtype
}

func (d *Descriptor) Extra() string {
	if d == nil {
		return ""
	}
	return d.extra
}

// Active reports whether the descriptor names a connected network.
func (d *Descriptor) Active() bool {
	return d != nil && d.transport != None && d.connected
}

// Equal compares two descriptors by value.
func (d *Descriptor) Equal(o *Descriptor) bool {
	if d == nil || o == nil {
		return d == o
	}
	return *d == *o
}

func (d *Descriptor) String() string {
	if d == nil || d.transport == None {
		return "<none>"
	}
	return fmt.Sprintf("%v[connected=%v subtype=%v extra=%q]", d.transport, d.connected, d.subtype, d.extra)
}
