// Package connectivity turns the raw, possibly duplicated connectivity
// signals of the operating system into ordered connect, disconnect and
// change events, both aggregated and per transport.
package connectivity

import (
	"time"

	"github.com/google/uuid"
	"github.com/the-lightning-land/netmond/network"
)

type Kind int

const (
	Connected Kind = iota
	Disconnected
	Changed
	TransportConnected
	TransportDisconnected
)

// Kinds lists every event kind.
var Kinds = []Kind{Connected, Disconnected, Changed, TransportConnected, TransportDisconnected}

func (k Kind) String() string {
	switch k {
	case Connected:
		return "CONNECTED"
	case Disconnected:
		return "DISCONNECTED"
	case Changed:
		return "CHANGED"
	case TransportConnected:
		return "TRANSPORT_CONNECTED"
	case TransportDisconnected:
		return "TRANSPORT_DISCONNECTED"
	default:
		return "INVALID KIND"
	}
}

// Aggregate reports whether the kind describes the active network as a
// whole rather than a single transport.
func (k Kind) Aggregate() bool {
	return k == Connected || k == Disconnected || k == Changed
}

type Event struct {
	ID        uuid.UUID
	Kind      Kind
	Transport network.Transport
	Current   *network.Descriptor
	Previous  *network.Descriptor
	Time      time.Time
}

func newEvent(kind Kind, transport network.Transport, current *network.Descriptor, previous *network.Descriptor) *Event {
	return &Event{
		ID:        uuid.New(),
		Kind:      kind,
		Transport: transport,
		Current:   current,
		Previous:  previous,
		Time:      time.Now(),
	}
}
