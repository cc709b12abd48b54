package network

import (
	"github.com/go-errors/errors"
)

// SignalKind classifies a raw connectivity signal.
type SignalKind int

const (
	SignalUnknown SignalKind = iota
	// SignalAvailable reports a network which appeared.
	SignalAvailable
	// SignalLost reports a network which vanished.
	SignalLost
	// SignalChanged reports an unspecified change of the connectivity state.
	SignalChanged
)

func (k SignalKind) String() string {
	switch k {
	case SignalAvailable:
		return "AVAILABLE"
	case SignalLost:
		return "LOST"
	case SignalChanged:
		return "CHANGED"
	default:
		return "UNKNOWN"
	}
}

// Signal is a raw availability event as delivered by the operating system.
// It only triggers a re-evaluation, the source stays the source of truth.
type Signal struct {
	Kind       SignalKind
	Descriptor *Descriptor
	// Origin names what produced the signal, used in diagnostics.
	Origin string
}

// Validate checks whether the signal can be processed.
func (s *Signal) Validate() error {
	if s == nil {
		return errors.New("empty signal")
	}

	switch s.Kind {
	case SignalAvailable:
		if s.Descriptor == nil {
			return errors.Errorf("available signal from %q without descriptor", s.Origin)
		}
	case SignalLost, SignalChanged:
	default:
		return errors.Errorf("unknown signal kind %v from %q", int(s.Kind), s.Origin)
	}

	return nil
}

// Availability is a transport scoped signal: Descriptor is nil when the
// network of the transport was lost.
type Availability struct {
	Descriptor *Descriptor
}
