package network

// SignalClient delivers raw signals until cancelled.
type SignalClient struct {
	Signals <-chan *Signal
	Cancel  func()
}

// AvailabilityClient delivers the availability of one transport until cancelled.
type AvailabilityClient struct {
	Availability <-chan *Availability
	Cancel       func()
}

// Source is the operating system's connectivity service.
type Source interface {
	// Subscribe starts delivering raw signals of all transports.
	Subscribe() (*SignalClient, error)
	// QueryActive returns the currently active network or NoNetwork.
	QueryActive() (*Descriptor, error)
	// EnumerateAll returns all networks currently known to the system.
	EnumerateAll() ([]*Descriptor, error)
}

// TransportSubscriber is implemented by sources which can deliver
// availability signals filtered by transport. Sources lacking it only
// deliver aggregate signals.
type TransportSubscriber interface {
	SubscribeTransport(Transport) (*AvailabilityClient, error)
}
