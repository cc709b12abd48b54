// Package supervisor is the central controller of the daemon. It runs the
// connectivity tracker, journals its events, rejoins the last network on
// boot and records the outcome of joins.
package supervisor

import (
	"context"
	"sync"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/netmond/connectivity"
	"github.com/the-lightning-land/netmond/join"
	"github.com/the-lightning-land/netmond/netdb"
	"github.com/the-lightning-land/netmond/network"
	"golang.org/x/sync/errgroup"
)

var (
	// check dependency compliance to the interfaces during compile time
	_ Tracker = (*connectivity.Tracker)(nil)
	_ Joiner  = (*join.Coordinator)(nil)
	_ Store   = (*netdb.DB)(nil)
)

var (
	ErrMissingDependency = errors.New("missing dependency")
	ErrEventsClosed      = errors.New("event stream closed unexpectedly")
)

type Tracker interface {
	Start() error
	Close()
	Subscribe(kinds ...connectivity.Kind) *connectivity.Client
	Active() *network.Descriptor
	Monitor(transport network.Transport) *connectivity.Monitor
}

type Joiner interface {
	Join(ctx context.Context, req *join.Request, callback join.Callback) (*join.Result, error)
	Attempt() *join.Attempt
}

type Store interface {
	AppendEvent(record *netdb.Record) error
	Events(limit int) ([]*netdb.Record, error)
	SetLastJoin(join *netdb.LastJoin) error
	GetLastJoin() (*netdb.LastJoin, error)
}

type Config struct {
	Tracker Tracker
	Joiner  Joiner
	Store   Store
	// Rejoin joins the last successfully joined network on boot when no
	// network is active.
	Rejoin bool
	Logger Logger
}

type Supervisor struct {
	tracker Tracker
	joiner  Joiner
	store   Store
	rejoin  bool
	log     Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

type TransportStatus struct {
	Transport network.Transport
	Connected bool
	Current   *network.Descriptor
}

type Status struct {
	Active     *network.Descriptor
	Transports []*TransportStatus
	// Joining is the in-flight join attempt, nil when idle.
	Joining *join.Attempt
}

func New(config *Config) (*Supervisor, error) {
	if config.Tracker == nil || config.Joiner == nil || config.Store == nil {
		return nil, ErrMissingDependency
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Supervisor{
		tracker: config.Tracker,
		joiner:  config.Joiner,
		store:   config.Store,
		rejoin:  config.Rejoin,
		ctx:     ctx,
		cancel:  cancel,
	}

	if config.Logger != nil {
		s.log = config.Logger
	} else {
		s.log = noopLogger{}
	}

	return s, nil
}

// Run starts the tracker and blocks until Shutdown is called.
func (s *Supervisor) Run() error {
	// subscribing first journals the events emitted on start as well
	client := s.tracker.Subscribe()

	s.log.Infof("Starting connectivity tracker...")

	err := s.tracker.Start()
	if err != nil {
		client.Cancel()
		return errors.Errorf("could not start tracker: %v", err)
	}

	defer func() {
		// the client is drained first so closing never waits on it
		client.Cancel()
		s.tracker.Close()
		s.log.Infof("Closed connectivity tracker.")
	}()

	g, ctx := errgroup.WithContext(s.ctx)

	g.Go(func() error {
		return s.journal(ctx, client.Events)
	})

	if s.rejoin {
		g.Go(func() error {
			s.rejoinLast(ctx)
			return nil
		})
	}

	err = g.Wait()
	if err != nil {
		return errors.Errorf("failed supervising: %v", err)
	}

	return nil
}

func (s *Supervisor) journal(ctx context.Context, events <-chan *connectivity.Event) error {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return ErrEventsClosed
			}

			s.log.Infof("Network %v on %v: %v", event.Kind, event.Transport, event.Current)

			err := s.store.AppendEvent(recordOf(event))
			if err != nil {
				s.log.Errorf("Could not journal event: %v", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// rejoinLast relies on the profile the adapter saved, no credential is
// passed along.
func (s *Supervisor) rejoinLast(ctx context.Context) {
	if active := s.tracker.Active(); active.Active() {
		s.log.Infof("Network %v is active. Not rejoining.", active)
		return
	}

	last, err := s.store.GetLastJoin()
	if err != nil {
		s.log.Warnf("Could not retrieve last join: %v", err)
		return
	}

	if last == nil || last.Outcome != join.Succeeded.String() {
		s.log.Infof("No previously joined network available. Not rejoining.")
		return
	}

	s.log.Infof("Will attempt rejoining %v.", last.Ssid)

	req := &join.Request{
		Ssid:         last.Ssid,
		Capabilities: last.Capabilities,
		Bssid:        last.Bssid,
	}

	result, err := s.joiner.Join(ctx, req, nil)
	if err != nil {
		s.log.Warnf("Could not rejoin %v: %v", last.Ssid, err)
		return
	}

	s.log.Infof("Rejoining %v ended with %v", last.Ssid, result.State)

	// a failed rejoin keeps the record so the next boot tries again
	if result.State == join.Succeeded {
		s.record(req, result)
	}
}

// Join runs a join to completion and records its outcome.
func (s *Supervisor) Join(ctx context.Context, req *join.Request) (*join.Result, error) {
	s.log.Infof("Joining %v", req.Ssid)

	result, err := s.joiner.Join(ctx, req, nil)
	if err != nil {
		return nil, err
	}

	s.log.Infof("Joining %v ended with %v: %v", req.Ssid, result.State, result.Message)

	s.record(req, result)

	return result, nil
}

func (s *Supervisor) record(req *join.Request, result *join.Result) {
	err := s.store.SetLastJoin(&netdb.LastJoin{
		Ssid:         req.Ssid,
		Capabilities: req.Capabilities,
		Bssid:        req.Bssid,
		Outcome:      result.State.String(),
		Time:         result.Finished,
	})
	if err != nil {
		s.log.Errorf("Could not save last join: %v", err)
	}
}

func (s *Supervisor) LastJoin() (*netdb.LastJoin, error) {
	return s.store.GetLastJoin()
}

func (s *Supervisor) History(limit int) ([]*netdb.Record, error) {
	return s.store.Events(limit)
}

func (s *Supervisor) Subscribe() *connectivity.Client {
	return s.tracker.Subscribe()
}

func (s *Supervisor) Status() *Status {
	status := &Status{
		Active:  s.tracker.Active(),
		Joining: s.joiner.Attempt(),
	}

	for _, transport := range network.Transports {
		ts := &TransportStatus{Transport: transport}

		if monitor := s.tracker.Monitor(transport); monitor != nil {
			ts.Connected = monitor.Connected()
			ts.Current = monitor.Current()
		}

		status.Transports = append(status.Transports, ts)
	}

	return status
}

// Shutdown stops Run, an in-flight join is cancelled.
func (s *Supervisor) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.log.Infof("Shutting down...")
		s.cancel()
	})
}

func recordOf(event *connectivity.Event) *netdb.Record {
	return &netdb.Record{
		ID:        event.ID.String(),
		Kind:      event.Kind.String(),
		Transport: event.Transport.String(),
		Current:   recordNetworkOf(event.Current),
		Previous:  recordNetworkOf(event.Previous),
		Time:      event.Time,
	}
}

func recordNetworkOf(descriptor *network.Descriptor) *netdb.RecordNetwork {
	if descriptor.Transport() == network.None {
		return nil
	}

	return &netdb.RecordNetwork{
		Transport: descriptor.Transport().String(),
		Connected: descriptor.Connected(),
		Subtype:   descriptor.Subtype(),
		Extra:     descriptor.Extra(),
	}
}
