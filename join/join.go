// Package join drives a wireless network association to a terminal outcome:
// the profile is applied, the adapter is asked to connect and the
// coordinator waits, bounded by a deadline, for its confirmation.
package join

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/google/uuid"
	"github.com/the-lightning-land/netmond/network"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"
)

const DefaultTimeout = 30 * time.Second

// Status reports the network of the wireless transport. It is consulted
// when the adapter cannot be queried after the deadline passed.
type Status interface {
	Current() *network.Descriptor
}

type Config struct {
	Adapter network.Adapter
	// Alternate replaces add, update and enable when set.
	Alternate network.AlternateJoiner
	Status    Status
	Timeout   time.Duration
	// Queue makes a join wait for the one in progress instead of being
	// rejected with ErrJoinInProgress.
	Queue  bool
	Logger Logger
}

type Stats struct {
	Attempts  uint64
	Succeeded uint64
}

type Coordinator struct {
	adapter   network.Adapter
	alternate network.AlternateJoiner
	status    Status
	timeout   time.Duration
	queue     bool
	log       Logger

	// guard admits one attempt at a time
	guard     *semaphore.Weighted
	awaiting  atomic.Bool
	attempts  atomic.Uint64
	succeeded atomic.Uint64

	mu      sync.Mutex
	attempt *Attempt
}

type plan struct {
	attempt  *Attempt
	profile  *network.Profile
	reenable bool
}

func New(config *Config) (*Coordinator, error) {
	if config.Adapter == nil {
		return nil, ErrMissingAdapter
	}

	coordinator := &Coordinator{
		adapter:   config.Adapter,
		alternate: config.Alternate,
		status:    config.Status,
		timeout:   config.Timeout,
		queue:     config.Queue,
		guard:     semaphore.NewWeighted(1),
	}

	if coordinator.timeout <= 0 {
		coordinator.timeout = DefaultTimeout
	}

	if config.Logger != nil {
		coordinator.log = config.Logger
	} else {
		coordinator.log = noopLogger{}
	}

	return coordinator, nil
}

// Join joins the requested network. Without a callback it blocks and
// returns the terminal result. With a callback the request is validated
// right away, the attempt runs in the background and its outcome is
// delivered to the callback. Both ways classify identically.
func (c *Coordinator) Join(ctx context.Context, req *Request, callback Callback) (*Result, error) {
	if req == nil || req.Ssid == "" {
		return nil, ErrInvalidRequest
	}

	if callback != nil && c.queue {
		// fail early, the profile is resolved again once it is our turn
		_, err := c.prepare(req)
		if err != nil {
			return nil, err
		}

		go func() {
			err := c.guard.Acquire(ctx, 1)
			if err != nil {
				callback.OnFailure(CodeFailed, err.Error())
				return
			}

			p, err := c.prepare(req)
			if err != nil {
				c.guard.Release(1)
				callback.OnFailure(CodeFailed, err.Error())
				return
			}

			deliver(callback, c.execute(ctx, p))
		}()

		return nil, nil
	}

	err := c.acquire(ctx)
	if err != nil {
		return nil, err
	}

	p, err := c.prepare(req)
	if err != nil {
		c.guard.Release(1)
		return nil, err
	}

	if callback == nil {
		return c.execute(ctx, p), nil
	}

	go func() {
		deliver(callback, c.execute(ctx, p))
	}()

	return nil, nil
}

func (c *Coordinator) acquire(ctx context.Context) error {
	if c.queue {
		return c.guard.Acquire(ctx, 1)
	}

	if !c.guard.TryAcquire(1) {
		return ErrJoinInProgress
	}

	return nil
}

// prepare resolves a saved profile and encodes the one to apply.
func (c *Coordinator) prepare(req *Request) (*plan, error) {
	security := ClassifySecurity(req.Capabilities)
	target := network.Quote(req.Ssid)

	existing, err := c.resolve(target)
	if err != nil {
		return nil, err
	}

	profile, err := EncodeProfile(req, security, existing)
	if err != nil {
		return nil, err
	}

	return &plan{
		attempt: &Attempt{
			ID:       uuid.New(),
			Target:   target,
			Security: security,
			State:    Idle,
		},
		profile:  profile,
		reenable: security == network.Eap,
	}, nil
}

func (c *Coordinator) resolve(target string) (*network.Profile, error) {
	profiles, err := c.adapter.ListProfiles()
	if err != nil {
		return nil, errors.Errorf("%w: could not list profiles: %v", ErrAdapterOperation, err)
	}

	for _, profile := range profiles {
		if profile.Ssid == target {
			return profile, nil
		}
	}

	return nil, nil
}

// execute runs a prepared attempt while holding the guard and releases it.
func (c *Coordinator) execute(ctx context.Context, p *plan) (result *Result) {
	attempt := p.attempt
	started := time.Now()
	created := ""

	c.attempts.Inc()
	c.track(attempt)

	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("Join of %v failed unexpectedly: %v", attempt.Target, r)
			result = newResult(attempt, started, Failed, fmt.Sprintf("unexpected failure: %v", r))
		}

		if created != "" && (result.State == WrongCredentials || result.State == Failed) {
			err := c.adapter.RemoveProfile(created)
			if err != nil {
				c.log.Warnf("Could not remove profile %v of %v: %v", created, attempt.Target, err)
			}
		}

		c.untrack(result)
		c.guard.Release(1)
	}()

	c.log.Infof("Joining %v (%v)", attempt.Target, attempt.Security)

	c.setState(Configuring, time.Time{})

	var err error
	created, err = c.apply(p)
	if err != nil {
		return newResult(attempt, started, Failed, err.Error())
	}

	client, err := c.adapter.SubscribeAssociation()
	if err != nil {
		return newResult(attempt, started, Failed, fmt.Sprintf("could not subscribe to association results: %v", err))
	}
	defer client.Cancel()

	deadline := time.Now().Add(c.timeout)

	c.setState(AwaitingConfirmation, deadline)
	c.awaiting.Store(true)
	defer c.awaiting.Store(false)

	state, message := c.confirm(ctx, client, attempt.Target, deadline)

	return newResult(attempt, started, state, message)
}

// apply submits the profile and asks the adapter to connect. It returns
// the id of a profile it created.
func (c *Coordinator) apply(p *plan) (string, error) {
	profile := p.profile

	if p.reenable {
		err := c.adapter.EnableProfile(profile.Id)
		if err != nil {
			return "", errors.Errorf("%w: could not enable profile: %v", ErrAdapterOperation, err)
		}

		err = c.adapter.Reconnect()
		if err != nil {
			return "", errors.Errorf("%w: could not reconnect: %v", ErrAdapterOperation, err)
		}

		return "", nil
	}

	if c.alternate != nil {
		err := c.adapter.Disconnect()
		if err != nil {
			return "", errors.Errorf("%w: could not disconnect: %v", ErrAdapterOperation, err)
		}

		err = c.alternate.JoinProfile(profile)
		if err != nil {
			return "", errors.Errorf("%w: could not join profile: %v", ErrAdapterOperation, err)
		}

		return "", nil
	}

	id, err := c.adapter.AddOrUpdateProfile(profile)
	if err != nil {
		return "", errors.Errorf("%w: could not add or update profile: %v", ErrAdapterOperation, err)
	}

	created := ""
	if profile.Id == "" {
		created = id
	}

	err = c.adapter.EnableProfile(id)
	if err != nil {
		return created, errors.Errorf("%w: could not enable profile: %v", ErrAdapterOperation, err)
	}

	err = c.adapter.Reconnect()
	if err != nil {
		return created, errors.Errorf("%w: could not reconnect: %v", ErrAdapterOperation, err)
	}

	return created, nil
}

// confirm waits for a terminal association result of the target. Exactly
// one of result arrival, deadline and cancellation resolves it.
func (c *Coordinator) confirm(ctx context.Context, client *network.AssociationClient, target string, deadline time.Time) (State, string) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		select {
		case res, ok := <-client.Results:
			if !ok {
				c.log.Warnf("Association results of %v ended early", target)
				return c.fallback(target)
			}

			if res == nil || !strings.EqualFold(res.Identity, target) {
				continue
			}

			c.log.Debugf("Association of %v is %v (error %v)", target, res.State, res.ErrorCode)

			switch res.State {
			case network.AssociationCompleted:
				return Succeeded, ""
			case network.AssociationDisconnected:
				if res.ErrorCode == network.ErrorAuthenticating {
					return WrongCredentials, fmt.Sprintf("authentication with %v failed", target)
				}
				return Failed, fmt.Sprintf("disconnected from %v", target)
			case network.AssociationInactive:
				return Failed, "adapter became inactive"
			}
		case <-timer.C:
			return c.fallback(target)
		case <-ctx.Done():
			c.log.Infof("Join of %v cancelled: %v", target, ctx.Err())
			return c.fallback(target)
		}
	}
}

// fallback resolves an attempt without confirmation: a confirmation might
// have raced the deadline, so the current association decides.
func (c *Coordinator) fallback(target string) (State, string) {
	identity, err := c.adapter.CurrentIdentity()
	if err != nil {
		c.log.Warnf("Could not query current association: %v", err)
		identity = c.statusIdentity()
	}

	if identity != "" && strings.EqualFold(identity, target) {
		return Succeeded, ""
	}

	return TimedOut, fmt.Sprintf("no confirmation for %v before deadline", target)
}

func (c *Coordinator) statusIdentity() string {
	if c.status == nil {
		return ""
	}

	current := c.status.Current()
	if current.Transport() != network.Wifi || !current.Connected() {
		return ""
	}

	return network.Quote(current.Extra())
}

func (c *Coordinator) track(attempt *Attempt) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempt = attempt
}

func (c *Coordinator) setState(state State, deadline time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempt.State = state
	c.attempt.Deadline = deadline
}

func (c *Coordinator) untrack(result *Result) {
	c.mu.Lock()
	c.attempt = nil
	c.mu.Unlock()

	if result.State == Succeeded {
		c.succeeded.Inc()
	}

	c.log.Infof("Join of %v ended %v after %v", result.Ssid, result.State, result.Finished.Sub(result.Started))
}

// Attempt returns a snapshot of the attempt in progress, nil when idle.
func (c *Coordinator) Attempt() *Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attempt == nil {
		return nil
	}

	attempt := *c.attempt
	return &attempt
}

// Awaiting reports whether an attempt waits for its confirmation.
func (c *Coordinator) Awaiting() bool {
	return c.awaiting.Load()
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		Attempts:  c.attempts.Load(),
		Succeeded: c.succeeded.Load(),
	}
}

func newResult(attempt *Attempt, started time.Time, state State, message string) *Result {
	return &Result{
		ID:       attempt.ID,
		Ssid:     attempt.Target,
		Security: attempt.Security,
		State:    state,
		Message:  message,
		Started:  started,
		Finished: time.Now(),
	}
}
