package join

import (
	"time"

	"github.com/google/uuid"
	"github.com/the-lightning-land/netmond/network"
)

type State int

const (
	Idle State = iota
	Configuring
	AwaitingConfirmation
	Succeeded
	TimedOut
	WrongCredentials
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Configuring:
		return "CONFIGURING"
	case AwaitingConfirmation:
		return "AWAITING_CONFIRMATION"
	case Succeeded:
		return "SUCCEEDED"
	case TimedOut:
		return "TIMED_OUT"
	case WrongCredentials:
		return "WRONG_CREDENTIALS"
	case Failed:
		return "FAILED"
	default:
		return "INVALID STATE"
	}
}

// Terminal reports whether a join ends in the state.
func (s State) Terminal() bool {
	return s >= Succeeded
}

// Failure codes passed to Callback.OnFailure.
const (
	CodeFailed           = -1
	CodeTimeout          = -2
	CodeWrongCredentials = -3
)

// Request names the network to join.
type Request struct {
	Ssid string
	// Capabilities is the security capability string seen in the scan,
	// e.g. "[WPA2-PSK-CCMP][ESS]".
	Capabilities string
	// Credential is the WEP key or passphrase, empty for open networks
	// and saved profiles.
	Credential string
	Bssid      string
}

// Attempt is the join which is currently executed.
type Attempt struct {
	ID       uuid.UUID
	Target   string
	Security network.SecurityKind
	State    State
	Deadline time.Time
}

type Result struct {
	ID       uuid.UUID
	Ssid     string
	Security network.SecurityKind
	State    State
	Message  string
	Started  time.Time
	Finished time.Time
}

// Code returns the callback failure code of the result, 0 on success.
func (r *Result) Code() int {
	switch r.State {
	case Succeeded:
		return 0
	case TimedOut:
		return CodeTimeout
	case WrongCredentials:
		return CodeWrongCredentials
	default:
		return CodeFailed
	}
}

// Callback receives the outcome of a join running in the background.
type Callback interface {
	OnSuccess()
	OnFailure(code int, message string)
}

// CallbackFuncs adapts two functions to a Callback.
type CallbackFuncs struct {
	Success func()
	Failure func(code int, message string)
}

func (c CallbackFuncs) OnSuccess() {
	if c.Success != nil {
		c.Success()
	}
}

func (c CallbackFuncs) OnFailure(code int, message string) {
	if c.Failure != nil {
		c.Failure(code, message)
	}
}

func deliver(callback Callback, result *Result) {
	if result.State == Succeeded {
		callback.OnSuccess()
	} else {
		callback.OnFailure(result.Code(), result.Message)
	}
}
