package connectivity

import (
	"github.com/go-errors/errors"
)

var (
	// ErrMissingSource is returned by Start when no source was configured.
	ErrMissingSource  = errors.New("no connectivity source configured")
	ErrAlreadyStarted = errors.New("already started")
	ErrClosed         = errors.New("tracker is closed")
)
