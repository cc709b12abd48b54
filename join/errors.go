package join

import (
	"github.com/go-errors/errors"
)

var (
	ErrMissingAdapter = errors.New("no adapter configured")
	// ErrUnsupportedSecurityKind is returned when a profile for the security
	// kind cannot be created by a join.
	ErrUnsupportedSecurityKind = errors.New("unsupported security kind")
	ErrJoinInProgress          = errors.New("another join is in progress")
	ErrInvalidRequest          = errors.New("invalid join request")
	// ErrAdapterOperation wraps failures of the adapter control service.
	ErrAdapterOperation = errors.New("adapter operation failed")
)
