package jitter

import "github.com/pkg/errors"

// Errors returned by World and Config. Call sites wrap them with context, test with
// errors.Is.
var (
	ErrInvalidConfiguration = errors.New("jitter: invalid configuration")
	ErrInvalidTopology      = errors.New("jitter: invalid topology")
	ErrBodyExists           = errors.Wrap(ErrInvalidTopology, "body already in world")
	ErrBodyNotFound         = errors.Wrap(ErrInvalidTopology, "body not in world")
	ErrConstraintExists     = errors.Wrap(ErrInvalidTopology, "constraint already in world")
	ErrConstraintNotFound   = errors.Wrap(ErrInvalidTopology, "constraint not in world")
	ErrSoftBodyExists       = errors.Wrap(ErrInvalidTopology, "soft body already in world")
	ErrSoftBodyNotFound     = errors.Wrap(ErrInvalidTopology, "soft body not in world")
	ErrNilBody              = errors.Wrap(ErrInvalidTopology, "nil body")
	ErrNegativeTimestep     = errors.Wrap(ErrInvalidConfiguration, "negative timestep")
)
