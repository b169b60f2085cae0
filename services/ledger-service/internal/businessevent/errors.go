package businessevent

import "errors"

// Caller-defect errors. They signal a bug in the code raising events and are never retried.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrIllegalState    = errors.New("illegal state")
)
