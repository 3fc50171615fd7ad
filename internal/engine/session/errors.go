package session

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrBusy             = errors.New("a resolution is already in flight")
	ErrNoActiveGroup    = errors.New("no comparison group outstanding")
	ErrMilestonePending = errors.New("milestone shown; continue first")
	ErrNoMilestone      = errors.New("no milestone shown")
	ErrEmptyPopulation  = errors.New("population is empty")
	ErrLoadState        = errors.New("loading persisted state failed")
)
