package ranking

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInvalidMilestones = errors.New("invalid milestone sequence")
)
