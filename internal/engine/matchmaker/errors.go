package matchmaker

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInsufficientPopulation = errors.New("population smaller than group size")
	ErrInvalidGroupSize       = errors.New("group size must be 2 or 3")
)
