package rating

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrNumericDegenerate = errors.New("numeric degenerate rating update")
)
