package outcome

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInvalidOutcome = errors.New("invalid outcome for group")
	ErrNothingToUndo  = errors.New("history is empty")
)
