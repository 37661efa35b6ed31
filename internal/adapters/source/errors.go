package source

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrOpenLog        = errors.New("open battle log failed")
	ErrMissingColumns = errors.New("battle log missing required columns")
)
