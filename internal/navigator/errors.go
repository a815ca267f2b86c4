package navigator

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingVersion       = errors.New("missing version")
	ErrNotInCache           = errors.New("routine not in cache")
	ErrUnknownLocation      = errors.New("unknown location")
	ErrNoNavigator          = errors.New("no navigator available")
)

// ConfigError reports a routine configuration rejected by a navigator.
type ConfigError struct {
	NavigatorType string
	Err           error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s navigator: %v", e.NavigatorType, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
