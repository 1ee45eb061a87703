package step

import (
	"errors"
	"fmt"
	"sort"
)

// ErrConfiguration marks a step that cannot run because a required setting
// (credential, URL, container name) is missing. Such steps fail immediately
// and are not retried.
var ErrConfiguration = errors.New("configuration error")

// MissingSettingError reports the setting keys an action needed but did not find.
type MissingSettingError struct {
	Keys []string
}

// Error implements the error interface.
func (e *MissingSettingError) Error() string {
	return fmt.Sprintf("missing required setting(s): %v", e.Keys)
}

// Unwrap lets errors.Is match [ErrConfiguration].
func (e *MissingSettingError) Unwrap() error {
	return ErrConfiguration
}

// ClassifyError maps an action error to a step status.
//
// Configuration errors become [StatusFailed]; everything else, including
// deadline and cancellation errors, becomes [StatusError].
func ClassifyError(err error) Status {
	if errors.Is(err, ErrConfiguration) {
		return StatusFailed
	}
	return StatusError
}

// requireSettings returns a [MissingSettingError] listing every empty value.
func requireSettings(values map[string]string) error {
	var missing []string
	for key, value := range values {
		if value == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return &MissingSettingError{Keys: missing}
}

