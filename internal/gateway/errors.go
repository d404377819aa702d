package gateway

import (
	"fmt"
	"strings"
)

// UnsupportedProviderError is returned for a model id that no loaded provider
// serves. It is a configuration error and is never retried.
type UnsupportedProviderError struct {
	ModelID   string
	Supported []string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider %q (available: %s)", e.ModelID, strings.Join(e.Supported, ", "))
}

// ProviderUnavailableError is returned once every attempt failed, the failure
// was not retryable, or the caller gave up. Cause is the last attempt's error.
type ProviderUnavailableError struct {
	ModelID  string
	Attempts int
	Cause    error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("provider %q unavailable after %d attempt(s): %v", e.ModelID, e.Attempts, e.Cause)
}

func (e *ProviderUnavailableError) Unwrap() error { return e.Cause }
