package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/picklr-io/shipyard/internal/cloud"
)

// ErrorClass classifies a reconciliation failure.
type ErrorClass string

const (
	// ClassConfig is a configuration problem detected before any remote call.
	ClassConfig ErrorClass = "config"
	// ClassOwnership means a pre-existing resource is not managed by us.
	ClassOwnership ErrorClass = "ownership"
	// ClassTransient is an eventually-consistent failure that outlived its retries.
	ClassTransient ErrorClass = "transient"
	// ClassTimeout means an asynchronous operation did not settle in time.
	ClassTimeout ErrorClass = "timeout"
	// ClassListingOverflow means a listing was larger than we are willing to page.
	ClassListingOverflow ErrorClass = "listing_overflow"
	// ClassProvider is any other provider error.
	ClassProvider ErrorClass = "provider"
)

// EngineError is a classified reconciliation error.
type EngineError struct {
	Class     ErrorClass
	Message   string
	Code      string
	Resource  string
	Operation string
	Elapsed   time.Duration
	Err       error
}

func (e *EngineError) Error() string {
	msg := e.Message
	if e.Resource != "" {
		msg = fmt.Sprintf("%s (resource: %s)", msg, e.Resource)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of the first *EngineError in err's chain.
// Errors that never went through the engine are reported as provider errors.
func ClassOf(err error) ErrorClass {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Class
	}
	return ClassProvider
}

// IsClass reports whether err carries the given class.
func IsClass(err error, class ErrorClass) bool {
	if err == nil {
		return false
	}
	return ClassOf(err) == class
}

// ConfigError reports an invalid configuration value.
func ConfigError(resource, format string, args ...any) *EngineError {
	return &EngineError{
		Class:    ClassConfig,
		Message:  fmt.Sprintf(format, args...),
		Resource: resource,
	}
}

// OwnershipError reports a resource that exists but is not managed by us.
func OwnershipError(kind, remoteID, tag string) *EngineError {
	found := "no ownership tag"
	if tag != "" {
		found = fmt.Sprintf("%s=%q", OwnershipTagKey, tag)
	}
	return &EngineError{
		Class:    ClassOwnership,
		Message:  fmt.Sprintf("refusing to modify %s that was not created by shipyard (%s)", kind, found),
		Resource: remoteID,
	}
}

// TimeoutError reports an asynchronous operation that did not settle.
func TimeoutError(operation string, elapsed time.Duration) *EngineError {
	return &EngineError{
		Class:     ClassTimeout,
		Message:   fmt.Sprintf("timed out waiting for %s after %s", operation, elapsed.Round(time.Millisecond)),
		Operation: operation,
		Elapsed:   elapsed,
	}
}

// ListingOverflowError reports a listing that would need more paging than allowed.
func ListingOverflowError(operation string, limit int) *EngineError {
	return &EngineError{
		Class:     ClassListingOverflow,
		Message:   fmt.Sprintf("%s returned more than %d entries; refusing to work from a partial listing", operation, limit),
		Operation: operation,
	}
}

// ProviderError wraps a provider failure, keeping its code.
func ProviderError(operation string, err error) *EngineError {
	return &EngineError{
		Class:     ClassProvider,
		Message:   fmt.Sprintf("failed to %s", operation),
		Code:      cloud.CodeOf(err),
		Operation: operation,
		Err:       err,
	}
}

// WithResource attaches the resource name or identifier.
func (e *EngineError) WithResource(resource string) *EngineError {
	e.Resource = resource
	return e
}
