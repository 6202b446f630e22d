package types

import "github.com/m-mizutani/goerr/v2"

// Error tags classifying failures across the pipeline. The tag decides
// retry behavior: transient errors are retried by the task queue and the
// circuit breaker's probe schedule, permanent ones are not.
var (
	// TagTransient marks upstream 5xx-class or timeout failures
	TagTransient = goerr.NewTag("transient")
	// TagNotFound marks a handle that does not exist at the source
	TagNotFound = goerr.NewTag("not_found")
	// TagForbidden marks permission failures on a specific operation
	TagForbidden = goerr.NewTag("forbidden")
)

// IsTransient reports whether err is retryable
func IsTransient(err error) bool {
	return goerr.HasTag(err, TagTransient)
}

// IsNotFound reports whether err means the target does not exist
func IsNotFound(err error) bool {
	return goerr.HasTag(err, TagNotFound)
}

// IsForbidden reports whether err is a permission failure
func IsForbidden(err error) bool {
	return goerr.HasTag(err, TagForbidden)
}
