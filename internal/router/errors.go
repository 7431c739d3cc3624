package router

import "fmt"

// AmbiguousIntentError indicates a request could not be classified.
// It is fatal to the request, not to the process.
type AmbiguousIntentError struct {
	// Op is the operation string that failed to classify.
	Op string
	// Reason explains why classification failed.
	Reason string
}

func (e *AmbiguousIntentError) Error() string {
	return fmt.Sprintf("ambiguous intent %q: %s", e.Op, e.Reason)
}

// ClassificationViolationError indicates a request reached the wrong
// path: a mutating request on the read-only path or vice versa. This is
// a programming invariant violation and is never silently downgraded.
type ClassificationViolationError struct {
	// Op is the offending operation.
	Op string
	// Wanted is the kind the violated path accepts.
	Wanted Kind
	// Detail describes the violation.
	Detail string
}

func (e *ClassificationViolationError) Error() string {
	return fmt.Sprintf("classification violation for %q (path accepts %s): %s", e.Op, e.Wanted, e.Detail)
}
