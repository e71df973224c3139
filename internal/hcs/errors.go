// ABOUTME: Sentinel errors shared by the connection manager packages
// ABOUTME: Result is the success/error envelope returned for expected domain failures

package hcs

import "errors"

var (
	// ErrNotInitialized means an operation ran before its channel or session was set up.
	ErrNotInitialized = errors.New("not initialized")

	// ErrNotFound means an identifier did not resolve to a connection or request.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState means the entity lacks what the operation needs.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidIdentifier means a topic, account or operator id was empty or malformed.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// Result is the typed outcome handed to tool-style callers for expected
// domain failures. Programmer and configuration errors are returned as Go
// errors instead.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// OK returns a successful Result.
func OK() Result {
	return Result{Success: true}
}

// Fail converts a domain error into a failed Result.
func Fail(err error) Result {
	if err == nil {
		return OK()
	}
	return Result{Success: false, Error: err.Error()}
}

// IsDomainFailure reports whether err is an expected domain failure
// (lookup misses and invalid states) rather than a setup problem.
func IsDomainFailure(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState)
}
