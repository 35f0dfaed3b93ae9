package backend

import (
	"fmt"
	"strings"
)

// APIError is a non 2xx answer from the backend
type APIError struct {
	Status   int
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("backend responded with status %d", e.Status)
	}
	return fmt.Sprintf("backend responded with status %d: %s", e.Status, strings.Join(e.Messages, "; "))
}

// RemoteInvocationError is a failed serverless function call
type RemoteInvocationError struct {
	Function string
	Err      error
}

func (e *RemoteInvocationError) Error() string {
	return fmt.Sprintf("function %s failed: %v", e.Function, e.Err)
}

func (e *RemoteInvocationError) Unwrap() error { return e.Err }

// PersistenceError is a failed select/insert/upsert/delete
type PersistenceError struct {
	Op    string
	Table string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s on %s failed: %v", e.Op, e.Table, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// SubscriptionError is a change feed that could not be set up
type SubscriptionError struct {
	Table  string
	Filter Filter
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscribing to %s (%s) failed: %v", e.Table, e.Filter, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
