package sos

import (
	"errors"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/client/location"
)

var (
	ErrNoContacts     = errors.New("no emergency contacts found")
	ErrDispatchActive = errors.New("an sos is already being sent")
	ErrEmptyAIMessage = errors.New("generated message was empty")
)

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

func asLocationError(err error) error {
	locationErr := &location.Error{}
	if errors.As(err, &locationErr) {
		return err
	}
	return &location.Error{Kind: location.Unavailable, Err: err}
}

func asRemoteInvocationError(function string, err error) error {
	invocationErr := &backend.RemoteInvocationError{}
	if errors.As(err, &invocationErr) {
		return err
	}
	return &backend.RemoteInvocationError{Function: function, Err: err}
}

func asPersistenceError(op, table string, err error) error {
	persistenceErr := &backend.PersistenceError{}
	if errors.As(err, &persistenceErr) {
		return err
	}
	return &backend.PersistenceError{Op: op, Table: table, Err: err}
}
