package routing

import (
	"context"
	"errors"
	"strings"

	"github.com/Daskott/sentinel/client/backend"
)

var ErrMissingLocation = errors.New("both a start and an end location are required")

// SafeRoute asks the backend for a safety oriented description of a route
// between two free-text locations
func SafeRoute(ctx context.Context, gateway backend.Gateway, start, end string) (string, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" || end == "" {
		return "", ErrMissingLocation
	}

	response := backend.SafeRouteResponse{}
	err := gateway.Invoke(ctx, backend.GenerateSafeRouteFunction, backend.SafeRouteRequest{Start: start, End: end}, &response)
	if err != nil {
		invocationErr := &backend.RemoteInvocationError{}
		if errors.As(err, &invocationErr) {
			return "", err
		}
		return "", &backend.RemoteInvocationError{Function: backend.GenerateSafeRouteFunction, Err: err}
	}

	return response.Description, nil
}
