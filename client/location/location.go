package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Daskott/sentinel/client/backend"
)

type ErrorKind string

const (
	Denied      ErrorKind = "denied"
	Timeout     ErrorKind = "timeout"
	Unavailable ErrorKind = "unavailable"
)

// Error is a failed position reading
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("location %s", e.Kind)
	}
	return fmt.Sprintf("location %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Provider supplies a single current-position reading on demand
type Provider interface {
	CurrentPosition(ctx context.Context) (backend.Location, error)
}

// ProviderFunc adapts a function into a Provider
type ProviderFunc func(ctx context.Context) (backend.Location, error)

func (f ProviderFunc) CurrentPosition(ctx context.Context) (backend.Location, error) {
	return f(ctx)
}

// Static always answers with the same reading, or the same error when Err is set
type Static struct {
	Location backend.Location
	Err      error
}

func (s Static) CurrentPosition(ctx context.Context) (backend.Location, error) {
	if s.Err != nil {
		return backend.Location{}, s.Err
	}
	return s.Location, nil
}

// WithTimeout bounds how long 'provider' may take to produce a reading
func WithTimeout(provider Provider, timeout time.Duration) Provider {
	return ProviderFunc(func(ctx context.Context) (backend.Location, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		type reading struct {
			location backend.Location
			err      error
		}

		result := make(chan reading, 1)
		go func() {
			loc, err := provider.CurrentPosition(ctx)
			result <- reading{loc, err}
		}()

		select {
		case <-ctx.Done():
			return backend.Location{}, &Error{Kind: Timeout, Err: ctx.Err()}
		case r := <-result:
			return r.location, r.err
		}
	})
}

// IPLookup approximates the device position from its public IP address.
// The endpoint must answer like ip-api.com i.e. {"status":"success","lat":..,"lon":..}
type IPLookup struct {
	URL    string
	Client *http.Client
}

type ipLookupResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func (p IPLookup) CurrentPosition(ctx context.Context) (backend.Location, error) {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return backend.Location{}, &Error{Kind: Unavailable, Err: err}
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backend.Location{}, &Error{Kind: Timeout, Err: err}
		}
		return backend.Location{}, &Error{Kind: Unavailable, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return backend.Location{}, &Error{Kind: Denied, Err: fmt.Errorf("lookup responded with status %d", resp.StatusCode)}
	}

	body := ipLookupResponse{}
	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return backend.Location{}, &Error{Kind: Unavailable, Err: err}
	}

	if body.Status != "success" {
		return backend.Location{}, &Error{Kind: Unavailable, Err: fmt.Errorf("lookup failed: %s", body.Message)}
	}

	return backend.Location{Lat: body.Lat, Lon: body.Lon}, nil
}
