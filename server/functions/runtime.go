package functions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/logger"
	"golang.org/x/time/rate"
)

const (
	DEFAULT_RATE_PER_MINUTE = 10
	DEFAULT_BURST           = 3
)

var (
	ErrUnknownFunction = errors.New("function does not exist")
	ErrInvalidPayload  = errors.New("invalid function payload")
	ErrRateLimited     = errors.New("too many requests, try again shortly")

	logg = logger.Named("functions")
)

// Runtime runs functions by name on behalf of a user. Invocations are rate
// limited per user since every call may hit a paid model.
type Runtime struct {
	generator Generator
	limit     rate.Limit
	burst     int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRuntime(generator Generator, ratePerMinute, burst int) *Runtime {
	if ratePerMinute <= 0 {
		ratePerMinute = DEFAULT_RATE_PER_MINUTE
	}
	if burst <= 0 {
		burst = DEFAULT_BURST
	}

	return &Runtime{
		generator: generator,
		limit:     rate.Every(time.Minute / time.Duration(ratePerMinute)),
		burst:     burst,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Invoke runs function 'name' with the raw json 'payload' & returns the value to encode as its result
func (rt *Runtime) Invoke(ctx context.Context, userID, name string, payload []byte) (interface{}, error) {
	switch name {
	case backend.GenerateSosMessageFunction, backend.GenerateSafeRouteFunction:
	default:
		return nil, ErrUnknownFunction
	}

	if !rt.limiter(userID).Allow() {
		return nil, ErrRateLimited
	}

	switch name {
	case backend.GenerateSosMessageFunction:
		request := backend.SosMessageRequest{}
		if err := decode(payload, &request); err != nil {
			return nil, err
		}

		message, err := rt.generator.SosMessage(ctx, request.BaseMessage)
		if err != nil {
			return nil, err
		}

		if strings.TrimSpace(message) == "" {
			return nil, fmt.Errorf("%v: generated message was empty", name)
		}

		return backend.SosMessageResponse{Message: message}, nil

	default:
		request := backend.SafeRouteRequest{}
		if err := decode(payload, &request); err != nil {
			return nil, err
		}

		if strings.TrimSpace(request.Start) == "" || strings.TrimSpace(request.End) == "" {
			return nil, fmt.Errorf("%w: start and end are required", ErrInvalidPayload)
		}

		description, err := rt.generator.SafeRoute(ctx, request.Start, request.End)
		if err != nil {
			return nil, err
		}

		return backend.SafeRouteResponse{Description: description}, nil
	}
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

func (rt *Runtime) limiter(userID string) *rate.Limiter {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	limiter, ok := rt.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(rt.limit, rt.burst)
		rt.limiters[userID] = limiter
	}

	return limiter
}

func decode(payload []byte, v interface{}) error {
	if len(payload) == 0 {
		return nil
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
