package alerts

import (
	"context"
	"fmt"
	"sync"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/client/session"
	"github.com/Daskott/sentinel/logger"
)

var logg = logger.Named("alerts")

// Listener shows incoming sos alerts addressed to the current identity.
// It holds a single slot, a newer alert replaces the one on display.
type Listener struct {
	gateway backend.Gateway

	// OnAlert is called with every alert that replaces the current one.
	// Set it before Activate.
	OnAlert func(alert backend.SosAlert)

	mu       sync.Mutex
	identity session.Identity
	sub      backend.Subscription
	current  *backend.SosAlert

	// generation is bumped on every release so events from a released
	// subscription still in flight are dropped
	generation uint64
}

func NewListener(gateway backend.Gateway, identity session.Identity) *Listener {
	return &Listener{gateway: gateway, identity: identity}
}

// Activate opens the change feed for alerts addressed to the current identity.
// On failure the listener stays inert and the error is returned for diagnostics.
func (l *Listener) Activate(ctx context.Context) error {
	l.mu.Lock()
	if l.sub != nil {
		l.mu.Unlock()
		return nil
	}
	identity := l.identity
	generation := l.generation
	l.mu.Unlock()

	if identity.UserID == "" {
		return fmt.Errorf("alerts: %v", session.ErrSignedOut)
	}

	filter := backend.Filter{"recipient_user_id": identity.UserID}
	sub, err := l.gateway.Subscribe(ctx, backend.SosAlertsTable, backend.InsertEvent, filter,
		func(event backend.ChangeEvent) { l.receive(generation, event) })
	if err != nil {
		logg.Errorf("unable to listen for alerts, none will be shown: %v", err)
		return err
	}

	l.mu.Lock()
	if l.generation != generation || l.sub != nil {
		// Released or activated elsewhere while subscribing
		l.mu.Unlock()
		return sub.Unsubscribe()
	}
	l.sub = sub
	l.mu.Unlock()

	logg.Debugf("listening for alerts to %v", identity.UserID)
	return nil
}

// Deactivate releases the change feed. Calling it more than once is safe.
func (l *Listener) Deactivate() error {
	l.mu.Lock()
	sub := l.sub
	l.sub = nil
	l.current = nil
	l.generation++
	l.mu.Unlock()

	if sub == nil {
		return nil
	}

	logg.Debug("alert feed released")
	return sub.Unsubscribe()
}

// Run holds the feed until 'ctx' is done, it is released on every exit path
func (l *Listener) Run(ctx context.Context) error {
	defer l.Deactivate()

	if err := l.Activate(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

// SwitchIdentity tears down the feed of the previous identity and listens
// under the new one. A zero identity leaves the listener released.
func (l *Listener) SwitchIdentity(ctx context.Context, identity session.Identity) error {
	if err := l.Deactivate(); err != nil {
		logg.Warnf("releasing alert feed: %v", err)
	}

	l.mu.Lock()
	l.identity = identity
	l.mu.Unlock()

	if identity.UserID == "" {
		return nil
	}
	return l.Activate(ctx)
}

func (l *Listener) Current() *backend.SosAlert {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		return nil
	}
	alert := *l.current
	return &alert
}

// Dismiss clears the displayed alert, the feed stays open
func (l *Listener) Dismiss() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = nil
}

func (l *Listener) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sub != nil
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

func (l *Listener) receive(generation uint64, event backend.ChangeEvent) {
	alert := backend.SosAlert{}
	if err := event.Decode(&alert); err != nil {
		logg.Warnf("ignoring malformed alert: %v", err)
		return
	}

	l.mu.Lock()
	if l.generation != generation {
		l.mu.Unlock()
		return
	}
	l.current = &alert
	onAlert := l.OnAlert
	l.mu.Unlock()

	if onAlert != nil {
		onAlert(alert)
	}
}
