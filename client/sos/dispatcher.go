package sos

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/client/location"
	"github.com/Daskott/sentinel/client/session"
	"github.com/Daskott/sentinel/logger"
	"go.uber.org/zap"
)

// DebounceWindow is how long a first tap waits for a second one before
// the preset message is sent
const DebounceWindow = 300 * time.Millisecond

type TapState int

const (
	Idle TapState = iota
	Armed
	Fired
)

func (s TapState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Fired:
		return "fired"
	}
	return fmt.Sprintf("TapState(%d)", int(s))
}

// MessageSource supplies the saved pre-written message at dispatch time
type MessageSource interface {
	Message() string
}

// StaticMessage is a MessageSource that never changes
type StaticMessage string

func (m StaticMessage) Message() string { return string(m) }

// Reporter surfaces the outcome of every dispatch to the user
type Reporter interface {
	Sent(dispatch Dispatch)
	Failed(err error)
}

// Dispatch is a completed sos
type Dispatch struct {
	Message    string
	Location   backend.Location
	UsedAI     bool
	Recipients int
	MediaURL   string
}

// State is a snapshot of the dispatcher's transient ui state
type State struct {
	TapCount            int
	Sending             bool
	ConfirmationVisible bool
	LastDispatch        *Dispatch
}

type Options struct {
	Gateway  backend.Gateway
	Locator  location.Provider
	Messages MessageSource
	Identity session.Identity
	Reporter Reporter

	// Optional
	Clock    Clock
	MediaURL string
}

// Dispatcher turns taps on the sos control into dispatches:
// one tap sends the preset message, two taps within DebounceWindow
// send an AI elaborated one.
type Dispatcher struct {
	gateway  backend.Gateway
	locator  location.Provider
	messages MessageSource
	identity session.Identity
	reporter Reporter
	clock    Clock
	mediaURL string
	logg     *zap.SugaredLogger

	// spawn runs a dispatch off the caller's goroutine
	spawn func(func())

	mu                  sync.Mutex
	state               TapState
	sending             bool
	confirmationVisible bool
	lastDispatch        *Dispatch
	pending             Timer
	generation          uint64
	closed              bool
}

func NewDispatcher(opts Options) *Dispatcher {
	clock := opts.Clock
	if clock == nil {
		clock = realClock{}
	}

	messages := opts.Messages
	if messages == nil {
		messages = StaticMessage("")
	}

	return &Dispatcher{
		gateway:  opts.Gateway,
		locator:  opts.Locator,
		messages: messages,
		identity: opts.Identity,
		reporter: opts.Reporter,
		clock:    clock,
		mediaURL: opts.MediaURL,
		logg:     logger.Named("sos"),
		spawn:    func(f func()) { go f() },
	}
}

// RegisterTap records one activation of the sos control. It returns false
// when the tap was ignored because a dispatch is in flight.
func (d *Dispatcher) RegisterTap() bool {
	d.mu.Lock()

	if d.sending || d.closed {
		d.mu.Unlock()
		d.logg.Debug("tap ignored, dispatch in progress")
		return false
	}

	switch d.state {
	case Idle:
		d.state = Armed
		d.generation++
		generation := d.generation
		d.pending = d.clock.AfterFunc(DebounceWindow, func() { d.windowElapsed(generation) })
		d.mu.Unlock()

		d.logg.Debugf("armed, waiting %v for a second tap", DebounceWindow)
		return true

	case Armed:
		if d.pending != nil {
			d.pending.Stop()
			d.pending = nil
		}

		// Bumping the generation turns a timer that already fired, but has
		// not taken the lock yet, into a no-op
		d.generation++
		d.state = Fired
		d.sending = true
		d.mu.Unlock()

		d.logg.Debug("second tap, sending ai elaborated sos")
		d.spawn(func() { d.run(true) })
		return true
	}

	d.mu.Unlock()
	return false
}

// Dispatch runs one complete sos attempt & reports the outcome. Steps are
// strictly sequential and the first failure ends the attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, useAI bool) (*Dispatch, error) {
	d.mu.Lock()
	if d.sending {
		d.mu.Unlock()
		return nil, ErrDispatchActive
	}
	d.sending = true
	d.mu.Unlock()

	return d.dispatch(ctx, useAI)
}

func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()

	state := State{
		TapCount:            int(d.state),
		Sending:             d.sending,
		ConfirmationVisible: d.confirmationVisible,
	}
	if d.lastDispatch != nil {
		last := *d.lastDispatch
		state.LastDispatch = &last
	}

	return state
}

func (d *Dispatcher) DismissConfirmation() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.confirmationVisible = false
}

// Close cancels a pending debounce timer. An in-flight dispatch is not
// cancelled and runs to completion.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
	d.generation++
	d.state = Idle
	d.closed = true
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

func (d *Dispatcher) windowElapsed(generation uint64) {
	d.mu.Lock()
	if d.closed || d.state != Armed || d.generation != generation {
		d.mu.Unlock()
		return
	}

	d.pending = nil
	d.state = Idle
	d.sending = true
	d.mu.Unlock()

	d.logg.Debug("no second tap, sending preset sos")
	d.spawn(func() { d.run(false) })
}

func (d *Dispatcher) run(useAI bool) {
	d.mu.Lock()
	d.state = Idle
	d.mu.Unlock()

	d.dispatch(context.Background(), useAI)
}

func (d *Dispatcher) dispatch(ctx context.Context, useAI bool) (*Dispatch, error) {
	result, err := d.send(ctx, useAI)

	d.mu.Lock()
	d.sending = false
	if err == nil {
		d.lastDispatch = result
		d.confirmationVisible = true
	}
	d.mu.Unlock()

	if err != nil {
		d.logg.Errorf("sos failed: %v", err)
		if d.reporter != nil {
			d.reporter.Failed(err)
		}
		return nil, err
	}

	d.logg.Infof("sos sent to %v contact(s)", result.Recipients)
	if d.reporter != nil {
		d.reporter.Sent(*result)
	}

	copied := *result
	return &copied, nil
}

func (d *Dispatcher) send(ctx context.Context, useAI bool) (*Dispatch, error) {
	position, err := d.locator.CurrentPosition(ctx)
	if err != nil {
		return nil, asLocationError(err)
	}

	message := d.messages.Message()
	if useAI {
		response := backend.SosMessageResponse{}
		err = d.gateway.Invoke(ctx, backend.GenerateSosMessageFunction,
			backend.SosMessageRequest{BaseMessage: message}, &response)
		if err != nil {
			return nil, asRemoteInvocationError(backend.GenerateSosMessageFunction, err)
		}

		if strings.TrimSpace(response.Message) == "" {
			return nil, asRemoteInvocationError(backend.GenerateSosMessageFunction, ErrEmptyAIMessage)
		}

		// Only this dispatch uses the generated text, the saved message is untouched
		message = response.Message
	}

	contacts := []backend.Contact{}
	err = d.gateway.Select(ctx, backend.ContactsTable,
		backend.Filter{"user_id": d.identity.UserID}, nil, &contacts)
	if err != nil {
		return nil, asPersistenceError("select", backend.ContactsTable, err)
	}

	if len(contacts) == 0 {
		return nil, ErrNoContacts
	}

	// One batch write; if it fails part way, contacts already notified by the
	// backend are not rolled back
	alerts := BuildAlerts(d.identity, contacts, message, position, d.mediaURL)
	err = d.gateway.Insert(ctx, backend.SosAlertsTable, alerts)
	if err != nil {
		return nil, asPersistenceError("insert", backend.SosAlertsTable, err)
	}

	return &Dispatch{
		Message:    message,
		Location:   position,
		UsedAI:     useAI,
		Recipients: len(alerts),
		MediaURL:   d.mediaURL,
	}, nil
}
