package realtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/logger"
	"github.com/google/uuid"
)

// SUBSCRIBER_BUFFER is how many events a slow subscriber may fall behind
// before new events are dropped for it
const SUBSCRIBER_BUFFER = 64

var logg = logger.Named("realtime")

type Subscription struct {
	ID     string
	Table  string
	Event  backend.EventType
	Filter backend.Filter

	events chan backend.ChangeEvent
	closed bool
}

// Events delivers matching changes in publish order until the subscription is removed
func (s *Subscription) Events() <-chan backend.ChangeEvent {
	return s.events
}

// Broker fans row changes out to the subscriptions whose table, event
// mask & equality filter match the changed row
type Broker struct {
	mu            sync.RWMutex
	subscriptions map[string]*Subscription
}

func NewBroker() *Broker {
	return &Broker{subscriptions: make(map[string]*Subscription)}
}

func (b *Broker) Subscribe(table string, event backend.EventType, filter backend.Filter) *Subscription {
	sub := &Subscription{
		ID:     uuid.NewString(),
		Table:  table,
		Event:  event,
		Filter: filter,
		events: make(chan backend.ChangeEvent, SUBSCRIBER_BUFFER),
	}

	b.mu.Lock()
	b.subscriptions[sub.ID] = sub
	b.mu.Unlock()

	logg.Debugf("subscription %v added for %v %v (%v)", sub.ID, event, table, filter)
	return sub
}

// Unsubscribe removes 'sub' & closes its event channel. Safe to call twice.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub.closed {
		return
	}
	sub.closed = true
	delete(b.subscriptions, sub.ID)
	close(sub.events)

	logg.Debugf("subscription %v removed", sub.ID)
}

// Count returns the number of live subscriptions
func (b *Broker) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Publish notifies subscribers of a change to a row of 'table'. For deletes
// 'newRow' is nil & the filter is matched against 'oldRow'.
func (b *Broker) Publish(table string, eventType backend.EventType, newRow interface{}, oldRow interface{}) error {
	event := backend.ChangeEvent{Table: table, Type: eventType}

	var err error
	if newRow != nil {
		if event.New, err = json.Marshal(newRow); err != nil {
			return fmt.Errorf("Publish: %v", err)
		}
	}
	if oldRow != nil {
		if event.Old, err = json.Marshal(oldRow); err != nil {
			return fmt.Errorf("Publish: %v", err)
		}
	}

	record := event.New
	if len(record) == 0 {
		record = event.Old
	}

	row := map[string]interface{}{}
	if err = json.Unmarshal(record, &row); err != nil {
		return fmt.Errorf("Publish: %v", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscriptions {
		if sub.Table != table || !sub.Event.Matches(eventType) || !rowMatches(row, sub.Filter) {
			continue
		}

		select {
		case sub.events <- event:
		default:
			logg.Warnf("subscription %v is not keeping up, dropped %v event on %v", sub.ID, eventType, table)
		}
	}

	return nil
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

func rowMatches(row map[string]interface{}, filter backend.Filter) bool {
	for column, value := range filter {
		if fmt.Sprint(row[column]) != value {
			return false
		}
	}
	return true
}
