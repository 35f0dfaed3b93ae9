package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Call is a single recorded GatewayStub operation
type Call struct {
	Op     string
	Target string
}

// GatewayStub is an in-memory Gateway for tests. Rows are kept as decoded
// json objects so any record type can be stored & filtered.
type GatewayStub struct {
	mu sync.Mutex

	tables map[string][]map[string]interface{}
	calls  []Call
	subs   []*stubSubscription

	InvokeResults map[string]interface{}
	InvokeErrors  map[string]error

	SelectError    error
	InsertError    error
	UpsertError    error
	DeleteError    error
	SubscribeError error
}

func NewGatewayStub() *GatewayStub {
	return &GatewayStub{
		tables:        make(map[string][]map[string]interface{}),
		InvokeResults: make(map[string]interface{}),
		InvokeErrors:  make(map[string]error),
	}
}

// Seed appends rows to 'table' without recording a call
func (g *GatewayStub) Seed(table string, rows interface{}) {
	g.mu.Lock()
	defer g.mu.Unlock()

	decoded, err := toRows(rows)
	if err != nil {
		panic(err)
	}
	g.tables[table] = append(g.tables[table], decoded...)
}

// Rows decodes every row currently in 'table' into 'dest'
func (g *GatewayStub) Rows(table string, dest interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return remarshal(g.tables[table], dest)
}

func (g *GatewayStub) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call{}, g.calls...)
}

// CallCount returns how many times 'op' was called, or every call for op == ""
func (g *GatewayStub) CallCount(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if op == "" {
		return len(g.calls)
	}

	count := 0
	for _, call := range g.calls {
		if call.Op == op {
			count++
		}
	}
	return count
}

// ActiveSubscriptions returns the number of subscriptions not yet released
func (g *GatewayStub) ActiveSubscriptions() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 0
	for _, sub := range g.subs {
		if !sub.released {
			count++
		}
	}
	return count
}

// Emit delivers 'event' synchronously to every active subscription that matches it
func (g *GatewayStub) Emit(event ChangeEvent) {
	g.mu.Lock()
	targets := []*stubSubscription{}
	for _, sub := range g.subs {
		if sub.matches(event) {
			targets = append(targets, sub)
		}
	}
	g.mu.Unlock()

	for _, sub := range targets {
		sub.onEvent(event)
	}
}

// EmitInsert marshals 'record' and emits it as an INSERT on 'table'
func (g *GatewayStub) EmitInsert(table string, record interface{}) {
	raw, err := json.Marshal(record)
	if err != nil {
		panic(err)
	}
	g.Emit(ChangeEvent{Table: table, Type: InsertEvent, New: raw})
}

// ---------------------------------------------------------------------------------//
// Gateway
// --------------------------------------------------------------------------------//

func (g *GatewayStub) Select(ctx context.Context, table string, filter Filter, order *Order, dest interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("select", table)

	if g.SelectError != nil {
		return &PersistenceError{Op: "select", Table: table, Err: g.SelectError}
	}

	rows := []map[string]interface{}{}
	for _, row := range g.tables[table] {
		if rowMatches(row, filter) {
			rows = append(rows, row)
		}
	}

	if order != nil {
		sort.SliceStable(rows, func(i, j int) bool {
			left, right := fmt.Sprint(rows[i][order.Column]), fmt.Sprint(rows[j][order.Column])
			if order.Ascending {
				return left < right
			}
			return left > right
		})
	}

	return remarshal(rows, dest)
}

func (g *GatewayStub) Insert(ctx context.Context, table string, rows interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("insert", table)

	if g.InsertError != nil {
		return &PersistenceError{Op: "insert", Table: table, Err: g.InsertError}
	}

	decoded, err := toRows(rows)
	if err != nil {
		return &PersistenceError{Op: "insert", Table: table, Err: err}
	}

	g.tables[table] = append(g.tables[table], decoded...)
	return nil
}

func (g *GatewayStub) Upsert(ctx context.Context, table string, row interface{}, conflictKey string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("upsert", table)

	if g.UpsertError != nil {
		return &PersistenceError{Op: "upsert", Table: table, Err: g.UpsertError}
	}

	decoded, err := toRows(row)
	if err != nil || len(decoded) != 1 {
		return &PersistenceError{Op: "upsert", Table: table, Err: fmt.Errorf("expected exactly one row: %v", err)}
	}

	key := fmt.Sprint(decoded[0][conflictKey])
	for i, existing := range g.tables[table] {
		if fmt.Sprint(existing[conflictKey]) == key {
			g.tables[table][i] = decoded[0]
			return nil
		}
	}

	g.tables[table] = append(g.tables[table], decoded[0])
	return nil
}

func (g *GatewayStub) Delete(ctx context.Context, table string, filter Filter) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("delete", table)

	if g.DeleteError != nil {
		return &PersistenceError{Op: "delete", Table: table, Err: g.DeleteError}
	}

	kept := []map[string]interface{}{}
	for _, row := range g.tables[table] {
		if !rowMatches(row, filter) {
			kept = append(kept, row)
		}
	}
	g.tables[table] = kept

	return nil
}

func (g *GatewayStub) Invoke(ctx context.Context, function string, payload interface{}, result interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("invoke", function)

	if err := g.InvokeErrors[function]; err != nil {
		return &RemoteInvocationError{Function: function, Err: err}
	}

	response, ok := g.InvokeResults[function]
	if !ok {
		return &RemoteInvocationError{Function: function, Err: fmt.Errorf("no stubbed result")}
	}

	return remarshal(response, result)
}

func (g *GatewayStub) Subscribe(ctx context.Context, table string, event EventType, filter Filter, onEvent func(ChangeEvent)) (Subscription, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.record("subscribe", table)

	if g.SubscribeError != nil {
		return nil, &SubscriptionError{Table: table, Filter: filter, Err: g.SubscribeError}
	}

	sub := &stubSubscription{gateway: g, table: table, event: event, filter: filter, onEvent: onEvent}
	g.subs = append(g.subs, sub)

	return sub, nil
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

func (g *GatewayStub) record(op, target string) {
	g.calls = append(g.calls, Call{Op: op, Target: target})
}

type stubSubscription struct {
	gateway  *GatewayStub
	table    string
	event    EventType
	filter   Filter
	onEvent  func(ChangeEvent)
	released bool
}

func (s *stubSubscription) Unsubscribe() error {
	s.gateway.mu.Lock()
	defer s.gateway.mu.Unlock()
	s.released = true
	return nil
}

func (s *stubSubscription) matches(event ChangeEvent) bool {
	if s.released || s.table != event.Table || !s.event.Matches(event.Type) {
		return false
	}

	record := event.New
	if len(record) == 0 {
		record = event.Old
	}

	row := map[string]interface{}{}
	if err := json.Unmarshal(record, &row); err != nil {
		return false
	}
	return rowMatches(row, s.filter)
}

func rowMatches(row map[string]interface{}, filter Filter) bool {
	for column, value := range filter {
		if fmt.Sprint(row[column]) != value {
			return false
		}
	}
	return true
}

// toRows turns a record or a slice of records into decoded json objects
func toRows(rows interface{}) ([]map[string]interface{}, error) {
	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}

	if len(raw) > 0 && raw[0] == '[' {
		decoded := []map[string]interface{}{}
		return decoded, json.Unmarshal(raw, &decoded)
	}

	decoded := map[string]interface{}{}
	if err = json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return []map[string]interface{}{decoded}, nil
}

func remarshal(from interface{}, to interface{}) error {
	if to == nil {
		return nil
	}

	raw, err := json.Marshal(from)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, to)
}
