package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Filter narrows rows by column equality i.e. {"user_id": "42"} == "user_id=eq.42"
type Filter map[string]string

// Encode writes the filter in its query form, sorted by column so the output is stable
func (f Filter) Encode(values url.Values) {
	columns := make([]string, 0, len(f))
	for column := range f {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	for _, column := range columns {
		values.Set(column, "eq."+f[column])
	}
}

// String returns the filter as used by change-feed subscriptions e.g. "recipient_user_id=eq.42"
func (f Filter) String() string {
	parts := make([]string, 0, len(f))
	for column, value := range f {
		parts = append(parts, column+"=eq."+value)
	}
	sort.Strings(parts)

	return strings.Join(parts, ",")
}

// ParseFilter is the inverse of Filter.String
func ParseFilter(raw string) (Filter, error) {
	filter := Filter{}
	if strings.TrimSpace(raw) == "" {
		return filter, nil
	}

	for _, part := range strings.Split(raw, ",") {
		segments := strings.SplitN(part, "=eq.", 2)
		if len(segments) != 2 || segments[0] == "" {
			return nil, fmt.Errorf("invalid filter %q, expected <column>=eq.<value>", part)
		}
		filter[segments[0]] = segments[1]
	}

	return filter, nil
}

type Order struct {
	Column    string
	Ascending bool
}

func (o Order) String() string {
	direction := "desc"
	if o.Ascending {
		direction = "asc"
	}
	return o.Column + "." + direction
}

type EventType string

const (
	InsertEvent EventType = "INSERT"
	UpdateEvent EventType = "UPDATE"
	DeleteEvent EventType = "DELETE"
	AllEvents   EventType = "*"
)

// Matches reports whether an event of type 'other' is covered by this event mask
func (e EventType) Matches(other EventType) bool {
	return e == AllEvents || e == other
}

// ChangeEvent is a single row-level change pushed by the change feed
type ChangeEvent struct {
	Table string          `json:"table"`
	Type  EventType       `json:"type"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// Decode unmarshals the new version of the row into 'v'
func (e ChangeEvent) Decode(v interface{}) error {
	if len(e.New) == 0 {
		return fmt.Errorf("%s event on %s carries no new record", e.Type, e.Table)
	}
	return json.Unmarshal(e.New, v)
}

type Subscription interface {
	Unsubscribe() error
}

// Gateway is everything the client needs from the managed backend
type Gateway interface {
	Select(ctx context.Context, table string, filter Filter, order *Order, dest interface{}) error
	Insert(ctx context.Context, table string, rows interface{}) error
	Upsert(ctx context.Context, table string, row interface{}, conflictKey string) error
	Delete(ctx context.Context, table string, filter Filter) error
	Invoke(ctx context.Context, function string, payload interface{}, result interface{}) error
	Subscribe(ctx context.Context, table string, event EventType, filter Filter, onEvent func(ChangeEvent)) (Subscription, error)
}
