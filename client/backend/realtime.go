package backend

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Subscribe opens a change feed over a websocket. 'onEvent' is called from the
// feed's own goroutine, in delivery order. The feed is released by Unsubscribe
// or when 'ctx' is done, whichever comes first.
func (c *Client) Subscribe(ctx context.Context, table string, event EventType, filter Filter, onEvent func(ChangeEvent)) (Subscription, error) {
	query := url.Values{}
	query.Set("table", table)
	query.Set("event", string(event))
	query.Set("filter", filter.String())

	feedURL := c.endpoint(realtimePath, query)
	feedURL = "ws" + feedURL[len("http"):]

	header := http.Header{}
	c.authorize(header)

	conn, resp, err := c.dialer.DialContext(ctx, feedURL, header)
	if err != nil {
		if resp != nil {
			err = errors.Wrapf(err, "handshake status %d", resp.StatusCode)
		}
		return nil, &SubscriptionError{Table: table, Filter: filter, Err: err}
	}

	sub := &feedSubscription{
		table: table,
		conn:  conn,
		done:  make(chan struct{}),
	}

	go sub.listen(onEvent)
	go func() {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
		case <-sub.done:
		}
	}()

	logg.Debugf("subscribed to %s %s (%s)", event, table, filter)
	return sub, nil
}

type feedSubscription struct {
	table   string
	conn    *websocket.Conn
	done    chan struct{}
	closing atomic.Bool
	once    sync.Once
}

func (s *feedSubscription) listen(onEvent func(ChangeEvent)) {
	defer close(s.done)

	for {
		event := ChangeEvent{}
		if err := s.conn.ReadJSON(&event); err != nil {
			if !s.closing.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				logg.Warnf("change feed on %s closed: %v", s.table, err)
			}
			return
		}

		onEvent(event)
	}
}

// Unsubscribe closes the feed and waits for its listener to exit, so no event
// is delivered after it returns. It must not be called from inside onEvent.
func (s *feedSubscription) Unsubscribe() error {
	var err error

	s.once.Do(func() {
		s.closing.Store(true)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
		<-s.done
		logg.Debugf("unsubscribed from %s", s.table)
	})

	return err
}
