package realtime

import (
	"net/http"
	"time"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/gorilla/websocket"
)

const (
	WRITE_TIMEOUT = 10 * time.Second
	PING_INTERVAL = 30 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// ServeWS upgrades the request & streams matching change events until the
// peer goes away. Authorization is the caller's job.
func (b *Broker) ServeWS(rw http.ResponseWriter, r *http.Request, table string, event backend.EventType, filter backend.Filter) {
	// Subscribed before the handshake completes so nothing published after the
	// client sees the 101 is missed, events wait in the buffer until the loop below
	sub := b.Subscribe(table, event, filter)
	defer b.Unsubscribe(sub)

	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		logg.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// The feed is one way; reading only notices the peer closing
	peerGone := make(chan struct{})
	go func() {
		defer close(peerGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(PING_INTERVAL)
	defer ticker.Stop()

	for {
		select {
		case <-peerGone:
			return
		case <-r.Context().Done():
			return
		case change, ok := <-sub.Events():
			if !ok {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(WRITE_TIMEOUT))
			if err := conn.WriteJSON(change); err != nil {
				logg.Debugf("subscription %v: write failed: %v", sub.ID, err)
				return
			}
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(WRITE_TIMEOUT))
			if err != nil {
				return
			}
		}
	}
}
