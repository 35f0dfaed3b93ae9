package settings

import (
	"context"
	"sync"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/client/session"
)

// Settings is the user's saved pre-written sos message. SetMessage only
// edits the local draft, Save persists it.
type Settings struct {
	gateway  backend.Gateway
	identity session.Identity

	mu      sync.RWMutex
	message string
}

func New(gateway backend.Gateway, identity session.Identity) *Settings {
	return &Settings{gateway: gateway, identity: identity}
}

// Load fetches the saved message, a user without settings gets an empty one
func (s *Settings) Load(ctx context.Context) error {
	rows := []backend.UserSettings{}
	err := s.gateway.Select(ctx, backend.UserSettingsTable, backend.Filter{"user_id": s.identity.UserID}, nil, &rows)
	if err != nil {
		return err
	}

	message := ""
	if len(rows) > 0 {
		message = rows[0].PrewrittenMessage
	}

	s.mu.Lock()
	s.message = message
	s.mu.Unlock()

	return nil
}

// Message implements sos.MessageSource
func (s *Settings) Message() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.message
}

func (s *Settings) SetMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// Save upserts on user_id so a user never has more than one settings row
func (s *Settings) Save(ctx context.Context) error {
	row := backend.UserSettings{UserID: s.identity.UserID, PrewrittenMessage: s.Message()}
	return s.gateway.Upsert(ctx, backend.UserSettingsTable, row, "user_id")
}
