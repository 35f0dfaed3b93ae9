package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Daskott/sentinel/client/backend"
)

var ErrSignedOut = errors.New("not signed in, run 'sentinel login' first")

// Identity is who the client acts as. It is passed explicitly into every
// component instead of being read from ambient state.
type Identity struct {
	UserID      string
	Name        string
	AccessToken string
}

func (id Identity) IsZero() bool {
	return id.UserID == "" || id.AccessToken == ""
}

// DisplayName is what contacts see as the sender of an alert
func (id Identity) DisplayName() string {
	if id.Name == "" {
		return "User"
	}
	return id.Name
}

type Authenticator interface {
	SignIn(ctx context.Context, credentials backend.Credentials) (*backend.Token, error)
	SignUp(ctx context.Context, request backend.SignUpRequest) (*backend.Account, error)
}

// Session holds the current identity & fans out identity changes to
// callbacks registered once at the application root.
type Session struct {
	mu        sync.RWMutex
	identity  Identity
	listeners []func(Identity)
}

func New(identity Identity) *Session {
	return &Session{identity: identity}
}

func (s *Session) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Require returns the current identity or ErrSignedOut
func (s *Session) Require() (Identity, error) {
	identity := s.Identity()
	if identity.IsZero() {
		return Identity{}, ErrSignedOut
	}
	return identity, nil
}

// OnChange registers 'fn' to be called after every identity change
func (s *Session) OnChange(fn func(Identity)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Set replaces the identity, listeners are only notified when it actually changed
func (s *Session) Set(identity Identity) {
	s.mu.Lock()
	if s.identity == identity {
		s.mu.Unlock()
		return
	}
	s.identity = identity
	listeners := append([]func(Identity){}, s.listeners...)
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(identity)
	}
}

func (s *Session) SignIn(ctx context.Context, auth Authenticator, credentials backend.Credentials) error {
	token, err := auth.SignIn(ctx, credentials)
	if err != nil {
		return err
	}

	if token.AccessToken == "" || token.User.ID == "" {
		return fmt.Errorf("sign in: backend returned an incomplete token")
	}

	s.Set(Identity{UserID: token.User.ID, Name: token.User.Name, AccessToken: token.AccessToken})
	return nil
}

// SignUp creates the account and signs into it
func (s *Session) SignUp(ctx context.Context, auth Authenticator, request backend.SignUpRequest) error {
	if _, err := auth.SignUp(ctx, request); err != nil {
		return err
	}
	return s.SignIn(ctx, auth, request.Credentials)
}

func (s *Session) SignOut() {
	s.Set(Identity{})
}
