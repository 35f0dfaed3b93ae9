package contacts

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/client/session"
	"github.com/Daskott/sentinel/logger"
	"github.com/go-playground/validator"
)

var logg = logger.Named("contacts")

var byNewest = &backend.Order{Column: "created_at", Ascending: false}

// Store is the signed in user's list of emergency contacts, newest first
type Store struct {
	gateway  backend.Gateway
	identity session.Identity
	validate *validator.Validate

	// OnChange is called with the refreshed list whenever a watched change lands
	OnChange func(contacts []backend.Contact)

	mu       sync.Mutex
	contacts []backend.Contact
	sub      backend.Subscription
}

func NewStore(gateway backend.Gateway, identity session.Identity) *Store {
	return &Store{
		gateway:  gateway,
		identity: identity,
		validate: validator.New(),
	}
}

func (s *Store) Refresh(ctx context.Context) error {
	contacts := []backend.Contact{}
	err := s.gateway.Select(ctx, backend.ContactsTable, s.owned(), byNewest, &contacts)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.contacts = contacts
	s.mu.Unlock()

	return nil
}

func (s *Store) Contacts() []backend.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.Contact{}, s.contacts...)
}

// Add registers a new emergency contact. 'phoneNumber' is optional and only
// used for sms fan-out & whatsapp links.
func (s *Store) Add(ctx context.Context, name, contactUserID, phoneNumber string) (backend.Contact, error) {
	contact := backend.Contact{
		UserID:        s.identity.UserID,
		Name:          strings.TrimSpace(name),
		ContactUserID: strings.TrimSpace(contactUserID),
		PhoneNumber:   strings.TrimSpace(phoneNumber),
	}

	if err := s.validate.Struct(contact); err != nil {
		return backend.Contact{}, fmt.Errorf("invalid contact: %v", err)
	}

	if contact.ContactUserID == s.identity.UserID {
		return backend.Contact{}, fmt.Errorf("invalid contact: you cannot add yourself")
	}

	if err := s.gateway.Insert(ctx, backend.ContactsTable, contact); err != nil {
		return backend.Contact{}, err
	}

	return contact, s.Refresh(ctx)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("contact id is required")
	}

	filter := s.owned()
	filter["id"] = id

	if err := s.gateway.Delete(ctx, backend.ContactsTable, filter); err != nil {
		return err
	}
	return s.Refresh(ctx)
}

// Watch keeps the list current by refreshing on every change to the user's contacts
func (s *Store) Watch(ctx context.Context) error {
	s.mu.Lock()
	if s.sub != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	sub, err := s.gateway.Subscribe(ctx, backend.ContactsTable, backend.AllEvents, s.owned(), func(event backend.ChangeEvent) {
		if err := s.Refresh(ctx); err != nil {
			logg.Errorf("refreshing contacts after %v: %v", event.Type, err)
			return
		}

		if s.OnChange != nil {
			s.OnChange(s.Contacts())
		}
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.sub != nil {
		// Another Watch won while subscribing
		s.mu.Unlock()
		return sub.Unsubscribe()
	}
	s.sub = sub
	s.mu.Unlock()

	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub == nil {
		return nil
	}
	return sub.Unsubscribe()
}

func (s *Store) owned() backend.Filter {
	return backend.Filter{"user_id": s.identity.UserID}
}
