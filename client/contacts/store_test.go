package contacts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/client/session"
	"github.com/stretchr/testify/assert"
)

var me = session.Identity{UserID: "me", Name: "Jane", AccessToken: "token"}

func at(day int) *time.Time {
	t := time.Date(2022, 1, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestRefreshListsOwnContactsNewestFirst(t *testing.T) {
	gateway := backend.NewGatewayStub()
	gateway.Seed(backend.ContactsTable, []backend.Contact{
		{ID: "1", UserID: "me", Name: "Old", ContactUserID: "a", CreatedAt: at(1)},
		{ID: "2", UserID: "me", Name: "New", ContactUserID: "b", CreatedAt: at(3)},
		{ID: "3", UserID: "other", Name: "Theirs", ContactUserID: "c", CreatedAt: at(2)},
	})
	store := NewStore(gateway, me)

	assert.Nil(t, store.Refresh(context.Background()))

	contacts := store.Contacts()
	assert.Len(t, contacts, 2)
	assert.Equal(t, "New", contacts[0].Name)
	assert.Equal(t, "Old", contacts[1].Name)
}

func TestAdd(t *testing.T) {
	gateway := backend.NewGatewayStub()
	store := NewStore(gateway, me)

	contact, err := store.Add(context.Background(), " Sam ", "sam-id", "+14165550100")

	assert.Nil(t, err)
	assert.Equal(t, "Sam", contact.Name)
	assert.Equal(t, "me", contact.UserID)
	assert.Len(t, store.Contacts(), 1)
}

func TestAddValidatesInput(t *testing.T) {
	testCases := []struct {
		name          string
		contactName   string
		contactUserID string
		phone         string
	}{
		{name: "missing name", contactName: "", contactUserID: "sam-id"},
		{name: "missing user id", contactName: "Sam", contactUserID: "  "},
		{name: "bad phone number", contactName: "Sam", contactUserID: "sam-id", phone: "416-555"},
		{name: "self", contactName: "Me", contactUserID: "me"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gateway := backend.NewGatewayStub()
			store := NewStore(gateway, me)

			_, err := store.Add(context.Background(), tc.contactName, tc.contactUserID, tc.phone)

			assert.NotNil(t, err)
			assert.Equal(t, 0, gateway.CallCount("insert"))
		})
	}
}

func TestDeleteOnlyTouchesOwnRows(t *testing.T) {
	gateway := backend.NewGatewayStub()
	gateway.Seed(backend.ContactsTable, []backend.Contact{
		{ID: "1", UserID: "me", Name: "Sam", ContactUserID: "a"},
		{ID: "1", UserID: "other", Name: "Theirs", ContactUserID: "b"},
	})
	store := NewStore(gateway, me)

	assert.Nil(t, store.Delete(context.Background(), "1"))
	assert.Empty(t, store.Contacts())

	remaining := []backend.Contact{}
	assert.Nil(t, gateway.Rows(backend.ContactsTable, &remaining))
	assert.Len(t, remaining, 1)
	assert.Equal(t, "other", remaining[0].UserID)

	assert.NotNil(t, store.Delete(context.Background(), ""))
}

func TestWatchRefreshesOnChange(t *testing.T) {
	gateway := backend.NewGatewayStub()
	store := NewStore(gateway, me)

	changes := 0
	store.OnChange = func(contacts []backend.Contact) { changes++ }
	assert.Nil(t, store.Watch(context.Background()))

	added := backend.Contact{ID: "9", UserID: "me", Name: "Sam", ContactUserID: "a"}
	gateway.Seed(backend.ContactsTable, added)
	gateway.EmitInsert(backend.ContactsTable, added)

	assert.Equal(t, 1, changes)
	assert.Len(t, store.Contacts(), 1)

	// Changes to someone else's contacts are filtered out by the feed
	gateway.EmitInsert(backend.ContactsTable, backend.Contact{ID: "10", UserID: "other", Name: "X", ContactUserID: "x"})
	assert.Equal(t, 1, changes)

	assert.Nil(t, store.Close())
	assert.Equal(t, 0, gateway.ActiveSubscriptions())
}

// heldGateway parks every Subscribe until release is closed
type heldGateway struct {
	*backend.GatewayStub
	arrived chan struct{}
	release chan struct{}
}

func (g *heldGateway) Subscribe(ctx context.Context, table string, event backend.EventType, filter backend.Filter, onEvent func(backend.ChangeEvent)) (backend.Subscription, error) {
	g.arrived <- struct{}{}
	<-g.release
	return g.GatewayStub.Subscribe(ctx, table, event, filter, onEvent)
}

func TestConcurrentWatchKeepsOneFeed(t *testing.T) {
	gateway := &heldGateway{
		GatewayStub: backend.NewGatewayStub(),
		arrived:     make(chan struct{}, 2),
		release:     make(chan struct{}),
	}
	store := NewStore(gateway, me)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.Watch(context.Background())
		}()
	}

	// Both calls are past the first check before either subscription lands
	<-gateway.arrived
	<-gateway.arrived
	close(gateway.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.Nil(t, err)
	}
	assert.Equal(t, 1, gateway.ActiveSubscriptions())

	assert.Nil(t, store.Close())
	assert.Equal(t, 0, gateway.ActiveSubscriptions())
}
