package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/client/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContactsCmd(t *testing.T) {
	cases := TestDataProvider{
		{
			description: "Should list contacts",
			args:        []string{"list"},
			expectedOut: "Bob",
		},
		{
			description: "Should NOT add a contact without an id",
			args:        []string{"add", "--name", "Dave"},
			expectedOut: "\"id\" not set",
		},
		{
			description: "Should NOT add yourself as a contact",
			args:        []string{"add", "--name", "Me", "--id", alice.UserID},
			expectedOut: "you cannot add yourself",
		},
		{
			description: "Should NOT add a contact with an invalid phone number",
			args:        []string{"add", "--name", "Dave", "--id", "user-dave", "--phone", "416-555"},
			expectedOut: "invalid contact",
		},
		{
			description: "Should add a contact",
			args:        []string{"add", "--name", "Dave", "--id", "user-dave", "--phone", "+14165550100"},
			expectedOut: "Dave will be alerted",
		},
		{
			description: "Should NOT delete without a contact id",
			args:        []string{"delete"},
			expectedOut: "accepts 1 arg(s)",
		},
		{
			description: "Should delete a contact",
			args:        []string{"delete", bob.ID},
			expectedOut: "Contact removed",
		},
	}

	for _, c := range cases {
		t.Run(c.description, func(t *testing.T) {
			stub := setupTestEnv(t, alice)
			stub.Seed(backend.ContactsTable, []backend.Contact{bob})

			out, _ := execute(createContactsCmd(), c.args...)
			assert.Contains(t, out, c.expectedOut)
		})
	}
}

func TestContactsCmdRequiresSession(t *testing.T) {
	setupTestEnv(t, session.Identity{})

	out, err := execute(createContactsCmd(), "list")
	assert.Error(t, err)
	assert.Contains(t, out, "not signed in")
}

func TestContactsListOnlyShowsOwnContacts(t *testing.T) {
	stub := setupTestEnv(t, alice)
	stub.Seed(backend.ContactsTable, []backend.Contact{
		bob,
		{ID: "contact-9", UserID: "user-zed", Name: "Yara", ContactUserID: "user-yara"},
	})

	out, err := execute(createContactsCmd(), "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Bob")
	assert.NotContains(t, out, "Yara")
}

func TestContactsListEmpty(t *testing.T) {
	setupTestEnv(t, alice)

	out, err := execute(createContactsCmd(), "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no emergency contacts yet")
}

func TestContactsAddStoresContact(t *testing.T) {
	stub := setupTestEnv(t, alice)

	_, err := execute(createContactsCmd(), "add", "--name", " Dave ", "--id", "user-dave")
	require.NoError(t, err)

	rows := []backend.Contact{}
	require.NoError(t, stub.Rows(backend.ContactsTable, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Dave", rows[0].Name)
	assert.Equal(t, alice.UserID, rows[0].UserID)
	assert.Equal(t, "user-dave", rows[0].ContactUserID)
}

func TestContactsDeleteFailure(t *testing.T) {
	stub := setupTestEnv(t, alice)
	stub.DeleteError = errors.New("database is locked")

	out, err := execute(createContactsCmd(), "delete", bob.ID)
	assert.Error(t, err)
	assert.Contains(t, out, "unable to delete contact")
}

func TestContactsListWatch(t *testing.T) {
	stub := setupTestEnv(t, alice)
	stub.Seed(backend.ContactsTable, []backend.Contact{bob})

	cmd := createContactsCmd()
	buff := new(bytes.Buffer)
	cmd.SetOut(buff)
	cmd.SetErr(buff)
	cmd.SetArgs([]string{"list", "--watch"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool { return stub.ActiveSubscriptions() == 1 }, time.Second, 10*time.Millisecond)

	stub.Seed(backend.ContactsTable, []backend.Contact{carol})
	stub.EmitInsert(backend.ContactsTable, carol)

	cancel()
	require.NoError(t, <-done)

	out := buff.String()
	assert.Contains(t, out, "contacts changed")
	assert.Contains(t, out, "Carol")
	assert.Equal(t, 0, stub.ActiveSubscriptions())
}
