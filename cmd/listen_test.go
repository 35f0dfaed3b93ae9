package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenCmd(t *testing.T) {
	stub := setupTestEnv(t, alice)

	cmd := createListenCmd()
	buff := new(bytes.Buffer)
	cmd.SetOut(buff)
	cmd.SetErr(buff)
	cmd.SetArgs([]string{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool { return stub.ActiveSubscriptions() == 1 }, time.Second, 10*time.Millisecond)

	stub.EmitInsert(backend.SosAlertsTable, backend.SosAlert{
		ID:              "alert-1",
		SenderName:      "Bob",
		RecipientUserID: alice.UserID,
		Location:        backend.Location{Lat: 43.6532, Lon: -79.3832},
		Message:         "Help me Location: 43.6532, -79.3832",
		MediaURL:        "https://storage.googleapis.com/sentinel/recordings/clip.m4a",
	})

	// Alerts for someone else never reach this listener
	stub.EmitInsert(backend.SosAlertsTable, backend.SosAlert{
		ID:              "alert-2",
		SenderName:      "Mallory",
		RecipientUserID: "user-zed",
		Message:         "not for alice",
	})

	cancel()
	require.NoError(t, <-done)

	out := buff.String()
	assert.Contains(t, out, "Listening for sos alerts as Alice")
	assert.Contains(t, out, "Bob needs help")
	assert.Contains(t, out, "https://www.google.com/maps?q=43.6532,-79.3832")
	assert.Contains(t, out, "Recording: https://storage.googleapis.com/sentinel/recordings/clip.m4a")
	assert.NotContains(t, out, "Mallory")

	// The feed is released on exit
	assert.Equal(t, 0, stub.ActiveSubscriptions())
}

func TestListenCmdWhenFeedUnavailable(t *testing.T) {
	stub := setupTestEnv(t, alice)
	stub.SubscribeError = errors.New("connection refused")

	out, err := execute(createListenCmd())
	assert.Error(t, err)
	assert.Contains(t, out, "unable to listen for alerts")
}
