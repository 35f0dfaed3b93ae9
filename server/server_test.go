package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/server/auth"
	"github.com/Daskott/sentinel/server/functions"
	"github.com/Daskott/sentinel/server/models"
	"github.com/Daskott/sentinel/shared"
	"github.com/stretchr/testify/assert"
	"golang.org/x/crypto/bcrypt"
)

type sentSms struct {
	to   string
	body string
}

type messengerStub struct {
	mu   sync.Mutex
	sent []sentSms
	err  error
}

func (m *messengerStub) SendMessage(to, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentSms{to: to, body: msg})
	return nil
}

func (m *messengerStub) messages() []sentSms {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentSms{}, m.sent...)
}

type storeStub struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *storeStub) UploadFile(bucket, prefix, filePath string) error { return nil }

func (s *storeStub) DownloadFile(bucket, object string, destFileName string) error {
	return errors.New("not implemented")
}

func (s *storeStub) UploadObject(ctx context.Context, bucket, object string, content io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[object] = data
	return "https://storage.example.com/" + bucket + "/" + object, nil
}

type rejectAll struct{}

func (rejectAll) ValidateRequest(path string, urlValues url.Values, expectedSignature string) bool {
	return false
}

type testEnv struct {
	server    *Server
	http      *httptest.Server
	messenger *messengerStub
	store     *storeStub
}

func testPrivateKeyPem(t *testing.T) string {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	assert.Nil(t, err)

	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}))
}

func testConfig(t *testing.T) shared.ServerConfig {
	return shared.ServerConfig{
		Sqlite: shared.SqliteConfig{PassPhrase: "test-passphrase"},
		Sentinel: shared.SentinelConfig{
			PrivateKeyPem: testPrivateKeyPem(t),
			Cron:          shared.CronConfig{TimeZone: "UTC"},
			Listener:      shared.ListenerConfig{Port: 3000},
		},
		Google: shared.GoogleConfig{
			Storage: shared.StorageConfig{
				Bucket:           "sentinel",
				RecordingsPrefix: "recordings",
				EnableRecordings: true,
			},
		},
		Alerts: shared.AlertsConfig{RetentionDays: 30},
	}
}

func newTestEnv(t *testing.T, deps Dependencies) *testEnv {
	models.InitializeTestDb()
	auth.PasswordHashCost = bcrypt.MinCost

	env := &testEnv{
		messenger: &messengerStub{},
		store:     &storeStub{objects: map[string][]byte{}},
	}
	if deps.Messenger == nil {
		deps.Messenger = env.messenger
	}
	if deps.Storage == nil {
		deps.Storage = env.store
	}
	if deps.Generator == nil {
		deps.Generator = functions.TemplateGenerator{}
	}

	s, err := New(testConfig(t), true, deps)
	assert.Nil(t, err)

	env.server = s
	env.http = httptest.NewServer(s.Handler())
	t.Cleanup(env.http.Close)

	return env
}

func (env *testEnv) client(t *testing.T) *backend.Client {
	client, err := backend.NewClient(env.http.URL)
	assert.Nil(t, err)
	return client
}

// signUp creates an account & returns a client signed in as it
func (env *testEnv) signUp(t *testing.T, name, email, phone string) (*backend.Client, backend.Account) {
	ctx := context.Background()
	client := env.client(t)

	_, err := client.SignUp(ctx, backend.SignUpRequest{
		Credentials: backend.Credentials{Email: email, Password: "correct-horse"},
		Name:        name,
		PhoneNumber: phone,
	})
	assert.Nil(t, err)

	token, err := client.SignIn(ctx, backend.Credentials{Email: email, Password: "correct-horse"})
	assert.Nil(t, err)
	client.SetAccessToken(token.AccessToken)

	return client, token.User
}

func apiStatus(err error) int {
	apiErr := &backend.APIError{}
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func TestSignUpAndSignIn(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	client := env.client(t)

	account, err := client.SignUp(ctx, backend.SignUpRequest{
		Credentials: backend.Credentials{Email: " Jane@Example.com", Password: "correct-horse"},
		Name:        "Jane",
	})
	assert.Nil(t, err)
	assert.NotEmpty(t, account.ID)
	assert.Equal(t, "jane@example.com", account.Email)

	_, err = client.SignUp(ctx, backend.SignUpRequest{
		Credentials: backend.Credentials{Email: "jane@example.com", Password: "correct-horse"},
		Name:        "Jane",
	})
	assert.Equal(t, http.StatusConflict, apiStatus(err))

	_, err = client.SignUp(ctx, backend.SignUpRequest{
		Credentials: backend.Credentials{Email: "bob@example.com", Password: "short"},
		Name:        "Bob",
	})
	assert.Equal(t, http.StatusBadRequest, apiStatus(err))

	_, err = client.SignIn(ctx, backend.Credentials{Email: "jane@example.com", Password: "wrong-horse"})
	assert.Equal(t, http.StatusUnauthorized, apiStatus(err))

	_, err = client.CurrentAccount(ctx)
	assert.Equal(t, http.StatusUnauthorized, apiStatus(err))

	token, err := client.SignIn(ctx, backend.Credentials{Email: "jane@example.com", Password: "correct-horse"})
	assert.Nil(t, err)
	assert.Equal(t, account.ID, token.User.ID)
	assert.Greater(t, token.ExpiresAt, time.Now().Unix())

	client.SetAccessToken(token.AccessToken)
	me, err := client.CurrentAccount(ctx)
	assert.Nil(t, err)
	assert.Equal(t, "Jane", me.Name)
}

func TestContactsAreScopedToCaller(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()

	jane, janeAccount := env.signUp(t, "Jane", "jane@example.com", "")
	bob, bobAccount := env.signUp(t, "Bob", "bob@example.com", "+15555550100")

	err := jane.Insert(ctx, backend.ContactsTable, backend.Contact{
		Name:          "Bob",
		ContactUserID: bobAccount.ID,
		// ignored, rows always belong to the caller
		UserID: bobAccount.ID,
	})
	assert.Nil(t, err)

	contacts := []backend.Contact{}
	err = jane.Select(ctx, backend.ContactsTable, backend.Filter{"user_id": janeAccount.ID},
		&backend.Order{Column: "created_at"}, &contacts)
	assert.Nil(t, err)
	assert.Len(t, contacts, 1)
	assert.Equal(t, janeAccount.ID, contacts[0].UserID)
	assert.Equal(t, bobAccount.ID, contacts[0].ContactUserID)

	// Bob can't read or delete jane's contacts
	err = bob.Select(ctx, backend.ContactsTable, backend.Filter{"user_id": janeAccount.ID}, nil, &contacts)
	assert.Nil(t, err)
	assert.Empty(t, contacts)

	err = bob.Delete(ctx, backend.ContactsTable, backend.Filter{"user_id": janeAccount.ID})
	assert.Nil(t, err)

	err = jane.Select(ctx, backend.ContactsTable, nil, nil, &contacts)
	assert.Nil(t, err)
	assert.Len(t, contacts, 1)

	err = jane.Delete(ctx, backend.ContactsTable, backend.Filter{"id": contacts[0].ID})
	assert.Nil(t, err)

	err = jane.Select(ctx, backend.ContactsTable, nil, nil, &contacts)
	assert.Nil(t, err)
	assert.Empty(t, contacts)
}

func TestInsertContactValidation(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	jane, janeAccount := env.signUp(t, "Jane", "jane@example.com", "")

	err := jane.Insert(ctx, backend.ContactsTable, backend.Contact{Name: "Me", ContactUserID: janeAccount.ID})
	assert.Equal(t, http.StatusBadRequest, apiStatus(err))

	err = jane.Insert(ctx, backend.ContactsTable, backend.Contact{Name: "Bob", ContactUserID: "bob", PhoneNumber: "555-0100"})
	assert.Equal(t, http.StatusBadRequest, apiStatus(err))

	err = jane.Insert(ctx, backend.ContactsTable, backend.Contact{Name: " ", ContactUserID: "bob"})
	assert.Equal(t, http.StatusBadRequest, apiStatus(err))

	err = jane.Select(ctx, backend.ContactsTable, backend.Filter{"nickname": "bob"}, nil, &[]backend.Contact{})
	assert.Equal(t, http.StatusBadRequest, apiStatus(err))

	err = jane.Select(ctx, "users", nil, nil, &[]backend.Contact{})
	assert.Equal(t, http.StatusNotFound, apiStatus(err))
}

func TestUserSettingsUpsert(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	jane, janeAccount := env.signUp(t, "Jane", "jane@example.com", "")

	for _, message := range []string{"Help me", "Please call me"} {
		err := jane.Upsert(ctx, backend.UserSettingsTable,
			backend.UserSettings{UserID: janeAccount.ID, PrewrittenMessage: message}, "user_id")
		assert.Nil(t, err)
	}

	settings := []backend.UserSettings{}
	err := jane.Select(ctx, backend.UserSettingsTable, backend.Filter{"user_id": janeAccount.ID}, nil, &settings)
	assert.Nil(t, err)
	assert.Len(t, settings, 1)
	assert.Equal(t, "Please call me", settings[0].PrewrittenMessage)

	err = jane.Upsert(ctx, backend.ContactsTable, backend.Contact{Name: "Bob", ContactUserID: "bob"}, "id")
	assert.Equal(t, http.StatusBadRequest, apiStatus(err))
}

func TestSosAlertsReachRecipients(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()

	env.server.workerPool.Start()
	defer env.server.workerPool.Stop()

	jane, janeAccount := env.signUp(t, "Jane", "jane@example.com", "")
	bob, bobAccount := env.signUp(t, "Bob", "bob@example.com", "+15555550100")
	_, carlAccount := env.signUp(t, "Carl", "carl@example.com", "")

	received := make(chan backend.SosAlert, 2)
	sub, err := bob.Subscribe(ctx, backend.SosAlertsTable, backend.InsertEvent,
		backend.Filter{"recipient_user_id": bobAccount.ID},
		func(event backend.ChangeEvent) {
			alert := backend.SosAlert{}
			if event.Decode(&alert) == nil {
				received <- alert
			}
		})
	assert.Nil(t, err)
	defer sub.Unsubscribe()

	// The feed is live as soon as Subscribe returns
	err = jane.Insert(ctx, backend.SosAlertsTable, []backend.SosAlert{
		{RecipientUserID: bobAccount.ID, Location: backend.Location{Lat: 43.65, Lon: -79.38}, Message: "Help Location: 43.65, -79.38"},
		{RecipientUserID: carlAccount.ID, Location: backend.Location{Lat: 43.65, Lon: -79.38}, Message: "Help Location: 43.65, -79.38"},
	})
	assert.Nil(t, err)

	select {
	case alert := <-received:
		assert.Equal(t, janeAccount.ID, alert.SenderUserID)
		assert.Equal(t, "Jane", alert.SenderName)
		assert.Equal(t, 43.65, alert.Location.Lat)
	case <-time.After(3 * time.Second):
		t.Fatal("bob never received the alert")
	}

	// Carl's alert is not delivered to bob
	select {
	case alert := <-received:
		t.Fatalf("unexpected alert for %v", alert.RecipientUserID)
	case <-time.After(100 * time.Millisecond):
	}

	// Only bob has a phone number on file
	assert.Eventually(t, func() bool { return len(env.messenger.messages()) == 1 }, 5*time.Second, 20*time.Millisecond)
	sms := env.messenger.messages()[0]
	assert.Equal(t, "+15555550100", sms.to)
	assert.Contains(t, sms.body, "SOS from Jane")

	alerts := []backend.SosAlert{}
	err = jane.Select(ctx, backend.SosAlertsTable, nil, nil, &alerts)
	assert.Nil(t, err)
	assert.Len(t, alerts, 2)

	err = bob.Select(ctx, backend.SosAlertsTable, nil, nil, &alerts)
	assert.Nil(t, err)
	assert.Len(t, alerts, 1)

	err = jane.Delete(ctx, backend.SosAlertsTable, backend.Filter{"id": alerts[0].ID})
	assert.Equal(t, http.StatusMethodNotAllowed, apiStatus(err))
}

func TestSosAlertBatchIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	jane, _ := env.signUp(t, "Jane", "jane@example.com", "")

	err := jane.Insert(ctx, backend.SosAlertsTable, []backend.SosAlert{
		{RecipientUserID: "bob", Location: backend.Location{Lat: 1, Lon: 2}, Message: "Help"},
		{RecipientUserID: "carl", Location: backend.Location{Lat: 100, Lon: 2}, Message: "Help"},
	})
	assert.Equal(t, http.StatusBadRequest, apiStatus(err))

	alerts := []backend.SosAlert{}
	assert.Nil(t, jane.Select(ctx, backend.SosAlertsTable, nil, nil, &alerts))
	assert.Empty(t, alerts)
}

func TestSubscriptionsMustBeOwnRows(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	bob, _ := env.signUp(t, "Bob", "bob@example.com", "")

	_, err := bob.Subscribe(ctx, backend.SosAlertsTable, backend.InsertEvent,
		backend.Filter{"recipient_user_id": "jane"}, func(backend.ChangeEvent) {})
	assert.NotNil(t, err)

	_, err = env.client(t).Subscribe(ctx, backend.ContactsTable, backend.AllEvents,
		backend.Filter{"user_id": "jane"}, func(backend.ChangeEvent) {})
	assert.NotNil(t, err)
	assert.Equal(t, 0, env.server.broker.Count())
}

func TestInvokeFunction(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	ctx := context.Background()
	jane, _ := env.signUp(t, "Jane", "jane@example.com", "")

	response := backend.SosMessageResponse{}
	err := jane.Invoke(ctx, backend.GenerateSosMessageFunction, backend.SosMessageRequest{BaseMessage: "I need help"}, &response)
	assert.Nil(t, err)
	assert.Contains(t, response.Message, "I need help")

	route := backend.SafeRouteResponse{}
	err = jane.Invoke(ctx, backend.GenerateSafeRouteFunction, backend.SafeRouteRequest{Start: "43.6,-79.3"}, &route)
	assert.Equal(t, http.StatusBadRequest, apiStatus(err))

	err = jane.Invoke(ctx, "launch-rockets", nil, nil)
	assert.Equal(t, http.StatusNotFound, apiStatus(err))

	err = env.client(t).Invoke(ctx, backend.GenerateSosMessageFunction, backend.SosMessageRequest{}, &response)
	assert.Equal(t, http.StatusUnauthorized, apiStatus(err))
}

func TestUploadRecording(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	jane, janeAccount := env.signUp(t, "Jane", "jane@example.com", "")

	mediaURL, err := jane.UploadRecording(context.Background(), "clip.M4A", bytes.NewBufferString("audio"))
	assert.Nil(t, err)
	assert.True(t, strings.HasPrefix(mediaURL, "https://storage.example.com/sentinel/recordings/"+janeAccount.ID+"/"))
	assert.True(t, strings.HasSuffix(mediaURL, ".m4a"))
	assert.Len(t, env.store.objects, 1)
}

func TestUploadRecordingWhenDisabled(t *testing.T) {
	env := newTestEnv(t, Dependencies{})
	env.server.config.Google.Storage.EnableRecordings = false
	jane, _ := env.signUp(t, "Jane", "jane@example.com", "")

	_, err := jane.UploadRecording(context.Background(), "clip.m4a", bytes.NewBufferString("audio"))
	assert.Equal(t, http.StatusServiceUnavailable, apiStatus(err))
}

func TestSmsStatusWebhook(t *testing.T) {
	form := url.Values{"MessageSid": {"SM1"}, "MessageStatus": {"delivered"}}

	env := newTestEnv(t, Dependencies{})
	resp, err := http.PostForm(env.http.URL+"/webhook/sms/status", form)
	assert.Nil(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env = newTestEnv(t, Dependencies{SmsValidator: rejectAll{}})
	resp, err = http.PostForm(env.http.URL+"/webhook/sms/status", form)
	assert.Nil(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestJWKSAndHealth(t *testing.T) {
	env := newTestEnv(t, Dependencies{})

	resp, err := http.Get(env.http.URL + "/jwks")
	assert.Nil(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "sentinel-key-id")

	resp, err = http.Get(env.http.URL + "/health")
	assert.Nil(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.http.URL + "/metrics")
	assert.Nil(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "sentinel_realtime_subscriptions")
}
