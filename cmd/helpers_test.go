package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/Daskott/sentinel/client/session"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

type TestDataProvider []struct {
	description string
	args        []string
	expectedOut string
}

// backendStub adds the auth & storage endpoints to the in-memory gateway
type backendStub struct {
	*backend.GatewayStub

	accessToken string
	accounts    map[string]backend.Account
	passwords   map[string]string
	uploads     map[string]string

	UploadError error
}

func newBackendStub() *backendStub {
	return &backendStub{
		GatewayStub: backend.NewGatewayStub(),
		accounts:    make(map[string]backend.Account),
		passwords:   make(map[string]string),
		uploads:     make(map[string]string),
	}
}

func (b *backendStub) SetAccessToken(token string) {
	b.accessToken = token
}

func (b *backendStub) SignUp(ctx context.Context, request backend.SignUpRequest) (*backend.Account, error) {
	if _, ok := b.accounts[request.Email]; ok {
		return nil, &backend.APIError{Status: http.StatusConflict, Messages: []string{"email is already registered"}}
	}

	account := backend.Account{
		ID:          fmt.Sprintf("user-%d", len(b.accounts)+1),
		Name:        request.Name,
		Email:       request.Email,
		PhoneNumber: request.PhoneNumber,
	}
	b.accounts[request.Email] = account
	b.passwords[request.Email] = request.Password

	return &account, nil
}

func (b *backendStub) SignIn(ctx context.Context, credentials backend.Credentials) (*backend.Token, error) {
	account, ok := b.accounts[credentials.Email]
	if !ok || b.passwords[credentials.Email] != credentials.Password {
		return nil, &backend.APIError{Status: http.StatusUnauthorized, Messages: []string{"invalid email or password"}}
	}

	return &backend.Token{AccessToken: "token-" + account.ID, User: account}, nil
}

func (b *backendStub) CurrentAccount(ctx context.Context) (*backend.Account, error) {
	for _, account := range b.accounts {
		if "token-"+account.ID == b.accessToken {
			return &account, nil
		}
	}
	return nil, &backend.APIError{Status: http.StatusUnauthorized}
}

func (b *backendStub) UploadRecording(ctx context.Context, fileName string, content io.Reader) (string, error) {
	if b.UploadError != nil {
		return "", b.UploadError
	}

	data, err := ioutil.ReadAll(content)
	if err != nil {
		return "", err
	}

	url := "https://storage.googleapis.com/sentinel/recordings/" + fileName
	b.uploads[url] = string(data)
	return url, nil
}

// setupTestEnv points the cli at a throwaway config file signed in as
// 'identity' & stubs out the backend
func setupTestEnv(t *testing.T, identity session.Identity) *backendStub {
	savedCfgFile, savedAPI, savedIsTestEnv := cfgFile, api, isTestEnv
	t.Cleanup(func() {
		cfgFile, api, isTestEnv = savedCfgFile, savedAPI, savedIsTestEnv
	})

	cfgFile = filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf(`backend:
  url: "http://localhost:3000"
session:
  userId: %q
  name: %q
  accessToken: %q
location:
  timeoutSeconds: 1
`, identity.UserID, identity.Name, identity.AccessToken)
	require.NoError(t, os.WriteFile(cfgFile, []byte(content), 0600))

	stub := newBackendStub()
	api = stub
	isTestEnv = true

	return stub
}

func execute(cmd *cobra.Command, args ...string) (string, error) {
	buff := new(bytes.Buffer)
	cmd.SetOut(buff)
	cmd.SetErr(buff)
	cmd.SetIn(bytes.NewBufferString(""))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buff.String(), err
}

func savedConfig(t *testing.T) string {
	content, err := os.ReadFile(cfgFile)
	require.NoError(t, err)
	return string(content)
}

var (
	alice = session.Identity{UserID: "user-alice", Name: "Alice", AccessToken: "token-alice"}
	bob   = backend.Contact{ID: "contact-1", UserID: "user-alice", Name: "Bob", ContactUserID: "user-bob"}
	carol = backend.Contact{ID: "contact-2", UserID: "user-alice", Name: "Carol", ContactUserID: "user-carol"}
)
