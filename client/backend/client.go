package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Daskott/sentinel/logger"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	restPrefix      = "/rest/v1/"
	functionsPrefix = "/functions/v1/"
	authPrefix      = "/auth/v1"
	realtimePath    = "/realtime/v1"
	recordingsPath  = "/storage/v1/recordings"

	DefaultRequestTimeout = 30 * time.Second
)

var logg = logger.Named("backend")

// responsePayload mirrors the envelope every backend endpoint answers with
type responsePayload struct {
	Errors  []string        `json:"errors"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Client is the HTTP/websocket implementation of Gateway
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	dialer     *websocket.Dialer

	mu          sync.RWMutex
	accessToken string
}

func NewClient(baseURL string) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid backend url")
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.Errorf("invalid backend url %q, scheme must be http or https", baseURL)
	}

	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}, nil
}

// SetAccessToken sets the bearer token sent with every request
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// ---------------------------------------------------------------------------------//
// Gateway
// --------------------------------------------------------------------------------//

func (c *Client) Select(ctx context.Context, table string, filter Filter, order *Order, dest interface{}) error {
	query := url.Values{}
	filter.Encode(query)
	if order != nil {
		query.Set("order", order.String())
	}

	err := c.do(ctx, http.MethodGet, restPrefix+table, query, nil, dest)
	if err != nil {
		return &PersistenceError{Op: "select", Table: table, Err: err}
	}
	return nil
}

func (c *Client) Insert(ctx context.Context, table string, rows interface{}) error {
	err := c.do(ctx, http.MethodPost, restPrefix+table, nil, rows, nil)
	if err != nil {
		return &PersistenceError{Op: "insert", Table: table, Err: err}
	}
	return nil
}

func (c *Client) Upsert(ctx context.Context, table string, row interface{}, conflictKey string) error {
	query := url.Values{}
	query.Set("on_conflict", conflictKey)

	err := c.do(ctx, http.MethodPost, restPrefix+table, query, row, nil)
	if err != nil {
		return &PersistenceError{Op: "upsert", Table: table, Err: err}
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, table string, filter Filter) error {
	// An unfiltered delete would wipe every row the caller owns
	if len(filter) == 0 {
		return &PersistenceError{Op: "delete", Table: table, Err: errors.New("a filter is required")}
	}

	query := url.Values{}
	filter.Encode(query)

	err := c.do(ctx, http.MethodDelete, restPrefix+table, query, nil, nil)
	if err != nil {
		return &PersistenceError{Op: "delete", Table: table, Err: err}
	}
	return nil
}

func (c *Client) Invoke(ctx context.Context, function string, payload interface{}, result interface{}) error {
	err := c.do(ctx, http.MethodPost, functionsPrefix+function, nil, payload, result)
	if err != nil {
		return &RemoteInvocationError{Function: function, Err: err}
	}
	return nil
}

// ---------------------------------------------------------------------------------//
// Auth & storage
// --------------------------------------------------------------------------------//

func (c *Client) SignUp(ctx context.Context, request SignUpRequest) (*Account, error) {
	account := Account{}
	err := c.do(ctx, http.MethodPost, authPrefix+"/signup", nil, request, &account)
	if err != nil {
		return nil, errors.Wrap(err, "sign up")
	}
	return &account, nil
}

func (c *Client) SignIn(ctx context.Context, credentials Credentials) (*Token, error) {
	token := Token{}
	err := c.do(ctx, http.MethodPost, authPrefix+"/token", nil, credentials, &token)
	if err != nil {
		return nil, errors.Wrap(err, "sign in")
	}
	return &token, nil
}

func (c *Client) CurrentAccount(ctx context.Context) (*Account, error) {
	account := Account{}
	err := c.do(ctx, http.MethodGet, authPrefix+"/user", nil, nil, &account)
	if err != nil {
		return nil, errors.Wrap(err, "current account")
	}
	return &account, nil
}

// UploadRecording stores an emergency recording and returns the url
// to attach to sos alerts as media_url
func (c *Client) UploadRecording(ctx context.Context, fileName string, content io.Reader) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("recording", fileName)
	if err != nil {
		return "", errors.Wrap(err, "upload recording")
	}
	if _, err = io.Copy(part, content); err != nil {
		return "", errors.Wrap(err, "upload recording")
	}
	if err = writer.Close(); err != nil {
		return "", errors.Wrap(err, "upload recording")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(recordingsPath, nil), body)
	if err != nil {
		return "", errors.Wrap(err, "upload recording")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(req.Header)

	result := struct {
		MediaURL string `json:"media_url"`
	}{}
	if err = c.send(req, &result); err != nil {
		return "", errors.Wrap(err, "upload recording")
	}

	return result.MediaURL, nil
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		reader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	c.authorize(req.Header)

	return c.send(req, dest)
}

func (c *Client) send(req *http.Request, dest interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	payload := responsePayload{}
	decodeErr := json.NewDecoder(resp.Body).Decode(&payload)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return &APIError{Status: resp.StatusCode, Messages: payload.Errors}
	}

	if decodeErr != nil && decodeErr != io.EOF {
		return errors.Wrap(decodeErr, "decoding response")
	}

	if dest == nil || len(payload.Data) == 0 || string(payload.Data) == "null" {
		return nil
	}

	return errors.Wrap(json.Unmarshal(payload.Data, dest), "decoding response data")
}

func (c *Client) endpoint(path string, query url.Values) string {
	endpoint := *c.baseURL
	endpoint.Path = c.baseURL.Path + path
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}
	return endpoint.String()
}

func (c *Client) authorize(header http.Header) {
	if token := c.AccessToken(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
}
