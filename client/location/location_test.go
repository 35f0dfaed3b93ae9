package location

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/stretchr/testify/assert"
)

func TestStatic(t *testing.T) {
	loc, err := Static{Location: backend.Location{Lat: 10, Lon: 20}}.CurrentPosition(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, backend.Location{Lat: 10, Lon: 20}, loc)

	_, err = Static{Err: &Error{Kind: Denied}}.CurrentPosition(context.Background())
	locationErr := &Error{}
	assert.True(t, errors.As(err, &locationErr))
	assert.Equal(t, Denied, locationErr.Kind)
}

func TestWithTimeout(t *testing.T) {
	slow := ProviderFunc(func(ctx context.Context) (backend.Location, error) {
		<-ctx.Done()
		return backend.Location{}, ctx.Err()
	})

	_, err := WithTimeout(slow, 20*time.Millisecond).CurrentPosition(context.Background())
	locationErr := &Error{}
	assert.True(t, errors.As(err, &locationErr))
	assert.Equal(t, Timeout, locationErr.Kind)

	fast := Static{Location: backend.Location{Lat: 1, Lon: 2}}
	loc, err := WithTimeout(fast, time.Second).CurrentPosition(context.Background())
	assert.Nil(t, err)
	assert.Equal(t, 1.0, loc.Lat)
}

func TestIPLookup(t *testing.T) {
	cases := []struct {
		description  string
		status       int
		body         string
		expectedKind ErrorKind
		expected     backend.Location
	}{
		{"Should return position on success", http.StatusOK, `{"status":"success","lat":43.65,"lon":-79.38}`, "", backend.Location{Lat: 43.65, Lon: -79.38}},
		{"Should be unavailable when lookup fails", http.StatusOK, `{"status":"fail","message":"private range"}`, Unavailable, backend.Location{}},
		{"Should be denied when lookup is forbidden", http.StatusForbidden, `{}`, Denied, backend.Location{}},
		{"Should be unavailable on a malformed body", http.StatusOK, `not json`, Unavailable, backend.Location{}},
	}

	for _, c := range cases {
		t.Run(c.description, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
				rw.WriteHeader(c.status)
				fmt.Fprint(rw, c.body)
			}))
			defer server.Close()

			loc, err := IPLookup{URL: server.URL}.CurrentPosition(context.Background())
			if c.expectedKind == "" {
				assert.Nil(t, err)
				assert.Equal(t, c.expected, loc)
				return
			}

			locationErr := &Error{}
			assert.True(t, errors.As(err, &locationErr))
			assert.Equal(t, c.expectedKind, locationErr.Kind)
		})
	}
}
