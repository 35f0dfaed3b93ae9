package cmd

import (
	"errors"
	"testing"

	"github.com/Daskott/sentinel/client/backend"
	"github.com/stretchr/testify/assert"
)

func TestRouteCmd(t *testing.T) {
	cases := TestDataProvider{
		{
			description: "Should fail without an end location",
			args:        []string{"--start", "Union Station"},
			expectedOut: "set --start and --end",
		},
		{
			description: "Should print the generated route",
			args:        []string{"--start", "Union Station", "--end", "CN Tower"},
			expectedOut: "Stay on Front St, it is well lit",
		},
	}

	for _, c := range cases {
		t.Run(c.description, func(t *testing.T) {
			stub := setupTestEnv(t, alice)
			stub.InvokeResults[backend.GenerateSafeRouteFunction] = backend.SafeRouteResponse{Description: "Stay on Front St, it is well lit"}

			out, _ := execute(createRouteCmd(), c.args...)
			assert.Contains(t, out, c.expectedOut)
		})
	}
}

func TestRouteCmdWhenFunctionFails(t *testing.T) {
	stub := setupTestEnv(t, alice)
	stub.InvokeErrors[backend.GenerateSafeRouteFunction] = errors.New("rate limited")

	out, err := execute(createRouteCmd(), "--start", "A", "--end", "B")
	assert.Error(t, err)
	assert.Contains(t, out, "unable to generate route")
}

func TestShareCmd(t *testing.T) {
	cases := TestDataProvider{
		{
			description: "Should fail without a phone number",
			args:        []string{"--lat", "1", "--lon", "2"},
			expectedOut: "\"phone\" not set",
		},
		{
			description: "Should fail when phone has no digits",
			args:        []string{"--phone", "call me", "--lat", "1", "--lon", "2"},
			expectedOut: "is not a phone number",
		},
		{
			description: "Should print a whatsapp link with separators stripped",
			args:        []string{"--phone", "+1 (416) 555-0100", "--lat", "43.6532", "--lon", "-79.3832"},
			expectedOut: "https://wa.me/14165550100?text=Alice%20is%20sharing%20their%20live%20location",
		},
	}

	for _, c := range cases {
		t.Run(c.description, func(t *testing.T) {
			setupTestEnv(t, alice)

			out, _ := execute(createShareCmd(), c.args...)
			assert.Contains(t, out, c.expectedOut)
		})
	}
}
