// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package testhelper contains helpers shared by the tests of the other packages.
package testhelper

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// TestOnlineAPIURL is a JSON endpoint used by tests that need a real network round trip.
const TestOnlineAPIURL = "https://httpbin.org/json"

// MockRoundTripper is an http.RoundTripper that hands every request to Fn.
type MockRoundTripper struct {
	Fn func(*http.Request) (*http.Response, error)
}

func (m MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Fn(req)
}

// PerformIntegrationTests skips the calling test unless PERFORM_INTEGRATION_TESTS is set to true.
func PerformIntegrationTests(t *testing.T) {
	t.Helper()
	if !strings.EqualFold(os.Getenv("PERFORM_INTEGRATION_TESTS"), "true") {
		t.Skip("skipping integration test, set PERFORM_INTEGRATION_TESTS=true to enable")
	}
}

// JSONResponse returns a RoundTripper func that answers every request with the given file
// from the testdata directory.
func JSONResponse(t *testing.T, file string) func(*http.Request) (*http.Response, error) {
	t.Helper()
	return func(*http.Request) (*http.Response, error) {
		data, err := os.Open(TestDataFile(t, file))
		if err != nil {
			t.Fatalf("failed to open JSON response file: %s", err)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       data,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
		}, nil
	}
}

// TestDataFile returns the path of a file in the repository's testdata directory.
func TestDataFile(t *testing.T, file string) string {
	t.Helper()
	_, self, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to determine testhelper location")
	}
	return filepath.Join(filepath.Dir(self), "..", "..", "testdata", file)
}
