package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cucumber/godog"
	"github.com/tidwall/gjson"

	"credtrust/internal/testserver"
	"credtrust/pkg/platform/middleware/apikey"
)

// TestContext holds state between test steps
type TestContext struct {
	BaseURL          string
	APIKey           string
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte
	Saved            map[string]string

	local *testserver.Server
}

// NewTestContext targets BASE_URL when set and an in-process server otherwise.
func NewTestContext() *TestContext {
	tc := &TestContext{
		BaseURL:    os.Getenv("BASE_URL"),
		APIKey:     os.Getenv("API_KEY"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Saved:      make(map[string]string),
	}
	if tc.BaseURL == "" {
		tc.local = testserver.New()
		tc.BaseURL = tc.local.URL
		tc.APIKey = testserver.APIKey
	}
	return tc
}

// StartLocal replaces the in-process server, applying opts. It is a no-op
// against a remote BASE_URL.
func (tc *TestContext) StartLocal(opts ...testserver.Option) {
	if tc.local == nil {
		return
	}
	tc.local.Close()
	tc.local = testserver.New(opts...)
	tc.BaseURL = tc.local.URL
}

// PinContent stores blob on the in-process IPFS gateway. Remote targets
// have no gateway under test control.
func (tc *TestContext) PinContent(cid string, blob []byte) error {
	if tc.local == nil {
		return godog.ErrPending
	}
	tc.local.PutContent(cid, blob)
	return nil
}

// RequireTwoFactorForRevocation restarts the in-process server with
// unprotected revocation disabled.
func (tc *TestContext) RequireTwoFactorForRevocation() error {
	if tc.local == nil {
		return godog.ErrPending
	}
	tc.StartLocal(testserver.WithUnprotectedRevocation(false))
	return nil
}

func (tc *TestContext) Close() {
	if tc.local != nil {
		tc.local.Close()
	}
}

// POST makes an authenticated POST request and stores the response
func (tc *TestContext) POST(path string, body any) error {
	return tc.POSTWithHeaders(path, body, map[string]string{apikey.Header: tc.APIKey})
}

// POSTWithHeaders makes a POST request with only the given headers
func (tc *TestContext) POSTWithHeaders(path string, body any, headers map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, tc.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tc.send(req)
}

// GET makes an authenticated GET request and stores the response
func (tc *TestContext) GET(path string) error {
	return tc.GETWithHeaders(path, map[string]string{apikey.Header: tc.APIKey})
}

func (tc *TestContext) GETWithHeaders(path string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, tc.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return tc.send(req)
}

func (tc *TestContext) send(req *http.Request) error {
	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}

// ResponseField extracts a gjson path from the JSON response
func (tc *TestContext) ResponseField(path string) gjson.Result {
	return gjson.GetBytes(tc.LastResponseBody, path)
}

// ResponseContains checks if the response body contains a field or text
func (tc *TestContext) ResponseContains(text string) bool {
	if strings.Contains(string(tc.LastResponseBody), text) {
		return true
	}
	return tc.ResponseField(text).Exists()
}

func (tc *TestContext) Save(name, value string) {
	tc.Saved[name] = value
}

func (tc *TestContext) Recall(name string) (string, error) {
	v, ok := tc.Saved[name]
	if !ok {
		return "", fmt.Errorf("nothing saved as %q", name)
	}
	return v, nil
}

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastResponseBody
}
