package lifecycle

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"credtrust/internal/testserver"
	"credtrust/internal/twofactor/totp"
	"credtrust/pkg/platform/middleware/apikey"
)

type apiClient struct {
	t    *testing.T
	base string
	http *http.Client
}

func newClient(t *testing.T, srv *testserver.Server) *apiClient {
	return &apiClient{t: t, base: srv.URL, http: &http.Client{Timeout: 10 * time.Second}}
}

func (c *apiClient) do(method, path string, body any) (int, []byte) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apikey.Header, testserver.APIKey)

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, raw
}

func (c *apiClient) post(path string, body any) (int, map[string]any) {
	c.t.Helper()
	status, raw := c.do(http.MethodPost, path, body)
	return status, decode(c.t, raw)
}

func (c *apiClient) get(path string) (int, map[string]any) {
	c.t.Helper()
	status, raw := c.do(http.MethodGet, path, nil)
	return status, decode(c.t, raw)
}

// issue creates a degree credential and returns its id and the signed JWT-VC.
func (c *apiClient) issue(holder string) (string, json.RawMessage) {
	c.t.Helper()
	status, raw := c.do(http.MethodPost, "/issue", map[string]any{
		"holderId": holder,
		"type":     []string{"UniversityDegreeCredential"},
		"credentialSubject": map[string]any{
			"name":           "Alice",
			"degree":         map[string]any{"type": "BachelorDegree", "name": "Computer Science"},
			"gpa":            3.8,
			"graduationDate": "2024-06-15",
		},
	})
	require.Equal(c.t, http.StatusOK, status, string(raw))

	var res struct {
		CredentialID         string          `json:"credentialId"`
		VerifiableCredential json.RawMessage `json:"verifiableCredential"`
	}
	require.NoError(c.t, json.Unmarshal(raw, &res))
	return res.CredentialID, res.VerifiableCredential
}

// enableTwoFactor runs setup and enable and returns the secret and backup codes.
func (c *apiClient) enableTwoFactor() (string, []string) {
	c.t.Helper()
	status, raw := c.do(http.MethodPost, "/2fa/setup", map[string]any{"label": "registrar"})
	require.Equal(c.t, http.StatusOK, status, string(raw))
	var setup struct {
		Secret      string   `json:"secret"`
		BackupCodes []string `json:"backupCodes"`
	}
	require.NoError(c.t, json.Unmarshal(raw, &setup))

	status, body := c.post("/2fa/enable", map[string]any{"code": currentCode(c.t, setup.Secret)})
	require.Equal(c.t, http.StatusOK, status, body)
	return setup.Secret, setup.BackupCodes
}

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

func decode(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return out
}

func reasons(body map[string]any) []string {
	list, _ := body["reasons"].([]any)
	out := make([]string, 0, len(list))
	for _, r := range list {
		out = append(out, r.(string))
	}
	return out
}
