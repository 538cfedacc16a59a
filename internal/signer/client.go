// Package signer talks to the external credential signer/verifier.
//
// REST contract:
//
//	POST /credentials/issue      {"credential": {...}}                    -> {"verifiableCredential": ...}
//	POST /presentations/prove    {"presentation": {...}}                  -> {"verifiablePresentation": ...}
//	POST /credentials/verify     {"verifiableCredential": ...}            -> {"verified": bool, "error": "..."}
//	POST /presentations/verify   {"verifiablePresentation": ...}          -> {"verified": bool, "error": "..."}
//	GET  /health
package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"credtrust/internal/document"
	"credtrust/internal/platform/upstream"
	"credtrust/pkg/platform/httputil"
)

const maxResponseBytes = 4 << 20

// VerifyResult is the signer's verdict on a document.
type VerifyResult struct {
	Valid  bool
	Detail string
}

// Client is the HTTP signer client.
type Client struct {
	baseURL string
	http    *http.Client
	caller  *upstream.Caller
}

// NewClient returns a client for baseURL. timeout bounds each attempt.
func NewClient(baseURL string, timeout time.Duration, caller *upstream.Caller) *Client {
	if caller == nil {
		caller = upstream.New("signer")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		caller:  caller,
	}
}

type issueRequest struct {
	Credential json.RawMessage `json:"credential"`
}

type issueResponse struct {
	VerifiableCredential json.RawMessage `json:"verifiableCredential"`
}

type proveRequest struct {
	Presentation json.RawMessage `json:"presentation"`
}

type proveResponse struct {
	VerifiablePresentation json.RawMessage `json:"verifiablePresentation"`
}

type verifyResponse struct {
	Verified bool   `json:"verified"`
	Error    string `json:"error,omitempty"`
}

// SignCredential returns the signed form of an unsigned credential.
func (c *Client) SignCredential(ctx context.Context, credential json.RawMessage) (json.RawMessage, error) {
	var resp issueResponse
	if err := c.post(ctx, "sign_credential", "/credentials/issue", issueRequest{Credential: credential}, &resp); err != nil {
		return nil, err
	}
	if len(resp.VerifiableCredential) == 0 {
		return nil, fmt.Errorf("signer returned no credential")
	}
	return resp.VerifiableCredential, nil
}

// SignPresentation returns the signed form of an unsigned presentation.
func (c *Client) SignPresentation(ctx context.Context, presentation json.RawMessage) (json.RawMessage, error) {
	var resp proveResponse
	if err := c.post(ctx, "sign_presentation", "/presentations/prove", proveRequest{Presentation: presentation}, &resp); err != nil {
		return nil, err
	}
	if len(resp.VerifiablePresentation) == 0 {
		return nil, fmt.Errorf("signer returned no presentation")
	}
	return resp.VerifiablePresentation, nil
}

// Verify asks the signer to check the document's proof.
// A rejection is a result, not an error; errors mean the signer could not answer.
func (c *Client) Verify(ctx context.Context, doc *document.Document) (*VerifyResult, error) {
	path := "/credentials/verify"
	body := map[string]json.RawMessage{"verifiableCredential": doc.Raw}
	if doc.Kind == document.KindPresentation {
		path = "/presentations/verify"
		body = map[string]json.RawMessage{"verifiablePresentation": doc.Raw}
	}

	var resp verifyResponse
	err := c.post(ctx, "verify", path, body, &resp)
	var rejected *rejectedError
	if errors.As(err, &rejected) {
		return &VerifyResult{Valid: false, Detail: rejected.detail}, nil
	}
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Valid: resp.Verified, Detail: resp.Error}, nil
}

// Health checks the signer's health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("signer health returned %d", resp.StatusCode)
	}
	return nil
}

// rejectedError is a 4xx answer from the signer.
type rejectedError struct {
	status int
	detail string
}

func (e *rejectedError) Error() string {
	return fmt.Sprintf("signer rejected request (%d): %s", e.status, e.detail)
}

func (c *Client) post(ctx context.Context, operation, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal signer request: %w", err)
	}

	return c.caller.Call(ctx, operation, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return upstream.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("signer returned %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return upstream.Permanent(&rejectedError{status: resp.StatusCode, detail: errorDetail(body)})
		}

		if err := json.Unmarshal(body, out); err != nil {
			return upstream.Permanent(fmt.Errorf("decode signer response: %w", err))
		}
		return nil
	})
}

func errorDetail(body []byte) string {
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	return strings.TrimSpace(string(httputil.CompactJSON(body)))
}
