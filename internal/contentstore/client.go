// Package contentstore fetches content-addressed blobs from an IPFS HTTP gateway.
package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"credtrust/internal/platform/upstream"
)

const maxBlobBytes = 4 << 20

// ErrNotFound means the gateway has no blob for the address.
var ErrNotFound = errors.New("content not found")

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient HTTPDoer
	Caller     *upstream.Caller
}

// Client reads blobs by content address.
type Client struct {
	baseURL string
	timeout time.Duration
	http    HTTPDoer
	caller  *upstream.Caller
}

// New creates a gateway client. Timeout bounds a whole Fetch, retries included.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Caller == nil {
		cfg.Caller = upstream.New("ipfs")
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    cfg.HTTPClient,
		caller:  cfg.Caller,
	}
}

// Fetch returns the blob stored under address. A bare CID and an ipfs:// URI are both accepted.
func (c *Client) Fetch(ctx context.Context, address string) ([]byte, error) {
	cid := strings.TrimPrefix(strings.TrimSpace(address), "ipfs://")
	if cid == "" {
		return nil, fmt.Errorf("empty content address")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var blob []byte
	err := c.caller.Call(ctx, "fetch", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ipfs/"+url.PathEscape(cid), nil)
		if err != nil {
			return upstream.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return upstream.Permanent(fmt.Errorf("%w: %s", ErrNotFound, cid))
		case resp.StatusCode >= 500:
			return fmt.Errorf("gateway returned %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return upstream.Permanent(fmt.Errorf("gateway returned %d", resp.StatusCode))
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBlobBytes))
		if err != nil {
			return err
		}
		blob = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blob, nil
}
