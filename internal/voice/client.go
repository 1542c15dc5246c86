// Package voice is a thin pass-through client for the voice-server
// admin API.  The portal stores no voice-server state and speaks none
// of its protocol; it only forwards authorized admin requests and
// relays whatever status and body come back.
package voice

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"
)

// Client forwards requests to the voice-server admin API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Forward sends method+path with the given JSON body to the voice
// admin API and returns the upstream status code and body verbatim.
// Transport failures are the only error case; upstream error statuses
// are relayed, not translated.
func (c *Client) Forward(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var rd io.Reader
	if len(body) > 0 {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return 0, nil, err
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, out, nil
}
