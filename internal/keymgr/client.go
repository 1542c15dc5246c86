// Package keymgr is the client for the external key-management
// service (the WireGuard provisioner).  The portal never handles key
// generation or packet plumbing itself: it asks this collaborator for
// a keypair plus the server-side connection parameters, and persists
// what it gets back.
package keymgr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Keypair is the provisioner's response to a key issue request.  The
// server fields let clients render a complete tunnel config without a
// second round trip.
type Keypair struct {
	PublicKey       string `json:"public_key"`
	PrivateKey      string `json:"private_key"`
	ServerPublicKey string `json:"server_public_key"`
	Endpoint        string `json:"endpoint"`
	DNS             string `json:"dns"`
}

// ServerInfo describes the VPN server side of the tunnel; it is what
// a client config needs besides its own keys and address.
type ServerInfo struct {
	PublicKey string `json:"public_key"`
	Endpoint  string `json:"endpoint"`
	DNS       string `json:"dns"`
}

// Client talks to the key-management service over HTTP.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New returns a Client with a bounded request timeout; the provisioner
// is on the same network and should answer fast or not at all.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// IssueKeypair asks the provisioner to generate a fresh WireGuard
// keypair.  Called once per user, on first Enable; the portal never
// rotates keys implicitly.
func (c *Client) IssueKeypair(ctx context.Context) (Keypair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/issue", bytes.NewReader([]byte("{}")))
	if err != nil {
		return Keypair{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Keypair{}, fmt.Errorf("key-management request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Keypair{}, fmt.Errorf("key-management returned %d: %s", resp.StatusCode, body)
	}

	var kp Keypair
	if err := json.NewDecoder(resp.Body).Decode(&kp); err != nil {
		return Keypair{}, fmt.Errorf("key-management response decode: %w", err)
	}
	if kp.PublicKey == "" || kp.PrivateKey == "" {
		return Keypair{}, fmt.Errorf("key-management returned an incomplete keypair")
	}
	return kp, nil
}

// ServerInfo fetches the server-side tunnel parameters used when
// rendering a client config.
func (c *Client) ServerInfo(ctx context.Context) (ServerInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/server", nil)
	if err != nil {
		return ServerInfo{}, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return ServerInfo{}, fmt.Errorf("key-management request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ServerInfo{}, fmt.Errorf("key-management returned %d: %s", resp.StatusCode, body)
	}
	var si ServerInfo
	if err := json.NewDecoder(resp.Body).Decode(&si); err != nil {
		return ServerInfo{}, fmt.Errorf("key-management response decode: %w", err)
	}
	return si, nil
}

// RestartGateway forwards an admin-requested restart of the auth
// gateway to the provisioner's management endpoint and relays the
// outcome.  The portal implements none of the restart logic itself.
func (c *Client) RestartGateway(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/gateway/restart", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("gateway restart request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway restart returned %d: %s", resp.StatusCode, body)
	}
	return nil
}
