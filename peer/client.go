// Package peer implements PeerClient and PeerHandler: the gossip layer
// that lets a keyserver crawl, sample, and push metadata to the rest of
// the federation.
package peer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quebin31/keyserver/kssproto"
	"github.com/quebin31/keyserver/wrapper"
)

// samplePeersHeader is set to "false" on every peer-to-peer GET so a
// sampling fan-out never cascades into the rest of the federation.
const samplePeersHeader = "Sample-Peers"

// ErrMissingTokenHeader is returned when a remote keyserver answers a
// GET with a 200 but no Authorization header, so the PoP token
// accompanying the entry can never be forwarded to the querying client.
var ErrMissingTokenHeader = errors.New("peer: remote entry is missing its token header")

// Client is PeerClient: the thin HTTP client a keyserver uses to talk to
// another keyserver.
type Client struct {
	http *http.Client
}

// NewClient builds a Client bound to the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// GetPeers fetches the peer URL list a remote keyserver knows about.
func (c *Client) GetPeers(ctx context.Context, baseURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/peers", nil)
	if err != nil {
		return nil, fmt.Errorf("peer: could not build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("peer: could not reach %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer: %s returned status %d for /peers", baseURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("peer: could not read /peers body: %w", err)
	}

	var peers kssproto.Peers
	if err := peers.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("peer: could not decode /peers body: %w", err)
	}

	return peers.URLs(), nil
}

// Metadata is a verified remote metadata entry: the raw AuthWrapper bytes
// plus the PoP token header that accompanied it.
type Metadata struct {
	RawWrapper  []byte
	TokenHeader string
}

// GetMetadata fetches and verifies a remote keyserver's entry for addrText.
// Sample-Peers is always set to false: peer-to-peer sampling never
// cascades further.
func (c *Client) GetMetadata(ctx context.Context, baseURL, addrText string) (*Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/keys/"+addrText, nil)
	if err != nil {
		return nil, fmt.Errorf("peer: could not build request: %w", err)
	}
	req.Header.Set(samplePeersHeader, "false")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("peer: could not reach %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer: %s returned status %d for /keys/%s", baseURL, resp.StatusCode, addrText)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("peer: could not read /keys body: %w", err)
	}

	parsed, err := wrapper.DecodeParseVerify(raw)
	if err != nil {
		return nil, fmt.Errorf("peer: remote wrapper failed verification: %w", err)
	}
	_ = parsed

	tokenHeader := resp.Header.Get("Authorization")
	if tokenHeader == "" {
		return nil, ErrMissingTokenHeader
	}

	return &Metadata{
		RawWrapper:  raw,
		TokenHeader: tokenHeader,
	}, nil
}

// PutMetadata pushes a locally-known-good wrapper to a remote peer.
func (c *Client) PutMetadata(ctx context.Context, baseURL, addrText string, rawWrapper []byte, tokenHeader string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, baseURL+"/keys/"+addrText, bytes.NewReader(rawWrapper))
	if err != nil {
		return fmt.Errorf("peer: could not build request: %w", err)
	}
	if tokenHeader != "" {
		req.Header.Set("Authorization", tokenHeader)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("peer: could not reach %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("peer: %s rejected push with status %d", baseURL, resp.StatusCode)
	}
	return nil
}
