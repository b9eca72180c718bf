// Package chainrpc is the thin RPC contract to the chain node. It is
// intentionally narrow: the keyserver only ever needs to fetch a raw
// transaction by id and broadcast one it was handed, so that is all this
// package exposes.
package chainrpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Client is the RPC contract a PaymentFlow/TokenScheme needs from the
// chain node. Implementations talk whatever transport they like; the
// default Client below speaks bitcoind-style JSON-RPC over HTTP, which is
// what bchd and its node-compatible peers expose.
type Client interface {
	// GetRawTransaction fetches the raw serialized transaction for txID
	// (a big-endian hex transaction id). A RejectedError is returned if
	// the node recognizes the request but cannot satisfy it (e.g. the
	// transaction is unknown); any other error is a transport failure.
	GetRawTransaction(ctx context.Context, txID string) ([]byte, error)

	// SendRawTransaction broadcasts raw and returns the resulting
	// transaction id. A RejectedError means the node refused the
	// transaction (e.g. it fails mempool policy); any other error is a
	// transport failure.
	SendRawTransaction(ctx context.Context, raw []byte) (string, error)
}

// RejectedError wraps a node-level rejection: the RPC call completed, but
// the node said no. Per the error taxonomy, these surface as 400.
type RejectedError struct {
	Code    int
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("chainrpc: node rejected request (code %d): %s", e.Code, e.Message)
}

// Config holds the connection details for the JSON-RPC client.
type Config struct {
	Address  string
	Username string
	Password string
	Timeout  time.Duration
}

// JSONRPCClient is the default Client, talking bitcoind-compatible
// JSON-RPC 1.0 over HTTP with basic authentication.
type JSONRPCClient struct {
	cfg        Config
	httpClient *http.Client
	log        zerolog.Logger
}

// NewJSONRPCClient constructs a client bound to the given node.
func NewJSONRPCClient(cfg Config, log zerolog.Logger) *JSONRPCClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &JSONRPCClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "chainrpc").Logger(),
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *JSONRPCClient) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	req := rpcRequest{
		JSONRPC: "1.0",
		ID:      "keyserver",
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("chainrpc: could not encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Address, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chainrpc: could not build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.Username != "" {
		httpReq.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("chainrpc: transport error: %w", err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("chainrpc: transport error: could not decode response: %w", err)
	}

	if rpcResp.Error != nil {
		return &RejectedError{Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("chainrpc: transport error: node returned status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("chainrpc: transport error: could not decode result: %w", err)
	}
	return nil
}

// GetRawTransaction implements Client.
func (c *JSONRPCClient) GetRawTransaction(ctx context.Context, txID string) ([]byte, error) {
	var hexTx string
	err := c.call(ctx, "getrawtransaction", []interface{}{txID, false}, &hexTx)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(hexTx)
	if err != nil {
		return nil, fmt.Errorf("chainrpc: transport error: malformed hex from node: %w", err)
	}
	return raw, nil
}

// SendRawTransaction implements Client.
func (c *JSONRPCClient) SendRawTransaction(ctx context.Context, raw []byte) (string, error) {
	var txID string
	err := c.call(ctx, "sendrawtransaction", []interface{}{hex.EncodeToString(raw)}, &txID)
	if err != nil {
		return "", err
	}
	return txID, nil
}

// IsRejected reports whether err is a node-level rejection rather than a
// transport failure.
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}
