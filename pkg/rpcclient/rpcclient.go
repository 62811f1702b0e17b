// Package rpcclient is a JSON-RPC 2.0 client for chain nodes without a Go
// SDK in this module (Sui, ICON, Soroban, bitcoind).
package rpcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"hub-settle/pkg/httpjson"
)

// Request is a JSON-RPC request
type Request struct {
	JSONRpc string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// Response is a JSON-RPC response
type Response struct {
	JSONRpc string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is an error returned by the node
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error (code %d): %s", e.Code, e.Message)
}

// Client calls one JSON-RPC endpoint
type Client struct {
	http   *httpjson.Client
	nextID atomic.Uint64
}

// New creates a client for url
func New(url string, opts ...httpjson.Option) *Client {
	return &Client{http: httpjson.New(url, opts...)}
}

// Call invokes method and decodes the result into out. Reads are retried on
// transport errors; pass mutating=true for calls that broadcast.
func (c *Client) Call(ctx context.Context, method string, params, out interface{}, mutating bool) error {
	req := Request{
		JSONRpc: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	var resp Response
	var err error
	if mutating {
		err = c.http.Post(ctx, "", req, &resp)
	} else {
		err = c.http.PostIdempotent(ctx, "", req, &resp)
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("%s failed: %w", method, resp.Error)
	}
	if out == nil {
		return nil
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return fmt.Errorf("%s returned no result", method)
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("failed to parse %s result: %w", method, err)
	}
	return nil
}

// Read calls a read-only method
func (c *Client) Read(ctx context.Context, method string, params, out interface{}) error {
	return c.Call(ctx, method, params, out, false)
}
