// Package rpc queries the node's JSON-RPC endpoint through the remote
// executor. The endpoint is only reachable from the server itself, so
// requests are issued as curl commands over SSH.
//
// Every call returns (value, ok). ok is false when the transport failed
// or the response was malformed; callers must treat that as "unknown
// this cycle", never as zero.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.olrik.dev/migmon/internal/remote"
)

const (
	nonceTimeout = 10 * time.Second
	// The migration status call walks the trie on the node side.
	statusTimeout = 40 * time.Second
)

// Client issues JSON-RPC 2.0 requests against a single endpoint.
type Client struct {
	exec     remote.Executor
	endpoint string
}

// NewClient creates a Client querying endpoint through exec.
func NewClient(exec remote.Executor, endpoint string) *Client {
	return &Client{exec: exec, endpoint: endpoint}
}

// request is the JSON-RPC 2.0 request envelope.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// response is the subset of the JSON-RPC 2.0 response we care about.
type response struct {
	Result json.RawMessage `json:"result"`
}

// Call performs one JSON-RPC call and returns the raw result member.
// The outer SSH timeout is the RPC timeout plus slack for the transport.
func (c *Client) Call(ctx context.Context, method string, params []any, timeout time.Duration) (json.RawMessage, bool) {
	if params == nil {
		params = []any{}
	}
	payload, err := json.Marshal(request{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, false
	}

	cmd := fmt.Sprintf(
		"curl -s --max-time %d -H 'Content-Type: application/json' -d '%s' %s",
		int(timeout.Seconds()), shellQuote(string(payload)), c.endpoint,
	)

	ok, output := c.exec.Run(ctx, cmd, timeout+5*time.Second, remote.DefaultRetries)
	if !ok || output == "" {
		return nil, false
	}

	var resp response
	if err := json.Unmarshal([]byte(output), &resp); err != nil {
		return nil, false
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil, false
	}
	return resp.Result, true
}

// AccountNextIndex returns the account's next transaction index (nonce).
func (c *Client) AccountNextIndex(ctx context.Context, account string) (uint64, bool) {
	result, ok := c.Call(ctx, "system_accountNextIndex", []any{account}, nonceTimeout)
	if !ok {
		return 0, false
	}
	var nonce uint64
	if err := json.Unmarshal(result, &nonce); err != nil {
		return 0, false
	}
	return nonce, true
}

// trieMigrationStatus mirrors the state_trieMigrationStatus result shape.
type trieMigrationStatus struct {
	TopRemainingToMigrate *uint64 `json:"topRemainingToMigrate"`
}

// TrieMigrationStatus returns the number of top-trie keys still to
// migrate. Slow: the node scans the trie to answer.
func (c *Client) TrieMigrationStatus(ctx context.Context) (uint64, bool) {
	result, ok := c.Call(ctx, "state_trieMigrationStatus", nil, statusTimeout)
	if !ok {
		return 0, false
	}
	var status trieMigrationStatus
	if err := json.Unmarshal(result, &status); err != nil || status.TopRemainingToMigrate == nil {
		return 0, false
	}
	return *status.TopRemainingToMigrate, true
}

// shellQuote escapes s for interpolation inside single quotes in a
// remote shell command.
func shellQuote(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}
