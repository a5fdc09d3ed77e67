// Package rpc is the Node Client: it fetches chain info and full blocks from
// a Bitcoin-like node's REST endpoint, and issues JSON-RPC calls
// (validateaddress, getblockcount) against the same node. It never
// interprets consensus rules; it trusts whatever the node returns.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/pkg/errors"

	"github.com/jeremyandrews/addrindex/logger"
)

var log = logger.Get(logger.SubsystemTags.NODE)

const maxAttempts = 10

// Vout is one transaction output as reported by the node's REST block endpoint.
type Vout struct {
	Value        string `json:"value"`
	N            int    `json:"n"`
	ScriptPubKey struct {
		Addresses []string `json:"addresses"`
	} `json:"scriptPubKey"`
}

// Vin is one transaction input. Exactly one of TxID (a spend) or Coinbase
// (a generation input) is populated.
type Vin struct {
	TxID     string `json:"txid,omitempty"`
	Vout     int    `json:"vout"`
	Coinbase string `json:"coinbase,omitempty"`
}

// IsCoinbase reports whether this vin is a generation input.
func (v *Vin) IsCoinbase() bool {
	return v.TxID == ""
}

// Tx is one transaction within a block.
type Tx struct {
	TxID string `json:"txid"`
	Vin  []Vin  `json:"vin"`
	Vout []Vout `json:"vout"`
}

// Block is a full block as returned by /rest/block/<hash>.json.
type Block struct {
	Hash              string `json:"hash"`
	PreviousBlockHash string `json:"previousblockhash,omitempty"`
	NextBlockHash     string `json:"nextblockhash,omitempty"`
	Height            int64  `json:"height"`
	Time              int64  `json:"time"`
	Confirmations     int64  `json:"confirmations"`
	Tx                []Tx   `json:"tx"`
}

// ChainInfo is the /rest/chaininfo.json response.
type ChainInfo struct {
	Blocks  int64  `json:"blocks"`
	BestBlockHash string `json:"bestblockhash"`
}

// ValidateAddressResult is the result of the validateaddress JSON-RPC call.
type ValidateAddressResult struct {
	IsValid bool `json:"isvalid"`
	Address string `json:"address,omitempty"`
}

// Client talks REST and JSON-RPC to a single node.
type Client struct {
	Server     string // host:port
	RPCAuth    string // "user:password"
	HTTPClient *http.Client
}

// NewClient returns a Client with a sane default per-attempt timeout.
func NewClient(server, rpcAuth string) *Client {
	return &Client{
		Server:  server,
		RPCAuth: rpcAuth,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetChainInfo fetches the node's current chain tip summary.
func (c *Client) GetChainInfo(ctx context.Context) (*ChainInfo, error) {
	path := fmt.Sprintf("http://%s/rest/chaininfo.json", c.Server)
	var info ChainInfo
	ok, err := c.getJSONWithRetry(ctx, path, &info)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &info, nil
}

// GetBlock fetches a full block by hash. A nil, nil return indicates the
// node reported the hash is unavailable (404/503) — callers at the chain
// tip treat this as "no more blocks yet"; callers mid-chain treat it as fatal.
func (c *Client) GetBlock(ctx context.Context, hash string) (*Block, error) {
	path := fmt.Sprintf("http://%s/rest/block/%s.json", c.Server, hash)
	var block Block
	ok, err := c.getJSONWithRetry(ctx, path, &block)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &block, nil
}

// GetBlockCount issues a getblockcount JSON-RPC call.
func (c *Client) GetBlockCount(ctx context.Context) (int64, error) {
	var count int64
	if err := c.rpcCall(ctx, "getblockcount", nil, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// Call issues an arbitrary JSON-RPC method, decoding the result into out.
// It exists for coin-cli, which dispatches whatever method name the
// operator passes on the command line.
func (c *Client) Call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	return c.rpcCall(ctx, method, params, out)
}

// ValidateAddress issues a validateaddress JSON-RPC call.
func (c *Client) ValidateAddress(ctx context.Context, address string) (*ValidateAddressResult, error) {
	var result ValidateAddressResult
	if err := c.rpcCall(ctx, "validateaddress", []interface{}{address}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// getJSONWithRetry performs a GET against path with the spec's retry policy:
// up to ten attempts, sleeping 10*attempt*rand(1,3) seconds between
// attempts. A 404 or 503 is reported immediately without retry (ok=false,
// err=nil matches "null" semantics); transport failures are retried;
// any other non-200 status is a PermanentHTTPError.
func (c *Client) getJSONWithRetry(ctx context.Context, path string, out interface{}) (ok bool, err error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		body, status, reqErr := c.get(ctx, path)
		if reqErr != nil {
			lastErr = &TransportError{Cause: reqErr}
			log.Warnf("request to %s failed (attempt %d/%d): %s", path, attempt+1, maxAttempts, reqErr)
			if attempt < maxAttempts-1 {
				if !sleepBeforeRetry(ctx, attempt) {
					return false, ctx.Err()
				}
			}
			continue
		}

		switch status {
		case http.StatusOK:
			if err := json.Unmarshal(body, out); err != nil {
				return false, errors.Wrapf(err, "decoding response from %s", path)
			}
			return true, nil
		case http.StatusNotFound, http.StatusServiceUnavailable:
			log.Debugf("%s returned %d, treating as no data", path, status)
			return false, nil
		default:
			return false, &PermanentHTTPError{StatusCode: status, Path: path}
		}
	}

	return false, &ErrExhausted{Attempts: maxAttempts, Path: path, Last: lastErr}
}

func (c *Client) get(ctx context.Context, path string) (body []byte, status int, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}

type rpcRequest struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
	ID     int           `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// rpcCall issues a JSON-RPC POST with the same retry policy as the REST
// calls; JSON-RPC protocol errors (the "error" field) are permanent, not
// retried.
func (c *Client) rpcCall(ctx context.Context, method string, params []interface{}, out interface{}) error {
	path := fmt.Sprintf("http://%s/", c.Server)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		reqBody, err := json.Marshal(rpcRequest{Method: method, Params: params, ID: 1})
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewReader(reqBody))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.RPCAuth != "" {
			req.SetBasicAuth(splitAuth(c.RPCAuth))
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			lastErr = &TransportError{Cause: err}
			log.Warnf("rpc call %s failed (attempt %d/%d): %s", method, attempt+1, maxAttempts, err)
			if attempt < maxAttempts-1 {
				if !sleepBeforeRetry(ctx, attempt) {
					return ctx.Err()
				}
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return &PermanentHTTPError{StatusCode: resp.StatusCode, Path: path}
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(body, &rpcResp); err != nil {
			return errors.Wrapf(err, "decoding rpc response for %s", method)
		}
		if rpcResp.Error != nil {
			return errors.Errorf("rpc method %s failed: %s", method, rpcResp.Error.Message)
		}
		return json.Unmarshal(rpcResp.Result, out)
	}

	return &ErrExhausted{Attempts: maxAttempts, Path: path, Last: lastErr}
}

func splitAuth(auth string) (user, pass string) {
	for i := 0; i < len(auth); i++ {
		if auth[i] == ':' {
			return auth[:i], auth[i+1:]
		}
	}
	return auth, ""
}

// sleepBeforeRetry implements the spec's backoff: 10 * attempt * rand(1,3)
// seconds, where attempt is the zero-based attempt number that just failed.
// It returns false if ctx is canceled while waiting.
func sleepBeforeRetry(ctx context.Context, attempt int) bool {
	if attempt == 0 {
		// First failure retries immediately, matching the original
		// loop_counter == 0 case (sleep_for == 0).
		return true
	}
	jitter := rand.Intn(3) + 1
	wait := time.Duration(10*attempt*jitter) * time.Second
	select {
	case <-time.After(wait):
		return true
	case <-ctx.Done():
		return false
	}
}
