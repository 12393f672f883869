package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/flare-foundation/casper-deployer/pkg/casper"
	"github.com/pkg/errors"
)

const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// Error is an error object returned by the node.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client talks JSON-RPC 2.0 to a single node endpoint.
type Client struct {
	httpClient *http.Client
	url        string
	nextID     atomic.Uint64
}

func NewClient(url string, timeout time.Duration) *Client {
	return NewClientWithHTTP(&http.Client{Timeout: timeout}, url)
}

func NewClientWithHTTP(httpClient *http.Client, url string) *Client {
	return &Client{
		httpClient: httpClient,
		url:        url,
	}
}

func (c *Client) URL() string {
	return c.url
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	if params == nil {
		params = []any{}
	}

	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.Wrapf(err, "%s: encoding request", method)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "%s: creating request", method)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrapf(err, "%s: making request", method)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("%s: unexpected status code %d: %s", method, resp.StatusCode, bytes.TrimSpace(msg))
	}

	var rpcResp response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return errors.Wrapf(err, "%s: decoding response", method)
	}

	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if len(rpcResp.Result) == 0 {
		return errors.Errorf("%s: empty result", method)
	}

	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return errors.Wrapf(err, "%s: decoding result", method)
	}

	return nil
}

type blockResult struct {
	Block *Block `json:"block"`
}

func (c *Client) GetLatestBlock(ctx context.Context) (*Block, error) {
	return c.getBlock(ctx, nil)
}

func (c *Client) GetBlockByHeight(ctx context.Context, height uint64) (*Block, error) {
	params := map[string]any{
		"block_identifier": map[string]uint64{"Height": height},
	}

	block, err := c.getBlock(ctx, params)
	if err != nil {
		return nil, err
	}

	if block.Header.Height != height {
		return nil, errors.Errorf("node returned block %d for height %d", block.Header.Height, height)
	}

	return block, nil
}

func (c *Client) getBlock(ctx context.Context, params any) (*Block, error) {
	var res blockResult
	if err := c.call(ctx, "chain_get_block", params, &res); err != nil {
		return nil, err
	}

	if res.Block == nil {
		return nil, errors.New("chain_get_block: block not found")
	}

	return res.Block, nil
}

func (c *Client) GetDeploy(ctx context.Context, hash string) (*DeployInfo, error) {
	var res DeployInfo
	if err := c.call(ctx, "info_get_deploy", map[string]string{"deploy_hash": hash}, &res); err != nil {
		return nil, err
	}

	return &res, nil
}

// PutDeploy broadcasts a signed deploy and returns the hash reported by
// the node.
func (c *Client) PutDeploy(ctx context.Context, d *casper.Deploy) (string, error) {
	var res struct {
		DeployHash string `json:"deploy_hash"`
	}

	if err := c.call(ctx, "account_put_deploy", map[string]*casper.Deploy{"deploy": d}, &res); err != nil {
		return "", err
	}

	return res.DeployHash, nil
}

// GetBalance returns the main purse balance of the account owned by key.
func (c *Client) GetBalance(ctx context.Context, key casper.PublicKey) (*big.Int, error) {
	var root struct {
		StateRootHash string `json:"state_root_hash"`
	}
	if err := c.call(ctx, "chain_get_state_root_hash", nil, &root); err != nil {
		return nil, err
	}

	var account struct {
		Account struct {
			MainPurse string `json:"main_purse"`
		} `json:"account"`
	}
	if err := c.call(ctx, "state_get_account_info", map[string]string{"public_key": key.Hex()}, &account); err != nil {
		return nil, err
	}

	var balance struct {
		BalanceValue string `json:"balance_value"`
	}
	params := map[string]string{
		"state_root_hash": root.StateRootHash,
		"purse_uref":      account.Account.MainPurse,
	}
	if err := c.call(ctx, "state_get_balance", params, &balance); err != nil {
		return nil, err
	}

	v, ok := new(big.Int).SetString(balance.BalanceValue, 10)
	if !ok {
		return nil, errors.Errorf("state_get_balance: invalid balance %q", balance.BalanceValue)
	}

	return v, nil
}

func (c *Client) GetAuctionBids(ctx context.Context) ([]Bid, error) {
	var res struct {
		AuctionState struct {
			BlockHeight uint64 `json:"block_height"`
			Bids        []Bid  `json:"bids"`
		} `json:"auction_state"`
	}

	if err := c.call(ctx, "state_get_auction_info", nil, &res); err != nil {
		return nil, err
	}

	return res.AuctionState.Bids, nil
}

func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	var res Status
	if err := c.call(ctx, "info_get_status", nil, &res); err != nil {
		return nil, err
	}

	return &res, nil
}
