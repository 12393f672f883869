package rpc

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flare-foundation/casper-deployer/pkg/casper"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const testAccount = "0181dd6e2f7ed815c0246f210aa169882f8e821d874a43f817f77a795147beed61"

type rpcCall struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// newTestNode serves canned results keyed by method name and records the
// calls it receives.
func newTestNode(t *testing.T, results map[string]string) (*Client, *[]rpcCall) {
	t.Helper()

	var calls []rpcCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var call rpcCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&call))
		calls = append(calls, call)

		result, ok := results[call.Method]
		if !ok {
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"Method not found"}}`))
			return
		}

		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	}))
	t.Cleanup(srv.Close)

	return NewClientWithHTTP(srv.Client(), srv.URL), &calls
}

func TestClientBlocks(t *testing.T) {
	ctx := context.Background()

	client, calls := newTestNode(t, map[string]string{
		"chain_get_block": `{"api_version":"1.4.5","block":{"hash":"ab","header":{"era_id":42,"height":450120,"timestamp":"2021-06-24T21:33:44.277Z"},"body":{"proposer":"01","deploy_hashes":["d1","d2"],"transfer_hashes":[]}}}`,
	})

	t.Run("latest block has no identifier", func(t *testing.T) {
		block, err := client.GetLatestBlock(ctx)
		require.NoError(t, err)

		require.Equal(t, uint64(42), block.Header.EraID)
		require.Equal(t, uint64(450120), block.Header.Height)
		require.Equal(t, time.Date(2021, 6, 24, 21, 33, 44, 277_000_000, time.UTC), block.Header.Timestamp.UTC())
		require.Equal(t, []string{"d1", "d2"}, block.Body.DeployHashes)
		require.JSONEq(t, `[]`, string((*calls)[0].Params))
	})

	t.Run("block by height sends the height identifier", func(t *testing.T) {
		_, err := client.GetBlockByHeight(ctx, 450120)
		require.NoError(t, err)

		last := (*calls)[len(*calls)-1]
		require.Equal(t, "chain_get_block", last.Method)
		require.JSONEq(t, `{"block_identifier":{"Height":450120}}`, string(last.Params))
	})

	t.Run("rejects a block at another height", func(t *testing.T) {
		_, err := client.GetBlockByHeight(ctx, 7)
		require.Error(t, err)
	})
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("node errors are typed", func(t *testing.T) {
		client, _ := newTestNode(t, nil)

		_, err := client.GetLatestBlock(ctx)
		require.Error(t, err)

		var rpcErr *Error
		require.True(t, errors.As(err, &rpcErr))
		require.Equal(t, codeMethodNotFound, rpcErr.Code)
	})

	t.Run("non 200 responses fail", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		}))
		defer srv.Close()

		client := NewClientWithHTTP(srv.Client(), srv.URL)
		_, err := client.GetLatestBlock(ctx)
		require.ErrorContains(t, err, "502")
	})
}

func TestClientDeploys(t *testing.T) {
	ctx := context.Background()

	client, calls := newTestNode(t, map[string]string{
		"account_put_deploy": `{"api_version":"1.4.5","deploy_hash":"f5941df6161f8118e8035521ced260ec3689940dab4a4f7a70f2c5ca7199508c"}`,
		"info_get_deploy": `{"deploy":{"hash":"aa"},"execution_results":[{"block_hash":"bb","result":{"Failure":{"cost":"450000000","error_message":"User error: 7"}}}]}`,
	})

	t.Run("put deploy returns the hash verbatim", func(t *testing.T) {
		d := &casper.Deploy{Approvals: []casper.Approval{}}

		hash, err := client.PutDeploy(ctx, d)
		require.NoError(t, err)
		require.Equal(t, "f5941df6161f8118e8035521ced260ec3689940dab4a4f7a70f2c5ca7199508c", hash)

		var params map[string]json.RawMessage
		require.NoError(t, json.Unmarshal((*calls)[0].Params, &params))
		require.Contains(t, params, "deploy")
	})

	t.Run("get deploy exposes execution cost", func(t *testing.T) {
		info, err := client.GetDeploy(ctx, "aa")
		require.NoError(t, err)
		require.Len(t, info.ExecutionResults, 1)

		result := info.ExecutionResults[0].Result
		require.False(t, result.Succeeded())

		cost, ok := result.Cost()
		require.True(t, ok)
		require.Equal(t, int64(450_000_000), cost.Int64())
	})
}

func TestClientBalance(t *testing.T) {
	client, calls := newTestNode(t, map[string]string{
		"chain_get_state_root_hash": `{"state_root_hash":"cafe"}`,
		"state_get_account_info":    `{"account":{"account_hash":"account-hash-00","main_purse":"uref-beef-007"}}`,
		"state_get_balance":         `{"balance_value":"123456789000"}`,
	})

	key, err := casper.ParsePublicKey(testAccount)
	require.NoError(t, err)

	balance, err := client.GetBalance(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, 0, big.NewInt(123_456_789_000).Cmp(balance))

	require.Len(t, *calls, 3)
	require.JSONEq(t, `{"public_key":"`+testAccount+`"}`, string((*calls)[1].Params))
	require.JSONEq(t, `{"state_root_hash":"cafe","purse_uref":"uref-beef-007"}`, string((*calls)[2].Params))
}

func TestClientAuctionAndStatus(t *testing.T) {
	client, _ := newTestNode(t, map[string]string{
		"state_get_auction_info": `{"auction_state":{"block_height":10,"bids":[{"public_key":"01aa","bid":{"staked_amount":"100","delegation_rate":10,"inactive":false,"delegators":[{"public_key":"01bb","staked_amount":"50"}]}}]}}`,
		"info_get_status":        `{"chainspec_name":"casper-test","build_version":"1.4.5","peers":[{"node_id":"tls:1","address":"1.2.3.4:35000"}]}`,
	})

	bids, err := client.GetAuctionBids(context.Background())
	require.NoError(t, err)
	require.Len(t, bids, 1)
	require.Equal(t, int64(150), bids[0].TotalStake().Int64())

	status, err := client.GetStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1.2.3.4:35000", status.Peers[0].Address)
}
