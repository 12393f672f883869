package rpc

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/flare-foundation/casper-deployer/pkg/casper"
)

type BlockHeader struct {
	ParentHash      string    `json:"parent_hash"`
	StateRootHash   string    `json:"state_root_hash"`
	BodyHash        string    `json:"body_hash"`
	Timestamp       time.Time `json:"timestamp"`
	EraID           uint64    `json:"era_id"`
	Height          uint64    `json:"height"`
	ProtocolVersion string    `json:"protocol_version"`
}

type BlockBody struct {
	Proposer       string   `json:"proposer"`
	DeployHashes   []string `json:"deploy_hashes"`
	TransferHashes []string `json:"transfer_hashes"`
}

type Block struct {
	Hash   string      `json:"hash"`
	Header BlockHeader `json:"header"`
	Body   BlockBody   `json:"body"`
}

type ExecutionOutcome struct {
	Cost         string `json:"cost"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type ExecutionResultBody struct {
	Success *ExecutionOutcome `json:"Success,omitempty"`
	Failure *ExecutionOutcome `json:"Failure,omitempty"`
}

// Cost of the execution, taken from whichever outcome is present.
func (r ExecutionResultBody) Cost() (*big.Int, bool) {
	var outcome *ExecutionOutcome
	switch {
	case r.Success != nil:
		outcome = r.Success
	case r.Failure != nil:
		outcome = r.Failure
	default:
		return nil, false
	}

	cost, ok := new(big.Int).SetString(outcome.Cost, 10)
	if !ok {
		return nil, false
	}

	return cost, true
}

func (r ExecutionResultBody) Succeeded() bool {
	return r.Success != nil
}

type ExecutionResult struct {
	BlockHash string              `json:"block_hash"`
	Result    ExecutionResultBody `json:"result"`
}

// DeployInfo keeps the deploy undecoded: arbitrary session code may carry
// types this client does not model, which must not fail the lookup.
type DeployInfo struct {
	RawDeploy        json.RawMessage   `json:"deploy"`
	ExecutionResults []ExecutionResult `json:"execution_results"`
}

func (d *DeployInfo) Deploy() (*casper.Deploy, error) {
	return casper.ParseDeployJSON(d.RawDeploy)
}

type Delegator struct {
	PublicKey    string `json:"public_key"`
	StakedAmount string `json:"staked_amount"`
}

type BidInfo struct {
	BondingPurse   string      `json:"bonding_purse"`
	StakedAmount   string      `json:"staked_amount"`
	DelegationRate uint8       `json:"delegation_rate"`
	Inactive       bool        `json:"inactive"`
	Delegators     []Delegator `json:"delegators"`
}

type Bid struct {
	PublicKey string  `json:"public_key"`
	Bid       BidInfo `json:"bid"`
}

// TotalStake is the validator's own stake plus all delegations.
func (b Bid) TotalStake() *big.Int {
	total := new(big.Int)
	if v, ok := new(big.Int).SetString(b.Bid.StakedAmount, 10); ok {
		total.Add(total, v)
	}

	for _, d := range b.Bid.Delegators {
		if v, ok := new(big.Int).SetString(d.StakedAmount, 10); ok {
			total.Add(total, v)
		}
	}

	return total
}

type Peer struct {
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
}

type Status struct {
	ChainspecName string `json:"chainspec_name"`
	BuildVersion  string `json:"build_version"`
	Peers         []Peer `json:"peers"`
}
