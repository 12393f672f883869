package scanner

import (
	"math/big"
	"time"

	"github.com/buger/jsonparser"
	"github.com/flare-foundation/casper-deployer/pkg/casper"
	"github.com/flare-foundation/casper-deployer/pkg/rpc"
	"github.com/flare-foundation/casper-deployer/pkg/store"
	"github.com/flare-foundation/go-flare-common/pkg/logger"
	"github.com/pkg/errors"
)

const amountArg = "amount"

// newRecord reads the record fields straight from the deploy JSON. Deploys
// from the chain may use session code this module cannot decode, so missing
// or odd fields degrade to empty values instead of failing the scan.
func newRecord(block *rpc.Block, position int, deploy []byte, result rpc.ExecutionResultBody) store.Undelegation {
	hash, _ := jsonparser.GetString(deploy, "hash")
	account, _ := jsonparser.GetString(deploy, "header", "account")

	amount := sessionAmount(deploy)

	return store.Undelegation{
		Era:         block.Header.EraID,
		Block:       block.Header.Height,
		DeployHash:  hash,
		Timestamp:   deployTimestamp(deploy),
		Address:     account,
		AmountCspr:  casper.FormatMotes(amount),
		AmountMotes: amount.String(),
		Success:     store.YesNo(result.Succeeded()),
		Position:    position,
	}
}

func deployTimestamp(deploy []byte) string {
	raw, err := jsonparser.GetString(deploy, "header", "timestamp")
	if err != nil {
		return ""
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return raw
	}

	return casper.NewTimestamp(t).String()
}

// sessionAmount is the first "amount" argument of the session, or zero.
func sessionAmount(deploy []byte) *big.Int {
	amount, err := findSessionAmount(deploy)
	if err != nil {
		logger.Debugf("no usable amount in deploy: %v", err)
		return new(big.Int)
	}

	return amount
}

func findSessionAmount(deploy []byte) (*big.Int, error) {
	session, _, _, err := jsonparser.Get(deploy, "session")
	if err != nil {
		return nil, errors.Wrap(err, "session")
	}

	var args []byte
	err = jsonparser.ObjectEach(session, func(_ []byte, variant []byte, _ jsonparser.ValueType, _ int) error {
		if args == nil {
			args, _, _, _ = jsonparser.Get(variant, "args")
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "session variant")
	}
	if args == nil {
		return nil, errors.New("session has no args")
	}

	var value []byte
	_, err = jsonparser.ArrayEach(args, func(pair []byte, _ jsonparser.ValueType, _ int, _ error) {
		if value != nil {
			return
		}

		name, err := jsonparser.GetString(pair, "[0]")
		if err != nil || name != amountArg {
			return
		}

		value, _, _, _ = jsonparser.Get(pair, "[1]")
	})
	if err != nil {
		return nil, errors.Wrap(err, "session args")
	}
	if value == nil {
		return nil, casper.ErrArgNotFound
	}

	return decodeAmount(value)
}

// decodeAmount prefers the serialized bytes and falls back to the parsed
// rendering.
func decodeAmount(value []byte) (*big.Int, error) {
	var v casper.CLValue
	if err := v.UnmarshalJSON(value); err == nil {
		if amount, err := v.BigInt(); err == nil {
			return amount, nil
		}
	}

	parsed, vt, _, err := jsonparser.Get(value, "parsed")
	if err != nil {
		return nil, errors.Wrap(err, "amount")
	}

	if vt != jsonparser.String && vt != jsonparser.Number {
		return nil, errors.Errorf("amount of type %s", vt)
	}

	amount, ok := new(big.Int).SetString(string(parsed), 10)
	if !ok {
		return nil, errors.Errorf("invalid amount %q", parsed)
	}

	return amount, nil
}
