package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flare-foundation/casper-deployer/pkg/casper"
	"github.com/flare-foundation/casper-deployer/pkg/config"
	"github.com/flare-foundation/go-flare-common/pkg/logger"
	"github.com/pkg/errors"
)

func (a *App) deploy(ctx context.Context, cmd *DeployCmd) error {
	data, err := deployInput(cmd)
	if err != nil {
		return err
	}

	d, err := casper.ParseDeployJSON(data)
	if err != nil {
		return err
	}

	if err := d.Validate(); err != nil {
		return errors.Wrap(err, "invalid deploy")
	}

	return a.broadcast(ctx, d, cmd.RPC, cmd.WaitOptions)
}

func deployInput(cmd *DeployCmd) ([]byte, error) {
	switch {
	case cmd.JSON != "" && cmd.File != "":
		return nil, errors.New("use either --json or --file, not both")
	case cmd.JSON != "":
		return []byte(cmd.JSON), nil
	case cmd.File != "":
		data, err := os.ReadFile(cmd.File)
		return data, errors.Wrap(err, "reading deploy file")
	}

	return nil, errors.New("one of --json or --file is required")
}

func (a *App) broadcast(ctx context.Context, d *casper.Deploy, rpcOverride string, w WaitOptions) error {
	node, err := a.node(d.Header.ChainName, rpcOverride)
	if err != nil {
		return err
	}

	hash, err := a.gate(node).Submit(ctx, d, a.submitOptions(w))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(a.out, "\nTx hash:\n\n%s\n", hash)
	return err
}

func (a *App) transfer(ctx context.Context, cmd *TransferCmd) error {
	amount, err := casper.ParseMotes(cmd.Amount)
	if err != nil {
		return errors.Wrap(err, "--amount")
	}

	target, err := casper.ParsePublicKey(cmd.To)
	if err != nil {
		return errors.Wrap(err, "--to")
	}

	payment, err := a.payment(cmd.Payment, a.cfg.Deploy.TransferPayment)
	if err != nil {
		return err
	}

	kp, params, err := a.deployParams(&cmd.BuildOptions)
	if err != nil {
		return err
	}

	d, err := casper.NewTransfer(params, kp, amount, target, cmd.Memo, payment)
	if err != nil {
		return err
	}

	return a.finish(ctx, d, &cmd.BuildOptions)
}

func (a *App) undelegate(ctx context.Context, cmd *UndelegateCmd) error {
	amount, err := casper.ParseMotes(cmd.Amount)
	if err != nil {
		return errors.Wrap(err, "--amount")
	}

	validator, err := casper.ParsePublicKey(cmd.Validator)
	if err != nil {
		return errors.Wrap(err, "--validator")
	}

	contract, err := a.stakingContract(cmd.Network, cmd.Contract)
	if err != nil {
		return err
	}

	payment, err := a.payment(cmd.Payment, a.cfg.Deploy.UndelegatePayment)
	if err != nil {
		return err
	}

	kp, params, err := a.deployParams(&cmd.BuildOptions)
	if err != nil {
		return err
	}

	d, err := casper.NewUndelegate(params, kp, contract, validator, amount, payment)
	if err != nil {
		return err
	}

	return a.finish(ctx, d, &cmd.BuildOptions)
}

func (a *App) finish(ctx context.Context, d *casper.Deploy, opts *BuildOptions) error {
	if opts.Broadcast {
		return a.broadcast(ctx, d, opts.RPC, opts.WaitOptions)
	}

	return a.printSigned(d, opts.CleanJSON)
}

// printSigned writes the wrapped deploy JSON. Unless clean is set the JSON
// is encoded once more as a JSON string, ready to be pasted into --json.
func (a *App) printSigned(d *casper.Deploy, clean bool) error {
	out, err := d.DeployJSON()
	if err != nil {
		return err
	}

	if !clean {
		if out, err = json.Marshal(string(out)); err != nil {
			return err
		}
	}

	_, err = fmt.Fprintf(a.out, "\nSigned transaction:\n\n%s\n", out)
	return err
}

func (a *App) deployParams(opts *BuildOptions) (*casper.KeyPair, casper.DeployParams, error) {
	if _, err := a.cfg.Network(opts.Network); err != nil {
		return nil, casper.DeployParams{}, err
	}

	kp, err := casper.LoadKeyPair(opts.Pub, opts.Pk)
	if err != nil {
		return nil, casper.DeployParams{}, err
	}

	logger.Infof("signer account is %s", kp.PublicKey)

	ttl, err := parseTTL(opts.TTL, a.cfg.Deploy)
	if err != nil {
		return nil, casper.DeployParams{}, err
	}

	gasPrice := opts.GasPrice
	if gasPrice == 0 {
		gasPrice = a.cfg.Deploy.GasPrice
	}

	ts := casper.NewTimestamp(a.clock.Now())
	if opts.Timestamp != 0 {
		ts = casper.TimestampFromMillis(opts.Timestamp)
	}

	return kp, casper.DeployParams{
		ChainName: opts.Network,
		GasPrice:  gasPrice,
		TTL:       ttl,
		Timestamp: ts,
	}, nil
}

// parseTTL accepts humantime ("30m", "1day 6h") or a bare number of
// milliseconds.
func parseTTL(s string, cfg config.Deploy) (casper.TTL, error) {
	if s == "" {
		return casper.TTL(cfg.TTL), nil
	}

	if ms, err := strconv.ParseUint(strings.TrimSpace(s), 10, 63); err == nil {
		return casper.TTL(time.Duration(ms) * time.Millisecond), nil
	}

	ttl, err := casper.ParseTTL(s)
	return ttl, errors.Wrap(err, "--ttl")
}

func (a *App) payment(flag string, fallback uint64) (*big.Int, error) {
	if flag == "" {
		return new(big.Int).SetUint64(fallback), nil
	}

	payment, err := casper.ParseMotes(flag)
	return payment, errors.Wrap(err, "--payment")
}

func (a *App) stakingContract(network, flag string) (casper.Hash, error) {
	if flag == "" {
		n, err := a.cfg.Network(network)
		if err != nil {
			return casper.Hash{}, err
		}
		flag = n.StakingContract
	}

	h, err := casper.ParseHash(flag)
	return h, errors.Wrap(err, "staking contract")
}
