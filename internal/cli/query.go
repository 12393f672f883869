package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/flare-foundation/casper-deployer/pkg/casper"
	"github.com/flare-foundation/casper-deployer/pkg/era"
	"github.com/flare-foundation/casper-deployer/pkg/rpc"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentQueries = 8

func (a *App) balance(ctx context.Context, cmd *BalanceCmd) error {
	keys := make([]casper.PublicKey, len(cmd.Address))
	for i, addr := range cmd.Address {
		k, err := casper.ParsePublicKey(addr)
		if err != nil {
			return errors.Wrapf(err, "--address %s", addr)
		}
		keys[i] = k
	}

	node, err := a.node(cmd.Network, cmd.RPC)
	if err != nil {
		return err
	}

	balances := make([]*big.Int, len(keys))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentQueries)

	for i := range keys {
		eg.Go(func() error {
			b, err := node.GetBalance(ctx, keys[i])
			if err != nil {
				return errors.Wrapf(err, "balance of %s", keys[i])
			}

			balances[i] = b
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	for i, k := range keys {
		if _, err := fmt.Fprintf(a.out, "%s: %s CSPR (%s motes)\n", k, casper.FormatMotes(balances[i]), balances[i]); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) era(ctx context.Context, cmd *EraCmd) error {
	node, err := a.node(cmd.Network, cmd.RPC)
	if err != nil {
		return err
	}

	current, err := era.NewLocator(node, a.cfg.Era).Locate(ctx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(a.out, "%s\n", out)
	return err
}

func (a *App) validators(ctx context.Context, cmd *ValidatorsCmd) error {
	node, err := a.node(cmd.Network, cmd.RPC)
	if err != nil {
		return err
	}

	var (
		bids   []rpc.Bid
		status *rpc.Status
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		bids, err = node.GetAuctionBids(egCtx)
		return errors.Wrap(err, "auction bids")
	})
	eg.Go(func() error {
		var err error
		status, err = node.GetStatus(egCtx)
		return errors.Wrap(err, "node status")
	})

	if err := eg.Wait(); err != nil {
		return err
	}

	bids = rankBids(bids)
	if cmd.Top > 0 && len(bids) > cmd.Top {
		bids = bids[:cmd.Top]
	}

	if _, err := fmt.Fprintln(a.out, "Validators by stake:"); err != nil {
		return err
	}
	for _, b := range bids {
		staked := stakedAmount(b)
		if _, err := fmt.Fprintf(a.out, "%s  %s CSPR  (total %s CSPR, %d delegators)\n",
			b.PublicKey, casper.FormatMotes(staked), casper.FormatMotes(b.TotalStake()), len(b.Bid.Delegators),
		); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintln(a.out, "\nConnected peers:"); err != nil {
		return err
	}
	for _, host := range peerHosts(status.Peers) {
		if _, err := fmt.Fprintln(a.out, host); err != nil {
			return err
		}
	}

	return nil
}

// rankBids orders active bids by the validator's own stake, largest first.
func rankBids(bids []rpc.Bid) []rpc.Bid {
	active := make([]rpc.Bid, 0, len(bids))
	for _, b := range bids {
		if !b.Bid.Inactive {
			active = append(active, b)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		return stakedAmount(active[i]).Cmp(stakedAmount(active[j])) > 0
	})

	return active
}

func stakedAmount(b rpc.Bid) *big.Int {
	v, ok := new(big.Int).SetString(b.Bid.StakedAmount, 10)
	if !ok {
		return new(big.Int)
	}

	return v
}

// peerHosts strips ports from the peer addresses.
func peerHosts(peers []rpc.Peer) []string {
	hosts := make([]string, 0, len(peers))
	for _, p := range peers {
		host, _, _ := strings.Cut(p.Address, ":")
		hosts = append(hosts, host)
	}

	return hosts
}
