package cli

import (
	"context"
	"io"

	"github.com/flare-foundation/casper-deployer/pkg/clock"
	"github.com/flare-foundation/casper-deployer/pkg/config"
	"github.com/flare-foundation/casper-deployer/pkg/era"
	"github.com/flare-foundation/casper-deployer/pkg/rpc"
	"github.com/flare-foundation/casper-deployer/pkg/submit"
	"github.com/pkg/errors"
)

type App struct {
	cfg     *config.BaseConfig
	out     io.Writer
	clock   clock.Clock
	newNode func(url string) rpc.Node
}

func NewApp(cfg *config.BaseConfig, out io.Writer) *App {
	return &App{
		cfg:   cfg,
		out:   out,
		clock: clock.SystemClock{},
		newNode: func(url string) rpc.Node {
			client := rpc.NewClient(url, cfg.Timeout.RequestTimeout())
			return rpc.NewRetrying(client, cfg.Timeout.BackoffMaxElapsedTime(), cfg.Timeout.RequestTimeout())
		},
	}
}

func (a *App) Run(ctx context.Context, args *Args) error {
	switch {
	case args.Deploy != nil:
		return a.deploy(ctx, args.Deploy)
	case args.Transfer != nil:
		return a.transfer(ctx, args.Transfer)
	case args.Undelegate != nil:
		return a.undelegate(ctx, args.Undelegate)
	case args.Balance != nil:
		return a.balance(ctx, args.Balance)
	case args.Era != nil:
		return a.era(ctx, args.Era)
	case args.Validators != nil:
		return a.validators(ctx, args.Validators)
	}

	return errors.New("no command given")
}

// node connects to override when set and to the configured endpoint of the
// network otherwise.
func (a *App) node(network, override string) (rpc.Node, error) {
	if override != "" {
		return a.newNode(override), nil
	}

	n, err := a.cfg.Network(network)
	if err != nil {
		return nil, err
	}

	return a.newNode(n.RPC), nil
}

func (a *App) gate(node rpc.Node) *submit.Gate {
	return submit.New(node, era.NewLocator(node, a.cfg.Era), a.clock, a.cfg.Gate)
}

func (a *App) submitOptions(w WaitOptions) submit.Options {
	timeout := a.cfg.Gate.WaitTimeout
	if w.WaitTimeout != nil {
		timeout = *w.WaitTimeout
	}

	return submit.Options{
		WaitForTimestamp: w.Wait,
		WaitForNextEra:   w.NextEra,
		WaitForBalance:   w.BalanceAware,
		Timeout:          timeout,
	}
}
