package submit

import (
	"context"
	"math/big"
	"time"

	"github.com/flare-foundation/casper-deployer/pkg/casper"
	"github.com/flare-foundation/casper-deployer/pkg/clock"
	"github.com/flare-foundation/casper-deployer/pkg/config"
	"github.com/flare-foundation/casper-deployer/pkg/era"
	"github.com/flare-foundation/go-flare-common/pkg/logger"
	"github.com/pkg/errors"
)

type Chain interface {
	GetBalance(context.Context, casper.PublicKey) (*big.Int, error)
	PutDeploy(context.Context, *casper.Deploy) (string, error)
}

type EraLocator interface {
	Locate(context.Context) (*era.Era, error)
	LatestEraID(context.Context) (uint64, error)
}

// Options select the waits performed before broadcasting. They always run
// in the order timestamp, era, balance.
type Options struct {
	WaitForTimestamp bool
	WaitForNextEra   bool
	WaitForBalance   bool

	// Timeout bounds all waits together. Zero waits indefinitely.
	Timeout time.Duration
}

type Gate struct {
	chain           Chain
	locator         EraLocator
	clock           clock.Clock
	pollInterval    time.Duration
	timestampBuffer time.Duration
}

func New(chain Chain, locator EraLocator, clk clock.Clock, cfg config.Gate) *Gate {
	return &Gate{
		chain:           chain,
		locator:         locator,
		clock:           clk,
		pollInterval:    cfg.PollInterval,
		timestampBuffer: cfg.TimestampBuffer,
	}
}

// Submit performs the selected waits and then broadcasts the deploy once.
// Broadcast errors are returned as they are, without retry.
func (g *Gate) Submit(ctx context.Context, d *casper.Deploy, opts Options) (string, error) {
	if err := g.wait(ctx, d, opts); err != nil {
		return "", err
	}

	hash, err := g.chain.PutDeploy(ctx, d)
	if err != nil {
		return "", errors.Wrap(err, "broadcasting deploy")
	}

	return hash, nil
}

func (g *Gate) wait(ctx context.Context, d *casper.Deploy, opts Options) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if opts.WaitForTimestamp {
		if err := g.waitForTimestamp(ctx, d.Header.Timestamp.Time); err != nil {
			return errors.Wrap(err, "waiting for deploy timestamp")
		}
	}

	if opts.WaitForNextEra {
		if err := g.waitForNextEraAfter(ctx, d.Header.Timestamp.Time); err != nil {
			return errors.Wrap(err, "waiting for next era")
		}
	}

	if opts.WaitForBalance {
		amount := deployAmount(d)
		if err := g.waitForBalance(ctx, d.Signer(), amount); err != nil {
			return errors.Wrap(err, "waiting for balance")
		}
	}

	return nil
}

// Nodes reject deploys whose timestamp is ahead of their clock.
func (g *Gate) waitForTimestamp(ctx context.Context, ts time.Time) error {
	if err := waitUntil(ctx, g.clock, ts.Add(g.timestampBuffer)); err != nil {
		return err
	}

	logger.Infof("deploy timestamp %s reached", ts.UTC().Format(time.RFC3339))
	return nil
}

func (g *Gate) waitForNextEraAfter(ctx context.Context, ts time.Time) error {
	current, err := g.locator.Locate(ctx)
	if err != nil {
		return err
	}

	if ts.Before(current.StartTimestamp) {
		logger.Info("next era already reached")
		return nil
	}

	if err := waitUntil(ctx, g.clock, current.EstimatedEndTimestamp); err != nil {
		return err
	}

	return g.waitForEraAfter(ctx, current.ID)
}

func (g *Gate) waitForEraAfter(ctx context.Context, eraID uint64) error {
	logger.Infof("waiting until era %d", eraID+1)

	latest, err := g.locator.LatestEraID(ctx)
	if err != nil {
		return err
	}

	for latest <= eraID {
		if err := sleep(ctx, g.clock, g.pollInterval); err != nil {
			return err
		}

		latest, err = g.locator.LatestEraID(ctx)
		if err != nil {
			return err
		}
	}

	logger.Infof("era %d reached", latest)
	return nil
}

func (g *Gate) waitForBalance(ctx context.Context, account casper.PublicKey, amount *big.Int) error {
	logger.Infof("waiting until account %s has more than %s CSPR", account, casper.FormatMotes(amount))

	for {
		balance, err := g.chain.GetBalance(ctx, account)
		if err != nil {
			return err
		}

		if balance.Cmp(amount) > 0 {
			logger.Infof("account %s has %s CSPR", account, casper.FormatMotes(balance))
			return nil
		}

		if err := sleep(ctx, g.clock, g.pollInterval); err != nil {
			return err
		}
	}
}

// deployAmount is the session's amount argument, or zero when it is missing
// or cannot be decoded.
func deployAmount(d *casper.Deploy) *big.Int {
	amount, err := d.Session.Args().BigInt("amount")
	if err != nil {
		logger.Errorf("cannot read deploy amount, using 0: %v", err)
		return new(big.Int)
	}

	return amount
}
