package rpc

import (
	"context"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flare-foundation/casper-deployer/pkg/casper"
	"github.com/flare-foundation/go-flare-common/pkg/logger"
	"github.com/pkg/errors"
)

// Node is the full set of node queries used by the tools.
type Node interface {
	GetLatestBlock(context.Context) (*Block, error)
	GetBlockByHeight(context.Context, uint64) (*Block, error)
	GetDeploy(context.Context, string) (*DeployInfo, error)
	GetBalance(context.Context, casper.PublicKey) (*big.Int, error)
	GetAuctionBids(context.Context) ([]Bid, error)
	GetStatus(context.Context) (*Status, error)
	PutDeploy(context.Context, *casper.Deploy) (string, error)
}

// Retrying retries read queries with exponential backoff and bounds every
// attempt with a request timeout. Broadcasts are passed through untouched so
// that a deploy is never sent twice.
type Retrying struct {
	node           Node
	maxElapsedTime time.Duration
	requestTimeout time.Duration
}

func NewRetrying(node Node, maxElapsedTime, requestTimeout time.Duration) *Retrying {
	return &Retrying{
		node:           node,
		maxElapsedTime: maxElapsedTime,
		requestTimeout: requestTimeout,
	}
}

func (r *Retrying) GetLatestBlock(ctx context.Context) (*Block, error) {
	return retry(ctx, r, "GetLatestBlock", r.node.GetLatestBlock)
}

func (r *Retrying) GetBlockByHeight(ctx context.Context, height uint64) (*Block, error) {
	return retry(ctx, r, "GetBlockByHeight", func(ctx context.Context) (*Block, error) {
		return r.node.GetBlockByHeight(ctx, height)
	})
}

func (r *Retrying) GetDeploy(ctx context.Context, hash string) (*DeployInfo, error) {
	return retry(ctx, r, "GetDeploy", func(ctx context.Context) (*DeployInfo, error) {
		return r.node.GetDeploy(ctx, hash)
	})
}

func (r *Retrying) GetBalance(ctx context.Context, key casper.PublicKey) (*big.Int, error) {
	return retry(ctx, r, "GetBalance", func(ctx context.Context) (*big.Int, error) {
		return r.node.GetBalance(ctx, key)
	})
}

func (r *Retrying) GetAuctionBids(ctx context.Context) ([]Bid, error) {
	return retry(ctx, r, "GetAuctionBids", r.node.GetAuctionBids)
}

func (r *Retrying) GetStatus(ctx context.Context) (*Status, error) {
	return retry(ctx, r, "GetStatus", r.node.GetStatus)
}

func (r *Retrying) PutDeploy(ctx context.Context, d *casper.Deploy) (string, error) {
	return r.node.PutDeploy(ctx, d)
}

func retry[T any](ctx context.Context, r *Retrying, name string, fn func(context.Context) (T, error)) (T, error) {
	var result T

	err := backoff.RetryNotify(
		func() (err error) {
			ctx, cancel := r.requestContext(ctx)
			defer cancel()

			result, err = fn(ctx)
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		},
		r.newBackoff(ctx),
		func(err error, d time.Duration) {
			logger.Errorf("%s error: %v. Will retry after %v", name, err, d)
		},
	)
	if err != nil {
		var zero T
		return zero, errors.Wrapf(err, "%s failed", name)
	}

	return result, nil
}

// Malformed requests fail the same way every time.
func isPermanent(err error) bool {
	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		return false
	}

	return rpcErr.Code == codeMethodNotFound || rpcErr.Code == codeInvalidParams
}

func (r *Retrying) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, r.requestTimeout)
}

func (r *Retrying) newBackoff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(r.maxElapsedTime),
	), ctx)
}
