package scanner

import (
	"context"
	"math/big"

	"github.com/flare-foundation/casper-deployer/pkg/config"
	"github.com/flare-foundation/casper-deployer/pkg/rpc"
	"github.com/flare-foundation/casper-deployer/pkg/store"
	"github.com/flare-foundation/go-flare-common/pkg/logger"
	"github.com/pkg/errors"
)

const progressEvery = 1000

type Chain interface {
	GetLatestBlock(context.Context) (*rpc.Block, error)
	GetBlockByHeight(context.Context, uint64) (*rpc.Block, error)
	GetDeploy(context.Context, string) (*rpc.DeployInfo, error)
}

// Finalizer persists the records collected so far.
type Finalizer func(records []store.Undelegation) error

// FlushError is returned by Run when the final flush failed, so records
// collected during the run may be lost. Any other error from Run means the
// scan stopped early but everything it collected was flushed.
type FlushError struct {
	Err error
}

func (e *FlushError) Error() string {
	return "flushing records: " + e.Err.Error()
}

func (e *FlushError) Unwrap() error {
	return e.Err
}

type Scanner struct {
	chain       Chain
	floorHeight uint64
	minCost     *big.Int
	maxCost     *big.Int
	flushEvery  uint64
	checkpoint  Finalizer
}

// New creates a scanner. checkpoint, when not nil, is called every
// FlushEveryBlocks blocks in addition to the final flush.
func New(chain Chain, cfg config.Scanner, checkpoint Finalizer) *Scanner {
	return &Scanner{
		chain:       chain,
		floorHeight: cfg.FloorHeight,
		minCost:     new(big.Int).SetUint64(cfg.MinCost),
		maxCost:     new(big.Int).SetUint64(cfg.MaxCost),
		flushEvery:  cfg.FlushEveryBlocks,
		checkpoint:  checkpoint,
	}
}

// StartHeight is the first block after both the floor and every stored
// record.
func (s *Scanner) StartHeight(records []store.Undelegation) uint64 {
	start := s.floorHeight
	if max, ok := store.MaxHeight(records); ok && max > start {
		start = max
	}

	return start + 1
}

// Run scans from StartHeight up to the latest block at the time of the call
// and appends matches to records. finalize is called exactly once with
// everything collected, however the scan ends: completion, error,
// cancellation or panic. A failing finalize is reported as *FlushError.
func (s *Scanner) Run(ctx context.Context, records []store.Undelegation, finalize Finalizer) (result []store.Undelegation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("scan aborted: %v", r)
		}

		if ferr := finalize(records); ferr != nil {
			if err != nil {
				logger.Errorf("scan stopped: %v", err)
			}
			err = &FlushError{Err: ferr}
		}

		result = records
	}()

	start := s.StartHeight(records)
	logger.Infof("loaded %d records, start block is %d", len(records), start)

	latest, err := s.chain.GetLatestBlock(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "latest block")
	}

	end := latest.Header.Height
	logger.Infof("scanning blocks %d to %d", start, end)

	for height := start; height <= end; height++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		found, err := s.scanBlock(ctx, height)
		if err != nil {
			return nil, errors.Wrapf(err, "block %d", height)
		}

		records = append(records, found...)

		scanned := height - start + 1
		if s.checkpoint != nil && s.flushEvery > 0 && scanned%s.flushEvery == 0 {
			if err := s.checkpoint(records); err != nil {
				return nil, errors.Wrap(err, "checkpoint")
			}
		}

		if scanned%progressEvery == 0 {
			logger.Infof("scanned up to block %d, %d records", height, len(records))
		}
	}

	logger.Infof("scan finished at block %d with %d records", end, len(records))
	return records, nil
}

// scanBlock returns the matches of one block. Nothing is returned unless
// every deploy of the block was inspected.
func (s *Scanner) scanBlock(ctx context.Context, height uint64) ([]store.Undelegation, error) {
	block, err := s.chain.GetBlockByHeight(ctx, height)
	if err != nil {
		return nil, err
	}

	logger.Debugf("scanning block %d with %d deploys", height, len(block.Body.DeployHashes))

	var found []store.Undelegation
	for i, hash := range block.Body.DeployHashes {
		info, err := s.chain.GetDeploy(ctx, hash)
		if err != nil {
			return nil, errors.Wrapf(err, "deploy %s", hash)
		}

		if len(info.ExecutionResults) == 0 {
			logger.Warnf("deploy %s in block %d has no execution results, skipping", hash, height)
			continue
		}

		result := info.ExecutionResults[0].Result
		if !s.IsUndelegation(result) {
			continue
		}

		record := newRecord(block, i, info.RawDeploy, result)
		logger.Infof("undelegation %s of %s CSPR in block %d", record.DeployHash, record.AmountCspr, height)

		found = append(found, record)
	}

	return found, nil
}

// IsUndelegation reports whether the execution cost lies strictly between
// the configured bounds. The outcome does not matter.
func (s *Scanner) IsUndelegation(result rpc.ExecutionResultBody) bool {
	cost, ok := result.Cost()
	if !ok {
		return false
	}

	return cost.Cmp(s.minCost) > 0 && cost.Cmp(s.maxCost) < 0
}
