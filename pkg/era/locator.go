package era

import (
	"context"
	"time"

	"github.com/flare-foundation/casper-deployer/pkg/config"
	"github.com/flare-foundation/casper-deployer/pkg/rpc"
	"github.com/flare-foundation/go-flare-common/pkg/logger"
	"github.com/pkg/errors"
)

type BlockQuery interface {
	GetLatestBlock(context.Context) (*rpc.Block, error)
	GetBlockByHeight(context.Context, uint64) (*rpc.Block, error)
}

// Era is the era of the latest block. EstimatedEndTimestamp is the start
// plus the nominal era duration and only says when to start polling for the
// next era.
type Era struct {
	ID                    uint64    `json:"id"`
	StartHeight           uint64    `json:"start_height"`
	StartTimestamp        time.Time `json:"start_timestamp"`
	EstimatedEndTimestamp time.Time `json:"estimated_end_timestamp"`
}

type Locator struct {
	query           BlockQuery
	avgBlocksPerEra uint64
	eraDuration     time.Duration
}

func NewLocator(query BlockQuery, cfg config.Era) *Locator {
	return &Locator{
		query:           query,
		avgBlocksPerEra: cfg.AvgBlocksPerEra,
		eraDuration:     cfg.Duration,
	}
}

// LatestEraID returns the era of the newest block.
func (l *Locator) LatestEraID(ctx context.Context) (uint64, error) {
	block, err := l.query.GetLatestBlock(ctx)
	if err != nil {
		return 0, err
	}

	return block.Header.EraID, nil
}

// Locate finds the first block of the latest block's era.
//
// The search keeps a bracket (lo, hi] where block hi is in the target era
// and block lo, when it exists, is in an earlier one. A halving stride
// seeded with the average era length brackets the boundary cheaply when the
// estimate is good; a doubling gallop widens the bracket when the era turns
// out longer; a bisection then closes it. Probes never leave
// [0, latestHeight] and failed queries abort the search.
func (l *Locator) Locate(ctx context.Context) (*Era, error) {
	latest, err := l.query.GetLatestBlock(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "latest block")
	}

	s := &search{
		ctx:    ctx,
		query:  l.query,
		eraID:  latest.Header.EraID,
		latest: latest.Header.Height,
		probes: map[uint64]*rpc.BlockHeader{latest.Header.Height: &latest.Header},
		hi:     latest.Header.Height,
	}

	if err := s.stride(l.avgBlocksPerEra); err != nil {
		return nil, err
	}
	if err := s.gallop(); err != nil {
		return nil, err
	}
	if err := s.bisect(); err != nil {
		return nil, err
	}

	start := s.probes[s.hi]
	era := &Era{
		ID:                    s.eraID,
		StartHeight:           start.Height,
		StartTimestamp:        start.Timestamp,
		EstimatedEndTimestamp: start.Timestamp.Add(l.eraDuration),
	}

	logger.Infof(
		"latest era %d started at block %d (%s), estimated end %s",
		era.ID, era.StartHeight, era.StartTimestamp.UTC().Format(time.RFC3339), era.EstimatedEndTimestamp.UTC().Format(time.RFC3339),
	)

	return era, nil
}

type search struct {
	ctx    context.Context
	query  BlockQuery
	eraID  uint64
	latest uint64
	probes map[uint64]*rpc.BlockHeader

	// hi is the lowest height known to be in the target era. lo is the
	// highest height known to be before it, valid only when hasLo is set.
	hi    uint64
	lo    uint64
	hasLo bool
}

func (s *search) probe(height uint64) (*rpc.BlockHeader, error) {
	if height > s.latest {
		height = s.latest
	}

	if h, ok := s.probes[height]; ok {
		return h, nil
	}

	block, err := s.query.GetBlockByHeight(s.ctx, height)
	if err != nil {
		return nil, errors.Wrapf(err, "block %d", height)
	}

	s.probes[height] = &block.Header
	s.record(height, &block.Header)
	return &block.Header, nil
}

func (s *search) record(height uint64, h *rpc.BlockHeader) {
	if h.EraID >= s.eraID {
		if height < s.hi {
			s.hi = height
		}
		return
	}

	if !s.hasLo || height > s.lo {
		s.lo = height
		s.hasLo = true
	}
}

func (s *search) done() bool {
	if s.hi == 0 {
		return true
	}

	return s.hasLo && s.hi-s.lo <= 1
}

// stride walks backwards while in the target era and forwards once past the
// boundary, halving the step each time.
func (s *search) stride(avgBlocksPerEra uint64) error {
	height := s.latest
	step := avgBlocksPerEra
	backwards := true

	for step > 1 && !s.done() {
		step = (step + 1) / 2

		if backwards {
			height = subClamped(height, step)
		} else {
			height = min(height+step, s.latest)
		}

		h, err := s.probe(height)
		if err != nil {
			return err
		}

		backwards = h.EraID >= s.eraID
	}

	return nil
}

// gallop doubles the distance below hi until it finds an earlier era or
// reaches genesis.
func (s *search) gallop() error {
	step := uint64(1)
	for !s.hasLo && s.hi > 0 {
		if _, err := s.probe(subClamped(s.hi, step)); err != nil {
			return err
		}
		step *= 2
	}

	return nil
}

func (s *search) bisect() error {
	for !s.done() {
		mid := s.lo + (s.hi-s.lo)/2
		if _, err := s.probe(mid); err != nil {
			return err
		}
	}

	return nil
}

func subClamped(a, b uint64) uint64 {
	if b > a {
		return 0
	}

	return a - b
}
