package collector

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/libc-labs/eth-rewards-collector/pkg/beaconapi"
	"github.com/libc-labs/eth-rewards-collector/pkg/cursor"
	"github.com/libc-labs/eth-rewards-collector/pkg/model"
	"github.com/libc-labs/eth-rewards-collector/pkg/relay"
	"github.com/libc-labs/eth-rewards-collector/pkg/valdir"
)

var (
	log = logrus.WithField(
		"module", "collector",
	)
)

// RewardSource is the upstream reward-data API surface the engine
// consumes. Satisfied by beaconapi.Client; stubbed in tests.
type RewardSource interface {
	LatestFinalizedEpoch() (uint64, error)
	Withdrawals(indices []uint64, epoch uint64) ([]beaconapi.Withdrawal, error)
	Proposals(indices []uint64, epoch uint64) ([]beaconapi.Proposal, error)
	EpochSlots(epoch uint64) ([]beaconapi.Slot, error)
	ExecutionBlock(blockNumber uint64) (*beaconapi.ExecutionBlock, error)
	ValidatorStatuses(indices []uint64) map[uint64]bool
}

// RelayChecker resolves whether a block was delivered through one of
// the configured MEV relays. Satisfied by relay.Monitor.
type RelayChecker interface {
	Enabled() bool
	FirstDeliveredPayload(blockNumber uint64) (*relay.BidTrace, string, bool)
}

// RewardSink receives extracted epoch windows. Saving the same window
// twice must not duplicate rows.
type RewardSink interface {
	SaveRewards(ctx context.Context, rewardBatch *model.RewardBatch) error
}

// RewardsCollector orchestrates the extraction pipeline: chunk the
// validator directory, fetch withdrawals and proposals per window,
// resolve MEV rewards per proposed block and flatten everything into
// uniform reward records for the sink.
type RewardsCollector struct {
	ctx    context.Context
	cancel context.CancelFunc

	directory *valdir.Directory
	source    RewardSource
	relays    RelayChecker
	sink      RewardSink
	epCursor  *cursor.Cursor

	startEpoch    uint64
	forcedStart   *uint64
	epochInterval uint64
	chunkSize     int

	// execution block lookups already resolved in this run
	blockCache map[uint64]*resolvedBlock

	// prometheus counters
	recordsExtracted   atomic.Uint64
	lastProcessedEpoch atomic.Uint64
	failedCycles       atomic.Uint64
}

type Option func(*RewardsCollector)

func WithStartEpoch(epoch uint64) Option {
	return func(c *RewardsCollector) {
		c.startEpoch = epoch
	}
}

// WithForcedStart makes the run begin at the given epoch regardless of
// the persisted cursor (explicit backfill/resume).
func WithForcedStart(epoch uint64) Option {
	return func(c *RewardsCollector) {
		c.forcedStart = &epoch
	}
}

func WithEpochInterval(interval uint64) Option {
	return func(c *RewardsCollector) {
		if interval > 0 {
			c.epochInterval = interval
		}
	}
}

func WithChunkSize(size int) Option {
	return func(c *RewardsCollector) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

func NewRewardsCollector(
	pCtx context.Context,
	directory *valdir.Directory,
	source RewardSource,
	relays RelayChecker,
	sink RewardSink,
	epCursor *cursor.Cursor,
	opts ...Option,
) *RewardsCollector {
	ctx, cancel := context.WithCancel(pCtx)
	c := &RewardsCollector{
		ctx:           ctx,
		cancel:        cancel,
		directory:     directory,
		source:        source,
		relays:        relays,
		sink:          sink,
		epCursor:      epCursor,
		epochInterval: 100,
		chunkSize:     100,
		blockCache:    make(map[uint64]*resolvedBlock),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *RewardsCollector) Close() {
	log.Info("controlled shutdown of the rewards collector triggered")
	c.cancel()
}

// CollectOnce extracts and saves a single epoch window without
// touching the cursor.
func (c *RewardsCollector) CollectOnce(epoch uint64) error {
	rewardBatch, err := c.ExtractEpoch(epoch)
	if err != nil {
		return err
	}
	return c.sink.SaveRewards(c.ctx, rewardBatch)
}

// nextWindowStart derives the first window to process: the epoch after
// the last committed one, or the configured start epoch on a fresh
// deployment. A corrupt cursor is a fatal configuration error.
func (c *RewardsCollector) nextWindowStart() (uint64, error) {
	lastEpoch, found, err := c.epCursor.Read()
	if err != nil {
		return 0, err
	}
	if c.forcedStart != nil {
		log.Infof("using explicitly requested start epoch %d", *c.forcedStart)
		return *c.forcedStart, nil
	}
	if !found {
		log.Infof("no cursor found, starting from configured epoch %d", c.startEpoch)
		return c.startEpoch, nil
	}
	log.Infof("cursor found, resuming after epoch %d", lastEpoch)
	return lastEpoch + c.epochInterval, nil
}

// commitWindow saves the extracted batch and only then advances the
// cursor; a failed save leaves the window uncommitted so the next
// cycle retries it.
func (c *RewardsCollector) commitWindow(rewardBatch *model.RewardBatch) error {
	if err := c.sink.SaveRewards(c.ctx, rewardBatch); err != nil {
		return err
	}
	if err := c.epCursor.Advance(rewardBatch.Epoch); err != nil {
		return err
	}
	c.lastProcessedEpoch.Store(rewardBatch.Epoch)
	return nil
}
