package collector

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libc-labs/eth-rewards-collector/pkg/beaconapi"
	"github.com/libc-labs/eth-rewards-collector/pkg/cursor"
	"github.com/libc-labs/eth-rewards-collector/pkg/model"
	"github.com/libc-labs/eth-rewards-collector/pkg/relay"
	"github.com/libc-labs/eth-rewards-collector/pkg/valdir"
)

// stubSource replays canned API data, keyed the way the engine queries
// it: withdrawals by window-end epoch, proposals by window-start epoch.
type stubSource struct {
	latest      uint64
	latestErr   error
	withdrawals map[uint64][]beaconapi.Withdrawal
	proposals   map[uint64][]beaconapi.Proposal
	slots       []beaconapi.Slot
	slotsErr    error
	blocks      map[uint64]*beaconapi.ExecutionBlock
	exited      map[uint64]bool

	execCalls map[uint64]int
}

func (s *stubSource) LatestFinalizedEpoch() (uint64, error) {
	return s.latest, s.latestErr
}

func (s *stubSource) Withdrawals(indices []uint64, epoch uint64) ([]beaconapi.Withdrawal, error) {
	return s.withdrawals[epoch], nil
}

func (s *stubSource) Proposals(indices []uint64, epoch uint64) ([]beaconapi.Proposal, error) {
	return s.proposals[epoch], nil
}

func (s *stubSource) EpochSlots(epoch uint64) ([]beaconapi.Slot, error) {
	return s.slots, s.slotsErr
}

func (s *stubSource) ExecutionBlock(blockNumber uint64) (*beaconapi.ExecutionBlock, error) {
	if s.execCalls == nil {
		s.execCalls = make(map[uint64]int)
	}
	s.execCalls[blockNumber]++
	return s.blocks[blockNumber], nil
}

func (s *stubSource) ValidatorStatuses(indices []uint64) map[uint64]bool {
	return s.exited
}

type stubSink struct {
	saved   []*model.RewardBatch
	saveErr error
}

func (s *stubSink) SaveRewards(ctx context.Context, rewardBatch *model.RewardBatch) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, rewardBatch)
	return nil
}

type stubRelays struct {
	bid   *relay.BidTrace
	tag   string
	calls int
}

func (s *stubRelays) Enabled() bool { return true }

func (s *stubRelays) FirstDeliveredPayload(blockNumber uint64) (*relay.BidTrace, string, bool) {
	s.calls++
	if s.bid == nil {
		return nil, "", false
	}
	return s.bid, s.tag, true
}

func testDirectory(t *testing.T, lines string) *valdir.Directory {
	t.Helper()
	path := filepath.Join(t.TempDir(), "validators.csv")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	dir, err := valdir.Load(path)
	require.NoError(t, err)
	return dir
}

func testCollector(t *testing.T, dir *valdir.Directory, source RewardSource, relays RelayChecker, sink RewardSink) *RewardsCollector {
	t.Helper()
	return NewRewardsCollector(
		context.Background(),
		dir,
		source,
		relays,
		sink,
		cursor.New(filepath.Join(t.TempDir(), ".lastepoch")),
		WithEpochInterval(100),
	)
}

func TestExtractWithdrawalScenario(t *testing.T) {
	dir := testDirectory(t, "1,0xaa,32,A,0x1\n")
	source := &stubSource{
		withdrawals: map[uint64][]beaconapi.Withdrawal{
			199: {{ValidatorIndex: 1, Amount: json.Number("32000000000"), Epoch: 100}},
		},
		slots: []beaconapi.Slot{
			{ExecTimestamp: 1691000000},
			{ExecTimestamp: 1691000384},
		},
	}

	c := testCollector(t, dir, source, nil, &stubSink{})
	rewardBatch, err := c.ExtractEpoch(100)
	require.NoError(t, err)
	require.Len(t, rewardBatch.Records, 1)

	record := rewardBatch.Records[0]
	assert.Equal(t, model.RecordTypeWithdrawal, record.RecordType)
	assert.Equal(t, uint64(1), record.ValidatorIndex)
	assert.Equal(t, "32000000000", record.Amount)
	assert.Equal(t, uint64(100), record.Epoch)
	// the epoch's last slot time stands in for the withdrawal time
	assert.Equal(t, int64(1691000384), record.Datetime)
	assert.Equal(t, "32", record.ValidatorType)
	assert.Equal(t, "A", record.Node)
	assert.Equal(t, "0x1", record.Minipool)
	assert.False(t, record.IsExit)
}

func TestExtractMissingBlockNumber(t *testing.T) {
	dir := testDirectory(t, "1,0xaa,32,A,0x1\n")
	source := &stubSource{
		proposals: map[uint64][]beaconapi.Proposal{
			100: {{Proposer: 1, ExecBlockNumber: 0, Epoch: 101}},
		},
	}

	c := testCollector(t, dir, source, nil, &stubSink{})
	rewardBatch, err := c.ExtractEpoch(100)
	require.NoError(t, err)
	assert.Empty(t, rewardBatch.Records)
	assert.Empty(t, source.execCalls)
}

func TestExtractMevFallback(t *testing.T) {
	dir := testDirectory(t, "1,0xaa,16,A,0x1\n2,0xbb,8,B,0x2\n")
	source := &stubSource{
		proposals: map[uint64][]beaconapi.Proposal{
			100: {
				{Proposer: 1, ExecBlockNumber: 10, Epoch: 101},
				{Proposer: 2, ExecBlockNumber: 11, Epoch: 102},
			},
		},
		blocks: map[uint64]*beaconapi.ExecutionBlock{
			10: {
				ProducerReward: json.Number("42000000000000000"),
				BlockMevReward: json.Number("0"),
				Timestamp:      1691000100,
				PosConsensus:   beaconapi.PosConsensus{ProposerIndex: 1, Epoch: 101},
			},
			11: {
				ProducerReward: json.Number("10000000000000000"),
				BlockMevReward: json.Number("90000000000000000"),
				Relay:          &beaconapi.RelayInfo{Tag: "flashbots"},
				Timestamp:      1691000200,
				PosConsensus:   beaconapi.PosConsensus{ProposerIndex: 2, Epoch: 102},
			},
		},
	}

	c := testCollector(t, dir, source, nil, &stubSink{})
	rewardBatch, err := c.ExtractEpoch(100)
	require.NoError(t, err)
	require.Len(t, rewardBatch.Records, 2)

	vanilla := rewardBatch.Records[0]
	assert.Equal(t, model.RecordTypeProposal, vanilla.RecordType)
	assert.Equal(t, "", vanilla.MevSource)
	assert.Equal(t, "42000000000000000", vanilla.Amount)
	assert.Equal(t, uint64(10), vanilla.ExecBlockNumber)

	mev := rewardBatch.Records[1]
	assert.Equal(t, "flashbots", mev.MevSource)
	assert.Equal(t, "90000000000000000", mev.Amount)
	assert.Equal(t, uint64(102), mev.Epoch)
	assert.Equal(t, int64(1691000200), mev.Datetime)
}

func TestExtractRelayCheckerFallback(t *testing.T) {
	dir := testDirectory(t, "1,0xaa,16,A,0x1\n")
	source := &stubSource{
		proposals: map[uint64][]beaconapi.Proposal{
			100: {{Proposer: 1, ExecBlockNumber: 10, Epoch: 101}},
		},
		blocks: map[uint64]*beaconapi.ExecutionBlock{
			10: {
				ProducerReward: json.Number("42"),
				BlockMevReward: json.Number("0"),
				PosConsensus:   beaconapi.PosConsensus{ProposerIndex: 1, Epoch: 101},
			},
		},
	}
	relays := &stubRelays{
		bid: &relay.BidTrace{Value: "77000000000000000"},
		tag: "relay.example.org",
	}

	c := testCollector(t, dir, source, relays, &stubSink{})
	rewardBatch, err := c.ExtractEpoch(100)
	require.NoError(t, err)
	require.Len(t, rewardBatch.Records, 1)

	record := rewardBatch.Records[0]
	assert.Equal(t, "relay.example.org", record.MevSource)
	assert.Equal(t, "77000000000000000", record.Amount)
	assert.Equal(t, 1, relays.calls)
}

func TestExtractBlockDedup(t *testing.T) {
	dir := testDirectory(t, "1,0xaa,16,A,0x1\n")
	source := &stubSource{
		proposals: map[uint64][]beaconapi.Proposal{
			100: {
				{Proposer: 1, ExecBlockNumber: 10, Epoch: 101},
				{Proposer: 1, ExecBlockNumber: 10, Epoch: 101},
			},
		},
		blocks: map[uint64]*beaconapi.ExecutionBlock{
			10: {
				ProducerReward: json.Number("42"),
				BlockMevReward: json.Number("0"),
				PosConsensus:   beaconapi.PosConsensus{ProposerIndex: 1, Epoch: 101},
			},
		},
	}

	c := testCollector(t, dir, source, nil, &stubSink{})
	rewardBatch, err := c.ExtractEpoch(100)
	require.NoError(t, err)
	assert.Len(t, rewardBatch.Records, 2)
	assert.Equal(t, 1, source.execCalls[10])
}

func TestExtractDirectoryJoinMiss(t *testing.T) {
	dir := testDirectory(t, "1,0xaa,32,A,0x1\n")
	source := &stubSource{
		withdrawals: map[uint64][]beaconapi.Withdrawal{
			199: {{ValidatorIndex: 7, Amount: json.Number("1000"), Epoch: 150}},
		},
		slots: []beaconapi.Slot{{ExecTimestamp: 1691000384}},
	}

	c := testCollector(t, dir, source, nil, &stubSink{})
	_, err := c.ExtractEpoch(100)
	assert.Error(t, err)
}

func TestExtractExitFlag(t *testing.T) {
	dir := testDirectory(t, "1,0xaa,32,A,0x1\n")
	source := &stubSource{
		withdrawals: map[uint64][]beaconapi.Withdrawal{
			199: {{ValidatorIndex: 1, Amount: json.Number("32000000000"), Epoch: 150}},
		},
		slots:  []beaconapi.Slot{{ExecTimestamp: 1691000384}},
		exited: map[uint64]bool{1: true},
	}

	c := testCollector(t, dir, source, nil, &stubSink{})
	rewardBatch, err := c.ExtractEpoch(100)
	require.NoError(t, err)
	require.Len(t, rewardBatch.Records, 1)
	assert.True(t, rewardBatch.Records[0].IsExit)
}

func TestExtractWindowFiltering(t *testing.T) {
	dir := testDirectory(t, "1,0xaa,32,A,0x1\n")
	// the endpoint aggregates the trailing 100 epochs, so with a 50
	// epoch interval the queries of consecutive windows overlap and
	// both return the same withdrawal
	source := &stubSource{
		withdrawals: map[uint64][]beaconapi.Withdrawal{
			149: {{ValidatorIndex: 1, Amount: json.Number("5"), Epoch: 120}},
			199: {{ValidatorIndex: 1, Amount: json.Number("5"), Epoch: 120}},
		},
		slots: []beaconapi.Slot{{ExecTimestamp: 1691000384}},
	}

	c := NewRewardsCollector(context.Background(), dir, source, nil, &stubSink{},
		cursor.New(filepath.Join(t.TempDir(), ".lastepoch")),
		WithEpochInterval(50))

	first, err := c.ExtractEpoch(100)
	require.NoError(t, err)
	require.Len(t, first.Records, 1)
	assert.Equal(t, uint64(120), first.Records[0].Epoch)

	// the withdrawal belongs to window 100-149 only
	second, err := c.ExtractEpoch(150)
	require.NoError(t, err)
	assert.Empty(t, second.Records)
}

func TestExtractDeterminism(t *testing.T) {
	dir := testDirectory(t, "1,0xaa,32,A,0x1\n2,0xbb,16,B,0x2\n")
	source := &stubSource{
		withdrawals: map[uint64][]beaconapi.Withdrawal{
			199: {
				{ValidatorIndex: 1, Amount: json.Number("123"), Epoch: 120},
				{ValidatorIndex: 2, Amount: json.Number("456"), Epoch: 130},
			},
		},
		proposals: map[uint64][]beaconapi.Proposal{
			100: {{Proposer: 2, ExecBlockNumber: 10, Epoch: 140}},
		},
		slots: []beaconapi.Slot{{ExecTimestamp: 1691000384}},
		blocks: map[uint64]*beaconapi.ExecutionBlock{
			10: {
				ProducerReward: json.Number("42"),
				BlockMevReward: json.Number("99"),
				Relay:          &beaconapi.RelayInfo{Tag: "aestus"},
				Timestamp:      1691000100,
				PosConsensus:   beaconapi.PosConsensus{ProposerIndex: 2, Epoch: 140},
			},
		},
	}

	c := testCollector(t, dir, source, nil, &stubSink{})
	first, err := c.ExtractEpoch(100)
	require.NoError(t, err)
	second, err := c.ExtractEpoch(100)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCollectOnce(t *testing.T) {
	dir := testDirectory(t, "1,0xaa,32,A,0x1\n")
	source := &stubSource{
		withdrawals: map[uint64][]beaconapi.Withdrawal{
			199: {{ValidatorIndex: 1, Amount: json.Number("1"), Epoch: 100}},
		},
		slots: []beaconapi.Slot{{ExecTimestamp: 1691000384}},
	}
	sink := &stubSink{}

	c := testCollector(t, dir, source, nil, sink)
	require.NoError(t, c.CollectOnce(100))
	require.Len(t, sink.saved, 1)
	assert.Equal(t, uint64(100), sink.saved[0].Epoch)

	sink.saveErr = errors.New("sink down")
	assert.Error(t, c.CollectOnce(100))
}
