package collector

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libc-labs/eth-rewards-collector/pkg/beaconapi"
	"github.com/libc-labs/eth-rewards-collector/pkg/cursor"
)

func TestNextWindowStart(t *testing.T) {
	dir := testDirectory(t, "1,0xaa,32,A,0x1\n")
	source := &stubSource{}

	t.Run("fresh deployment uses configured start", func(t *testing.T) {
		c := NewRewardsCollector(context.Background(), dir, source, nil, &stubSink{},
			cursor.New(filepath.Join(t.TempDir(), ".lastepoch")),
			WithStartEpoch(200), WithEpochInterval(100))
		next, err := c.nextWindowStart()
		require.NoError(t, err)
		assert.Equal(t, uint64(200), next)
	})

	t.Run("cursor resumes one interval later", func(t *testing.T) {
		epCursor := cursor.New(filepath.Join(t.TempDir(), ".lastepoch"))
		require.NoError(t, epCursor.Advance(300))

		c := NewRewardsCollector(context.Background(), dir, source, nil, &stubSink{},
			epCursor, WithStartEpoch(200), WithEpochInterval(100))
		next, err := c.nextWindowStart()
		require.NoError(t, err)
		assert.Equal(t, uint64(400), next)
	})

	t.Run("forced start overrides the cursor", func(t *testing.T) {
		epCursor := cursor.New(filepath.Join(t.TempDir(), ".lastepoch"))
		require.NoError(t, epCursor.Advance(300))

		c := NewRewardsCollector(context.Background(), dir, source, nil, &stubSink{},
			epCursor, WithEpochInterval(100), WithForcedStart(100))
		next, err := c.nextWindowStart()
		require.NoError(t, err)
		assert.Equal(t, uint64(100), next)
	})

	t.Run("corrupt cursor is fatal", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".lastepoch")
		require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

		c := NewRewardsCollector(context.Background(), dir, source, nil, &stubSink{},
			cursor.New(path), WithEpochInterval(100))
		_, err := c.nextWindowStart()
		assert.Error(t, err)
	})
}

func TestMonitorCycle(t *testing.T) {
	dir := testDirectory(t, "1,0xaa,32,A,0x1\n")

	t.Run("waits for a fully finalized window", func(t *testing.T) {
		source := &stubSource{latest: 198}
		sink := &stubSink{}
		c := testCollector(t, dir, source, nil, sink)

		assert.False(t, c.monitorCycle(100))
		assert.Empty(t, sink.saved)
	})

	t.Run("extracts and commits when finalized", func(t *testing.T) {
		source := &stubSource{
			latest: 199,
			withdrawals: map[uint64][]beaconapi.Withdrawal{
				199: {{ValidatorIndex: 1, Amount: "5", Epoch: 150}},
			},
			slots: []beaconapi.Slot{{ExecTimestamp: 1691000384}},
		}
		sink := &stubSink{}
		epCursor := cursor.New(filepath.Join(t.TempDir(), ".lastepoch"))
		c := NewRewardsCollector(context.Background(), dir, source, nil, sink,
			epCursor, WithEpochInterval(100))

		assert.True(t, c.monitorCycle(100))
		require.Len(t, sink.saved, 1)
		assert.Equal(t, uint64(100), sink.saved[0].Epoch)

		epoch, found, err := epCursor.Read()
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, uint64(100), epoch)
	})

	t.Run("missing epoch data skips the cycle", func(t *testing.T) {
		source := &stubSource{latestErr: errors.New("api down")}
		sink := &stubSink{}
		c := testCollector(t, dir, source, nil, sink)

		assert.False(t, c.monitorCycle(100))
		assert.Equal(t, uint64(1), c.failedCycles.Load())
	})

	t.Run("failed save leaves the window uncommitted", func(t *testing.T) {
		source := &stubSource{
			latest: 199,
			slots:  []beaconapi.Slot{{ExecTimestamp: 1691000384}},
		}
		sink := &stubSink{saveErr: errors.New("db down")}
		epCursor := cursor.New(filepath.Join(t.TempDir(), ".lastepoch"))
		c := NewRewardsCollector(context.Background(), dir, source, nil, sink,
			epCursor, WithEpochInterval(100))

		assert.False(t, c.monitorCycle(100))
		_, found, err := epCursor.Read()
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestRunBackfill(t *testing.T) {
	dir := testDirectory(t, "1,0xaa,32,A,0x1\n")
	source := &stubSource{
		latest: 299,
		withdrawals: map[uint64][]beaconapi.Withdrawal{
			199: {{ValidatorIndex: 1, Amount: "5", Epoch: 150}},
			299: {{ValidatorIndex: 1, Amount: "7", Epoch: 250}},
		},
		slots: []beaconapi.Slot{{ExecTimestamp: 1691000384}},
	}
	sink := &stubSink{}
	epCursor := cursor.New(filepath.Join(t.TempDir(), ".lastepoch"))

	c := NewRewardsCollector(context.Background(), dir, source, nil, sink,
		epCursor, WithStartEpoch(100), WithEpochInterval(100))
	require.NoError(t, c.RunBackfill(0))

	// windows 100-199 and 200-299 fit below the finalized epoch; the
	// partial window starting at 300 does not
	require.Len(t, sink.saved, 2)
	assert.Equal(t, uint64(100), sink.saved[0].Epoch)
	assert.Equal(t, uint64(200), sink.saved[1].Epoch)

	epoch, found, err := epCursor.Read()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(200), epoch)
}
