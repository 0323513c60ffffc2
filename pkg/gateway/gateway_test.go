package gateway

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := New(ctx,
		WithLimits(4, 18),
		WithRequestSpacing(time.Millisecond))
	defer g.Close()

	var mu sync.Mutex
	admissions := make([]time.Time, 0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Submit(func() error {
				mu.Lock()
				admissions = append(admissions, time.Now())
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, admissions, 10)
	sort.Slice(admissions, func(i, j int) bool { return admissions[i].Before(admissions[j]) })

	// no trailing 1-second window may hold more than 4 admissions and
	// no 60-second window more than 18
	for i := range admissions {
		inSecond := 0
		inMinute := 0
		for j := i; j < len(admissions); j++ {
			diff := admissions[j].Sub(admissions[i])
			if diff < time.Second {
				inSecond++
			}
			if diff < time.Minute {
				inMinute++
			}
		}
		assert.LessOrEqual(t, inSecond, 4, "more than 4 admissions within one second")
		assert.LessOrEqual(t, inMinute, 18, "more than 18 admissions within one minute")
	}
}

func TestGatewayErrorIsolation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := New(ctx,
		WithLimits(100, 1000),
		WithRequestSpacing(0))
	defer g.Close()

	boom := errors.New("boom")
	err := g.Submit(func() error { return boom })
	assert.ErrorIs(t, err, boom)

	// the failed request must not halt the queue
	err = g.Submit(func() error { return nil })
	assert.NoError(t, err)
}

func TestGatewayClosedContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	g := New(ctx, WithLimits(100, 1000), WithRequestSpacing(0))
	cancel()

	err := g.Submit(func() error { return nil })
	assert.Error(t, err)
}
