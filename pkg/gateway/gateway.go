package gateway

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	log = logrus.WithField(
		"module", "gateway",
	)
)

// Conservative defaults, kept under the documented beaconcha.in
// ceiling of 5 req/s and 20 req/min to absorb clock skew.
var (
	DefaultRequestsPerSecond = 4
	DefaultRequestsPerMinute = 18
	DefaultRequestSpacing    = 150 * time.Millisecond
)

type request struct {
	thunk func() error
	done  chan error
}

// Gateway serializes every outbound API call through a single FIFO
// queue honoring the provider quotas. Callers may submit concurrently;
// requests execute one at a time in submission order.
type Gateway struct {
	ctx    context.Context
	cancel context.CancelFunc

	requestsPerSecond int
	requestsPerMinute int
	requestSpacing    time.Duration

	reqChan  chan *request
	admitted []time.Time // admission timestamps within the trailing minute
}

type Option func(*Gateway)

func WithLimits(perSecond int, perMinute int) Option {
	return func(g *Gateway) {
		g.requestsPerSecond = perSecond
		g.requestsPerMinute = perMinute
	}
}

func WithRequestSpacing(spacing time.Duration) Option {
	return func(g *Gateway) {
		g.requestSpacing = spacing
	}
}

func New(pCtx context.Context, opts ...Option) *Gateway {
	ctx, cancel := context.WithCancel(pCtx)
	g := &Gateway{
		ctx:               ctx,
		cancel:            cancel,
		requestsPerSecond: DefaultRequestsPerSecond,
		requestsPerMinute: DefaultRequestsPerMinute,
		requestSpacing:    DefaultRequestSpacing,
		reqChan:           make(chan *request),
		admitted:          make([]time.Time, 0),
	}
	for _, o := range opts {
		o(g)
	}
	go g.drain()
	return g
}

// Submit enqueues the given thunk and blocks until it was executed by
// the drain loop or the gateway context died. The thunk's error is
// returned to this caller only; it does not affect queued requests.
func (g *Gateway) Submit(thunk func() error) error {
	req := &request{
		thunk: thunk,
		done:  make(chan error, 1),
	}
	select {
	case g.reqChan <- req:
	case <-g.ctx.Done():
		return g.ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-g.ctx.Done():
		return g.ctx.Err()
	}
}

func (g *Gateway) Close() {
	g.cancel()
}

func (g *Gateway) drain() {
	for {
		select {
		case req := <-g.reqChan:
			if !g.waitForQuota() {
				req.done <- g.ctx.Err()
				continue
			}
			g.admit()
			req.done <- req.thunk()
			// safety margin beyond the raw quota math
			g.sleep(g.requestSpacing)
		case <-g.ctx.Done():
			log.Debug("context died, closing request drain loop")
			return
		}
	}
}

// waitForQuota blocks until both the trailing 1-second and 60-second
// windows have room for one more admission. Returns false when the
// gateway context died while waiting.
func (g *Gateway) waitForQuota() bool {
	for {
		if g.ctx.Err() != nil {
			return false
		}
		now := time.Now()
		g.trim(now)

		inLastSecond := 0
		for _, t := range g.admitted {
			if now.Sub(t) < time.Second {
				inLastSecond++
			}
		}
		if len(g.admitted) < g.requestsPerMinute && inLastSecond < g.requestsPerSecond {
			return true
		}

		// sleep until the oldest timestamp of the binding window ages out
		var wakeAt time.Time
		if len(g.admitted) >= g.requestsPerMinute {
			wakeAt = g.admitted[0].Add(time.Minute)
		} else {
			oldestInSecond := g.admitted[len(g.admitted)-inLastSecond]
			wakeAt = oldestInSecond.Add(time.Second)
		}
		if !g.sleep(time.Until(wakeAt)) {
			return false
		}
	}
}

func (g *Gateway) admit() {
	g.admitted = append(g.admitted, time.Now())
}

// trim drops admission timestamps older than the trailing minute
func (g *Gateway) trim(now time.Time) {
	cut := 0
	for cut < len(g.admitted) && now.Sub(g.admitted[cut]) >= time.Minute {
		cut++
	}
	g.admitted = g.admitted[cut:]
}

func (g *Gateway) sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-g.ctx.Done():
		return false
	}
}
