package beaconapi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/libc-labs/eth-rewards-collector/pkg/gateway"
)

var (
	log = logrus.WithField(
		"module", "beacon-api",
	)
	jsonIter = jsoniter.ConfigCompatibleWithStandardLibrary
)

var (
	requestTimeout    = 30 * time.Second
	DefaultMaxRetries = 5
)

// Client is a thin typed wrapper over the beaconcha.in REST API. Every
// call to the reward API is routed through the shared gateway; the
// gateway's throttling is the only backoff between retries.
type Client struct {
	ctx        context.Context
	endpoint   string
	apiKey     string
	bnEndpoint string
	gw         *gateway.Gateway
	httpCli    *fasthttp.Client
	maxRetries int
}

type Option func(*Client)

// WithBnEndpoint sets the beacon node used for validator status
// lookups. Status queries hit the operator's own node and bypass the
// gateway.
func WithBnEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.bnEndpoint = endpoint
	}
}

func WithMaxRetries(retries int) Option {
	return func(c *Client) {
		if retries > 0 {
			c.maxRetries = retries
		}
	}
}

func NewClient(ctx context.Context, endpoint string, apiKey string, gw *gateway.Gateway, opts ...Option) *Client {
	c := &Client{
		ctx:      ctx,
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		gw:       gw,
		httpCli: &fasthttp.Client{
			MaxIdleConnDuration: 30 * time.Second,
		},
		maxRetries: DefaultMaxRetries,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// LatestFinalizedEpoch requests the newest finalized epoch known by the
// reward API. Exhausted retries propagate to the caller, which treats a
// missing epoch as a skip-this-cycle condition.
func (c *Client) LatestFinalizedEpoch() (uint64, error) {
	var resp epochResponse
	url := fmt.Sprintf("%s/epoch/finalized", c.endpoint)
	if err := c.getWithRetry(url, &resp); err != nil {
		return 0, errors.Wrap(err, "unable to request finalized epoch")
	}
	return resp.Data.Epoch, nil
}

// Withdrawals requests the withdrawals of the given validator indices.
// The endpoint aggregates the trailing 100 epochs from the queried one.
func (c *Client) Withdrawals(indices []uint64, epoch uint64) ([]Withdrawal, error) {
	var resp withdrawalsResponse
	url := fmt.Sprintf("%s/validator/%s/withdrawals?epoch=%d", c.endpoint, joinIndices(indices), epoch)
	if err := c.getWithRetry(url, &resp); err != nil {
		return nil, errors.Wrapf(err, "unable to request withdrawals at epoch %d", epoch)
	}
	return resp.Data, nil
}

// Proposals requests the block proposals credited to the given
// validator indices at the queried epoch.
func (c *Client) Proposals(indices []uint64, epoch uint64) ([]Proposal, error) {
	var resp proposalsResponse
	url := fmt.Sprintf("%s/validator/%s/proposals?epoch=%d", c.endpoint, joinIndices(indices), epoch)
	if err := c.getWithRetry(url, &resp); err != nil {
		return nil, errors.Wrapf(err, "unable to request proposals at epoch %d", epoch)
	}
	return resp.Data, nil
}

// EpochSlots requests the ordered slot listing of an epoch, used only
// to recover the epoch's representative timestamp.
func (c *Client) EpochSlots(epoch uint64) ([]Slot, error) {
	var resp slotsResponse
	url := fmt.Sprintf("%s/epoch/%d/slots", c.endpoint, epoch)
	if err := c.getWithRetry(url, &resp); err != nil {
		return nil, errors.Wrapf(err, "unable to request slots of epoch %d", epoch)
	}
	return resp.Data, nil
}

// ExecutionBlock resolves the execution-layer reward data of a single
// block. No retry; the caller decides how to handle the failure.
// Returns nil when the API knows nothing about the block yet.
func (c *Client) ExecutionBlock(blockNumber uint64) (*ExecutionBlock, error) {
	var resp executionBlockResponse
	url := fmt.Sprintf("%s/execution/block/%d", c.endpoint, blockNumber)
	if err := c.get(url, &resp); err != nil {
		return nil, errors.Wrapf(err, "unable to request execution block %d", blockNumber)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	return &resp.Data[0], nil
}

// ValidatorStatuses reports which of the given validators have exited,
// so withdrawals of principal can be told apart from reward
// withdrawals. Best effort: without a beacon node endpoint, or on any
// transport failure, an empty map is returned and the caller proceeds.
func (c *Client) ValidatorStatuses(indices []uint64) map[uint64]bool {
	exited := make(map[uint64]bool)
	if c.bnEndpoint == "" || len(indices) == 0 {
		return exited
	}

	ids := make([]string, len(indices))
	for i, idx := range indices {
		ids[i] = strconv.FormatUint(idx, 10)
	}
	body, err := jsonIter.Marshal(map[string][]string{"ids": ids})
	if err != nil {
		log.Errorf("unable to marshal validator status request: %s", err)
		return exited
	}

	var resp validatorStatusesResponse
	url := fmt.Sprintf("%s/eth/v1/beacon/states/head/validators", strings.TrimSuffix(c.bnEndpoint, "/"))
	if err := c.doPost(url, body, &resp); err != nil {
		log.Errorf("unable to request validator statuses: %s", err)
		return exited
	}

	for _, item := range resp.Data {
		idx, err := strconv.ParseUint(item.Index, 10, 64)
		if err != nil {
			continue
		}
		if statusIsExited(item.Status) {
			exited[idx] = true
		}
	}
	return exited
}

func statusIsExited(status string) bool {
	switch status {
	case "exited_unslashed", "exited_slashed", "withdrawal_possible", "withdrawal_done":
		return true
	}
	return false
}

// get submits a single request through the gateway.
func (c *Client) get(url string, out interface{}) error {
	return c.gw.Submit(func() error {
		return c.doGet(url, out)
	})
}

// getWithRetry retries transport failures up to the configured bound.
func (c *Client) getWithRetry(url string, out interface{}) error {
	var err error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		err = c.get(url, out)
		if err == nil {
			return nil
		}
		log.Debugf("request attempt %d/%d failed for %s: %s", attempt, c.maxRetries, url, err)
	}
	return errors.Wrapf(err, "retries exhausted (%d)", c.maxRetries)
}

func (c *Client) doGet(url string, out interface{}) error {
	if err := c.ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	if err := c.httpCli.DoTimeout(req, resp, requestTimeout); err != nil {
		return err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return errors.Errorf("unexpected status code %d", resp.StatusCode())
	}
	return jsonIter.Unmarshal(resp.Body(), out)
}

func (c *Client) doPost(url string, body []byte, out interface{}) error {
	if err := c.ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBody(body)

	if err := c.httpCli.DoTimeout(req, resp, requestTimeout); err != nil {
		return err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return errors.Errorf("unexpected status code %d", resp.StatusCode())
	}
	return jsonIter.Unmarshal(resp.Body(), out)
}

// joinIndices renders the upstream-required comma-joined index list.
func joinIndices(indices []uint64) string {
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = strconv.FormatUint(idx, 10)
	}
	return strings.Join(parts, ",")
}
