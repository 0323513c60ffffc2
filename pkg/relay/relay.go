package relay

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

const (
	moduleName   = "relays"
	relayTimeout = 30 * time.Second
)

var (
	log = logrus.WithField(
		"module", moduleName)
	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

// BidTrace is one delivered payload entry of the mev-boost data API.
// The relay renders every numeric field as a string.
type BidTrace struct {
	Slot           string `json:"slot"`
	BlockNumber    string `json:"block_number"`
	BuilderPubkey  string `json:"builder_pubkey"`
	ProposerPubkey string `json:"proposer_pubkey"`
	Value          string `json:"value"`
}

// Monitor checks a configurable list of MEV relays for delivered
// payloads. Relay order matters: the first relay answering with a
// non-empty payload list wins and no further relay is queried.
type Monitor struct {
	ctx     context.Context
	relays  []string
	httpCli *fasthttp.Client
}

func NewMonitor(ctx context.Context, relays []string) *Monitor {
	cleaned := make([]string, 0, len(relays))
	for _, r := range relays {
		r = strings.TrimSpace(strings.TrimSuffix(r, "/"))
		if r != "" {
			cleaned = append(cleaned, r)
		}
	}
	return &Monitor{
		ctx:     ctx,
		relays:  cleaned,
		httpCli: &fasthttp.Client{},
	}
}

func (m *Monitor) Enabled() bool {
	return len(m.relays) > 0
}

// FirstDeliveredPayload queries the configured relays sequentially for
// the given execution block and short-circuits on the first non-empty
// response. The returned tag identifies the winning relay. Per-relay
// failures are logged and skipped; they never abort the scan.
func (m *Monitor) FirstDeliveredPayload(blockNumber uint64) (*BidTrace, string, bool) {
	for _, relayAddr := range m.relays {
		bids, err := m.deliveredPayloads(relayAddr, blockNumber)
		if err != nil {
			log.Warnf("relay %s failed for block %d: %s", relayTag(relayAddr), blockNumber, err)
			continue
		}
		if len(bids) > 0 {
			return &bids[0], relayTag(relayAddr), true
		}
	}
	return nil, "", false
}

func (m *Monitor) deliveredPayloads(relayAddr string, blockNumber uint64) ([]BidTrace, error) {
	if err := m.ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf(
		"%s/relay/v1/data/bidtraces/proposer_payload_delivered?block_number=%d",
		relayAddr, blockNumber))
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	if err := m.httpCli.DoTimeout(req, resp, relayTimeout); err != nil {
		return nil, err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode())
	}

	var bids []BidTrace
	if err := json.Unmarshal(resp.Body(), &bids); err != nil {
		return nil, err
	}
	return bids, nil
}

// relayTag reduces a relay URL to its hostname, dropping the pubkey
// userinfo relays embed in their advertised addresses.
func relayTag(relayAddr string) string {
	parsed, err := url.Parse(relayAddr)
	if err != nil || parsed.Host == "" {
		return relayAddr
	}
	return parsed.Hostname()
}
