package beaconapi

import "encoding/json"

// Withdrawal is one consensus-layer withdrawal credited to a validator,
// as reported by the validator withdrawals endpoint. Amounts are kept
// as raw JSON numbers (gwei) to avoid precision loss.
type Withdrawal struct {
	ValidatorIndex uint64      `json:"validatorindex"`
	Amount         json.Number `json:"amount"`
	Epoch          uint64      `json:"epoch"`
}

// Proposal is one block proposal credited to a validator in the queried
// epoch. ExecBlockNumber is zero when the proposal has not been seen on
// the execution layer yet.
type Proposal struct {
	Proposer        uint64 `json:"proposer"`
	ExecBlockNumber uint64 `json:"exec_block_number"`
	Epoch           uint64 `json:"epoch"`
}

// Slot carries the execution timestamp of one slot of an epoch. The
// last slot of the epoch is used as the epoch's nominal datetime.
type Slot struct {
	ExecTimestamp int64 `json:"exec_timestamp"`
}

type RelayInfo struct {
	Tag string `json:"tag"`
}

type PosConsensus struct {
	ProposerIndex uint64 `json:"proposerIndex"`
	Epoch         uint64 `json:"epoch"`
}

// ExecutionBlock is the execution-layer view of a proposed block,
// including the MEV relay tag when the block was built through a relay.
type ExecutionBlock struct {
	BlockMevReward json.Number  `json:"blockMevReward"`
	ProducerReward json.Number  `json:"producerReward"`
	Relay          *RelayInfo   `json:"relay"`
	Timestamp      int64        `json:"timestamp"`
	PosConsensus   PosConsensus `json:"posConsensus"`
}

type epochResponse struct {
	Data struct {
		Epoch uint64 `json:"epoch"`
	} `json:"data"`
}

type withdrawalsResponse struct {
	Data []Withdrawal `json:"data"`
}

type proposalsResponse struct {
	Data []Proposal `json:"data"`
}

type slotsResponse struct {
	Data []Slot `json:"data"`
}

type executionBlockResponse struct {
	Data []ExecutionBlock `json:"data"`
}

type validatorStatusesResponse struct {
	Data []struct {
		Index  string `json:"index"`
		Status string `json:"status"`
	} `json:"data"`
}
