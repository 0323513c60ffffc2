package collector

import (
	"github.com/pkg/errors"

	"github.com/libc-labs/eth-rewards-collector/pkg/beaconapi"
	"github.com/libc-labs/eth-rewards-collector/pkg/model"
)

// resolvedBlock is the per-block outcome of the MEV resolution: the
// reward amount, where it came from and the block's consensus context.
type resolvedBlock struct {
	amount    string
	mevSource string
	timestamp int64
	proposer  uint64
	epoch     uint64
}

// ExtractEpoch runs the full extraction pipeline for one epoch window
// and returns the flat reward record batch ready for the sink.
//
// Chunks are processed sequentially: the shared gateway is the single
// serialization point, so interleaving chunk fetches buys nothing.
func (c *RewardsCollector) ExtractEpoch(epoch uint64) (*model.RewardBatch, error) {
	log.Infof("starting reward extraction for epochs %d-%d", epoch, epoch+c.epochInterval-1)

	chunks := c.directory.Chunks(c.chunkSize)

	rawWithdrawals := make([]beaconapi.Withdrawal, 0)
	exited := make(map[uint64]bool)
	proposalRecords := make([]model.RewardRecord, 0)

	// the withdrawals endpoint aggregates the trailing window from the
	// queried epoch, so the window's last epoch is the query target
	windowEnd := epoch + c.epochInterval - 1

	for i, chunk := range chunks {
		log.Infof("processing chunk %d/%d (%d validators)", i+1, len(chunks), len(chunk))

		for idx, isExited := range c.source.ValidatorStatuses(chunk) {
			if isExited {
				exited[idx] = true
			}
		}

		withdrawals, err := c.source.Withdrawals(chunk, windowEnd)
		if err != nil {
			return nil, errors.Wrapf(err, "chunk %d withdrawals", i+1)
		}
		// the endpoint aggregates a fixed trailing range regardless of
		// the configured interval; anything outside this window belongs
		// to a neighboring one and would be double-counted
		for _, withdrawal := range withdrawals {
			if withdrawal.Epoch < epoch || withdrawal.Epoch > windowEnd {
				log.Debugf("withdrawal of validator %d at epoch %d is outside window %d-%d, skipping",
					withdrawal.ValidatorIndex, withdrawal.Epoch, epoch, windowEnd)
				continue
			}
			rawWithdrawals = append(rawWithdrawals, withdrawal)
		}

		proposals, err := c.source.Proposals(chunk, epoch)
		if err != nil {
			return nil, errors.Wrapf(err, "chunk %d proposals", i+1)
		}
		for _, proposal := range proposals {
			record, ok, err := c.processProposal(proposal)
			if err != nil {
				return nil, err
			}
			if ok {
				proposalRecords = append(proposalRecords, record)
			}
		}
	}

	rewardBatch := model.NewRewardBatch(epoch)

	if len(rawWithdrawals) > 0 {
		datetime := c.epochDatetime(epoch)
		for _, withdrawal := range rawWithdrawals {
			val, ok := c.directory.ByIndex(withdrawal.ValidatorIndex)
			if !ok {
				return nil, errors.Errorf(
					"validator %d has withdrawals but is missing from the directory, refusing to drop reward data",
					withdrawal.ValidatorIndex)
			}
			rewardBatch.Add(model.RewardRecord{
				RecordType:     model.RecordTypeWithdrawal,
				ValidatorIndex: withdrawal.ValidatorIndex,
				Amount:         withdrawal.Amount.String(),
				Epoch:          withdrawal.Epoch,
				Datetime:       datetime,
				ValidatorType:  val.Type,
				Node:           val.Node,
				Minipool:       val.Minipool,
				IsExit:         exited[withdrawal.ValidatorIndex],
			})
		}
	}

	for _, record := range proposalRecords {
		rewardBatch.Add(record)
	}

	c.recordsExtracted.Add(uint64(len(rewardBatch.Records)))
	log.Infof("completed epochs %d-%d: %d withdrawals, %d proposals",
		epoch, windowEnd, rewardBatch.Withdrawals(), rewardBatch.Proposals())
	return rewardBatch, nil
}

// processProposal resolves one raw proposal into a reward record.
// Proposals without an execution block number are not yet finalized on
// the execution layer: they are skipped here and picked up by a later
// window, never invented.
func (c *RewardsCollector) processProposal(proposal beaconapi.Proposal) (model.RewardRecord, bool, error) {
	if proposal.ExecBlockNumber == 0 {
		log.Debugf("proposal of validator %d at epoch %d has no execution block yet, skipping",
			proposal.Proposer, proposal.Epoch)
		return model.RewardRecord{}, false, nil
	}

	block, err := c.resolveBlock(proposal.ExecBlockNumber)
	if err != nil {
		log.Errorf("error resolving block %d: %s", proposal.ExecBlockNumber, err)
		return model.RewardRecord{}, false, nil
	}
	if block == nil {
		return model.RewardRecord{}, false, nil
	}

	val, ok := c.directory.ByIndex(block.proposer)
	if !ok {
		return model.RewardRecord{}, false, errors.Errorf(
			"proposer %d of block %d is missing from the directory, refusing to drop reward data",
			block.proposer, proposal.ExecBlockNumber)
	}

	return model.RewardRecord{
		RecordType:      model.RecordTypeProposal,
		ValidatorIndex:  block.proposer,
		Amount:          block.amount,
		Epoch:           block.epoch,
		Datetime:        block.timestamp,
		ValidatorType:   val.Type,
		Node:            val.Node,
		Minipool:        val.Minipool,
		MevSource:       block.mevSource,
		ExecBlockNumber: proposal.ExecBlockNumber,
	}, true, nil
}

// resolveBlock looks up the execution reward of a block, deduplicating
// repeated block numbers across the whole run. The same block should
// not appear twice in a batch, but a cached answer is cheaper than
// trusting that.
func (c *RewardsCollector) resolveBlock(blockNumber uint64) (*resolvedBlock, error) {
	if cached, ok := c.blockCache[blockNumber]; ok {
		return cached, nil
	}

	block, err := c.source.ExecutionBlock(blockNumber)
	if err != nil {
		return nil, err
	}
	if block == nil {
		log.Warnf("execution block %d not known upstream yet", blockNumber)
		c.blockCache[blockNumber] = nil
		return nil, nil
	}

	resolved := &resolvedBlock{
		timestamp: block.Timestamp,
		proposer:  block.PosConsensus.ProposerIndex,
		epoch:     block.PosConsensus.Epoch,
	}
	switch {
	case block.Relay != nil && block.Relay.Tag != "":
		log.Infof("MEV relay %s found for block %d", block.Relay.Tag, blockNumber)
		resolved.mevSource = block.Relay.Tag
		resolved.amount = block.BlockMevReward.String()
	case c.relays != nil && c.relays.Enabled():
		if bid, tag, found := c.relays.FirstDeliveredPayload(blockNumber); found {
			log.Infof("relay %s delivered payload for block %d", tag, blockNumber)
			resolved.mevSource = tag
			resolved.amount = bid.Value
		} else {
			resolved.amount = block.ProducerReward.String()
		}
	default:
		log.Debugf("no MEV relay found for block %d", blockNumber)
		resolved.amount = block.ProducerReward.String()
	}

	c.blockCache[blockNumber] = resolved
	return resolved, nil
}

// epochDatetime recovers the epoch's nominal timestamp from its last
// slot. Individual withdrawal timestamps are not exposed upstream, so
// the final slot time stands in for every withdrawal of the window.
func (c *RewardsCollector) epochDatetime(epoch uint64) int64 {
	slots, err := c.source.EpochSlots(epoch)
	if err != nil || len(slots) == 0 {
		log.Warnf("could not get slots of epoch %d: %v", epoch, err)
		return 0
	}
	return slots[len(slots)-1].ExecTimestamp
}
