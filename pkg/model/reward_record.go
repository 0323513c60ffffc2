package model

const (
	RecordTypeWithdrawal = "withdrawal"
	RecordTypeProposal   = "proposal"
)

// RewardRecord is the engine's uniform output unit: one consensus
// withdrawal or one execution block proposal, already joined with the
// validator directory metadata. Amounts are decimal strings (gwei for
// withdrawals, wei for proposals) to survive storage untouched.
type RewardRecord struct {
	RecordType      string
	ValidatorIndex  uint64
	Amount          string
	Epoch           uint64
	Datetime        int64
	ValidatorType   string
	Node            string
	Minipool        string
	MevSource       string // proposals only, empty when no relay was involved
	ExecBlockNumber uint64 // proposals only
	IsExit          bool   // withdrawal of an exited validator (principal, not rewards)
}

// RewardBatch is one extracted epoch window handed to the storage
// sink. A re-saved batch for the same epoch must not duplicate rows;
// sinks replace by epoch rather than appending blindly.
type RewardBatch struct {
	Epoch   uint64
	Records []RewardRecord
}

func NewRewardBatch(epoch uint64) *RewardBatch {
	return &RewardBatch{
		Epoch:   epoch,
		Records: make([]RewardRecord, 0),
	}
}

func (b *RewardBatch) Add(record RewardRecord) {
	b.Records = append(b.Records, record)
}

func (b *RewardBatch) Withdrawals() int {
	count := 0
	for _, r := range b.Records {
		if r.RecordType == RecordTypeWithdrawal {
			count++
		}
	}
	return count
}

func (b *RewardBatch) Proposals() int {
	count := 0
	for _, r := range b.Records {
		if r.RecordType == RecordTypeProposal {
			count++
		}
	}
	return count
}
