package utils

const (
	Version = "v0.3.1"
	CliName = "RewardsCollector"

	// beaconcha.in caps batched validator queries at 100 indices
	ValidatorChunkSize = 100

	// the withdrawals endpoint aggregates at most the trailing 100
	// epochs from the queried one, so wider windows would lose data
	MaxEpochInterval = 100
)
