package db

import (
	"context"

	pgx "github.com/jackc/pgx/v4"
	"github.com/pkg/errors"

	"github.com/libc-labs/eth-rewards-collector/pkg/model"
)

// Static postgres queries, for each modification in the tables, the table needs to be reseted
var (
	CreateRewardsTable = `
	CREATE TABLE IF NOT EXISTS t_validator_rewards(
		f_window_epoch BIGINT NOT NULL,
		f_record_type TEXT NOT NULL,
		f_val_idx BIGINT NOT NULL,
		f_amount NUMERIC NOT NULL,
		f_epoch BIGINT NOT NULL,
		f_datetime BIGINT,
		f_val_type TEXT,
		f_node TEXT,
		f_minipool TEXT,
		f_mev_source TEXT,
		f_exec_block_number BIGINT,
		f_is_exit BOOL);
	CREATE INDEX IF NOT EXISTS idx_validator_rewards_window
		ON t_validator_rewards (f_window_epoch);`

	DeleteWindowRewards = `
	DELETE FROM t_validator_rewards WHERE f_window_epoch = $1;`

	InsertReward = `
	INSERT INTO t_validator_rewards (
		f_window_epoch,
		f_record_type,
		f_val_idx,
		f_amount,
		f_epoch,
		f_datetime,
		f_val_type,
		f_node,
		f_minipool,
		f_mev_source,
		f_exec_block_number,
		f_is_exit)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12);`
)

func (p *PostgresDBService) createRewardsTable() error {
	_, err := p.psqlPool.Exec(p.ctx, CreateRewardsTable)
	if err != nil {
		return errors.Wrap(err, "error creating rewards table")
	}
	return nil
}

// SaveRewards persists one extracted epoch window in a single
// transaction: previously stored rows of the window are dropped and
// the fresh batch is inserted, keeping retried saves idempotent.
func (p *PostgresDBService) SaveRewards(ctx context.Context, rewardBatch *model.RewardBatch) error {
	tx, err := p.psqlPool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to begin rewards transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, DeleteWindowRewards, rewardBatch.Epoch); err != nil {
		return errors.Wrapf(err, "unable to clear window %d", rewardBatch.Epoch)
	}

	batch := &pgx.Batch{}
	for _, record := range rewardBatch.Records {
		batch.Queue(InsertReward,
			rewardBatch.Epoch,
			record.RecordType,
			record.ValidatorIndex,
			record.Amount,
			record.Epoch,
			record.Datetime,
			record.ValidatorType,
			record.Node,
			record.Minipool,
			record.MevSource,
			record.ExecBlockNumber,
			record.IsExit,
		)
	}
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return errors.Wrapf(err, "unable to insert reward row in window %d", rewardBatch.Epoch)
		}
	}
	if err := results.Close(); err != nil {
		return errors.Wrap(err, "unable to close rewards batch")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrapf(err, "unable to commit window %d", rewardBatch.Epoch)
	}
	wlog.Infof("persisted %d reward rows for window %d", len(rewardBatch.Records), rewardBatch.Epoch)
	return nil
}
