package collector

import (
	"time"
)

// RunBackfill fills historical windows from the cursor (or the
// configured start epoch) up to the latest finalized epoch, waiting a
// fixed delay between windows. Windows are strictly sequential: each
// committed window is the resumability checkpoint.
func (c *RewardsCollector) RunBackfill(delay time.Duration) error {
	next, err := c.nextWindowStart()
	if err != nil {
		return err
	}

	start := time.Now()
	log.Infof("backfilling %d epochs at a time from epoch %d", c.epochInterval, next)

	for {
		latest, err := c.source.LatestFinalizedEpoch()
		if err != nil {
			log.Warnf("could not fetch latest finalized epoch, retrying in %s: %s", delay, err)
			c.failedCycles.Add(1)
			if !c.wait(delay) {
				return nil
			}
			continue
		}

		if next+c.epochInterval-1 > latest {
			log.Infof("backfill complete up to epoch %d in %s", next-1, time.Since(start).Round(time.Second))
			return nil
		}

		rewardBatch, err := c.ExtractEpoch(next)
		if err != nil {
			log.Errorf("extraction of window %d failed, retrying in %s: %s", next, delay, err)
			c.failedCycles.Add(1)
			if !c.wait(delay) {
				return nil
			}
			continue
		}
		if err := c.commitWindow(rewardBatch); err != nil {
			log.Errorf("could not commit window %d, retrying in %s: %s", next, delay, err)
			c.failedCycles.Add(1)
			if !c.wait(delay) {
				return nil
			}
			continue
		}

		next += c.epochInterval
		if !c.wait(delay) {
			return nil
		}
	}
}

// wait sleeps the given delay unless the collector was closed.
func (c *RewardsCollector) wait(delay time.Duration) bool {
	if delay <= 0 {
		return c.ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-c.ctx.Done():
		log.Info("context died, closing backfill routine")
		return false
	}
}
