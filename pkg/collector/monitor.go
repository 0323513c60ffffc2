package collector

import (
	"time"
)

// RunMonitor is the continuous flavor: a timer-driven cycle that asks
// whether a new finalized epoch completed the next window and, if so,
// extracts and commits it. Transport and sink failures degrade to
// "try again next tick"; an in-progress extraction is never cancelled
// mid-flight.
func (c *RewardsCollector) RunMonitor(checkInterval time.Duration) error {
	next, err := c.nextWindowStart()
	if err != nil {
		return err
	}
	log.Infof("monitoring for new reward windows every %s, next window starts at epoch %d", checkInterval, next)

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		if processed := c.monitorCycle(next); processed {
			next += c.epochInterval
			log.Infof("next window starts at epoch %d", next)
		}

		select {
		case <-ticker.C:
		case <-c.ctx.Done():
			log.Info("context died, closing monitor routine")
			return nil
		}
	}
}

// monitorCycle runs one check. Reports whether the window was
// extracted and committed.
func (c *RewardsCollector) monitorCycle(windowStart uint64) bool {
	latest, err := c.source.LatestFinalizedEpoch()
	if err != nil {
		// no epoch data is a skip-this-cycle condition, not a crash
		log.Warnf("could not fetch latest finalized epoch, skipping cycle: %s", err)
		c.failedCycles.Add(1)
		return false
	}

	windowEnd := windowStart + c.epochInterval - 1
	if latest < windowEnd {
		log.Infof("window %d-%d not finalized yet (latest epoch %d), waiting", windowStart, windowEnd, latest)
		return false
	}

	rewardBatch, err := c.ExtractEpoch(windowStart)
	if err != nil {
		log.Errorf("extraction of window %d failed, retrying next cycle: %s", windowStart, err)
		c.failedCycles.Add(1)
		return false
	}
	if err := c.commitWindow(rewardBatch); err != nil {
		log.Errorf("could not commit window %d, retrying next cycle: %s", windowStart, err)
		c.failedCycles.Add(1)
		return false
	}
	return true
}
