package collector

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/libc-labs/eth-rewards-collector/pkg/metrics"
	"github.com/libc-labs/eth-rewards-collector/pkg/utils"
)

var (
	modName    = "collector"
	modDetails = "general metrics about the rewards collector"

	RecordsExtracted = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: strings.ToLower(utils.CliName),
		Subsystem: modName,
		Name:      "records_extracted",
		Help:      "The number of reward records extracted since process start",
	})
	LastProcessedEpoch = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: strings.ToLower(utils.CliName),
		Subsystem: modName,
		Name:      "last_processed_epoch",
		Help:      "The start epoch of the last committed window",
	})
	FailedCycles = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: strings.ToLower(utils.CliName),
		Subsystem: modName,
		Name:      "failed_cycles",
		Help:      "The number of cycles that failed and were left for a retry",
	})
)

func (c *RewardsCollector) GetPrometheusMetrics() *metrics.MetricsModule {
	metricsMod := metrics.NewMetricsModule(
		modName,
		modDetails,
	)
	metricsMod.AddIndvMetric(c.getRecordsExtracted())
	metricsMod.AddIndvMetric(c.getLastProcessedEpoch())
	metricsMod.AddIndvMetric(c.getFailedCycles())

	return metricsMod
}

func (c *RewardsCollector) getRecordsExtracted() *metrics.IndvMetrics {
	initFn := func() error {
		prometheus.MustRegister(RecordsExtracted)
		return nil
	}
	updateFn := func() (interface{}, error) {
		records := c.recordsExtracted.Load()
		RecordsExtracted.Set(float64(records))
		return records, nil
	}
	indvMetr, err := metrics.NewIndvMetrics(
		"records_extracted",
		initFn,
		updateFn,
	)
	if err != nil {
		log.Error(errors.Wrap(err, "unable to init records_extracted"))
		return nil
	}
	return indvMetr
}

func (c *RewardsCollector) getLastProcessedEpoch() *metrics.IndvMetrics {
	initFn := func() error {
		prometheus.MustRegister(LastProcessedEpoch)
		return nil
	}
	updateFn := func() (interface{}, error) {
		epoch := c.lastProcessedEpoch.Load()
		LastProcessedEpoch.Set(float64(epoch))
		return epoch, nil
	}
	indvMetr, err := metrics.NewIndvMetrics(
		"last_processed_epoch",
		initFn,
		updateFn,
	)
	if err != nil {
		log.Error(errors.Wrap(err, "unable to init last_processed_epoch"))
		return nil
	}
	return indvMetr
}

func (c *RewardsCollector) getFailedCycles() *metrics.IndvMetrics {
	initFn := func() error {
		prometheus.MustRegister(FailedCycles)
		return nil
	}
	updateFn := func() (interface{}, error) {
		cycles := c.failedCycles.Load()
		FailedCycles.Set(float64(cycles))
		return cycles, nil
	}
	indvMetr, err := metrics.NewIndvMetrics(
		"failed_cycles",
		initFn,
		updateFn,
	)
	if err != nil {
		log.Error(errors.Wrap(err, "unable to init failed_cycles"))
		return nil
	}
	return indvMetr
}
