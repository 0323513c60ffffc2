package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"

	"github.com/libc-labs/eth-rewards-collector/pkg/collector"
	"github.com/libc-labs/eth-rewards-collector/pkg/config"
	"github.com/libc-labs/eth-rewards-collector/pkg/metrics"
)

var BackfillCommand = &cli.Command{
	Name:   "backfill",
	Usage:  "fill historical reward windows from the cursor up to the latest finalized epoch",
	Action: LaunchRewardsBackfill,
	Flags: append([]cli.Flag{
		&cli.Uint64Flag{
			Name:    "start-epoch",
			Usage:   "epoch to start from, overrides the cursor",
			EnvVars: []string{"EPOCH_START"},
		},
		&cli.DurationFlag{
			Name:    "backfill-delay",
			Usage:   "delay between windows, example: 15s",
			EnvVars: []string{"BACKFILL_DELAY"},
		},
	}, collectorFlags...),
}

var logCmdBackfill = logrus.WithField(
	"module", "backfillCommand",
)

func LaunchRewardsBackfill(c *cli.Context) error {
	conf := config.NewCollectorConfig()
	conf.Apply(c)

	var extraOpts []collector.Option
	if c.IsSet("start-epoch") {
		extraOpts = append(extraOpts, collector.WithForcedStart(c.Uint64("start-epoch")))
	}

	rewardsCollector, dbService, err := setupCollector(c, conf, extraOpts...)
	if err != nil {
		return err
	}
	defer dbService.Close()

	promMetrics := metrics.NewPrometheusMetrics(c.Context, "0.0.0.0", conf.PrometheusPort)
	promMetrics.AddMeticsModule(rewardsCollector.GetPrometheusMetrics())
	promMetrics.Start()

	procDoneC := make(chan struct{})
	sigtermC := make(chan os.Signal, 1)
	signal.Notify(sigtermC, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	go func() {
		if err := rewardsCollector.RunBackfill(conf.BackfillDelay); err != nil {
			logCmdBackfill.Errorf("backfill failed: %s", err)
		}
		procDoneC <- struct{}{}
	}()

	select {
	case <-sigtermC:
		logCmdBackfill.Info("sudden shutdown detected, controlled shutdown of the backfill triggered")
		rewardsCollector.Close()
	case <-procDoneC:
		logCmdBackfill.Info("process successfully finished!")
	}
	close(sigtermC)
	close(procDoneC)

	return nil
}
